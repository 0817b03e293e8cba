package property

// Preference expresses how strongly a selection property is wanted.
// The numeric values cross the bridge boundary verbatim.
type Preference uint8

const (
	// Require eliminates protocol stacks that cannot provide the property.
	Require Preference = 0

	// Prefer ranks stacks providing the property above those that don't.
	Prefer Preference = 1

	// NoPreference has no effect on selection.
	NoPreference Preference = 2

	// Avoid ranks stacks providing the property below those that don't.
	Avoid Preference = 3

	// Prohibit eliminates protocol stacks that provide the property.
	Prohibit Preference = 4
)

// String returns the preference name.
func (p Preference) String() string {
	switch p {
	case Require:
		return "REQUIRE"
	case Prefer:
		return "PREFER"
	case NoPreference:
		return "NO_PREFERENCE"
	case Avoid:
		return "AVOID"
	case Prohibit:
		return "PROHIBIT"
	default:
		return "UNKNOWN"
	}
}

// Multipath configures use of multiple network paths.
type Multipath uint8

const (
	// MultipathDisabled uses a single path only.
	MultipathDisabled Multipath = 0

	// MultipathActive establishes additional paths proactively.
	MultipathActive Multipath = 1

	// MultipathPassive accepts additional paths but does not open them.
	MultipathPassive Multipath = 2
)

// String returns the multipath mode name.
func (m Multipath) String() string {
	switch m {
	case MultipathDisabled:
		return "DISABLED"
	case MultipathActive:
		return "ACTIVE"
	case MultipathPassive:
		return "PASSIVE"
	default:
		return "UNKNOWN"
	}
}

// Direction constrains the communication direction of a connection.
type Direction uint8

const (
	// Bidirectional allows sending and receiving.
	Bidirectional Direction = 0

	// UnidirectionalSend allows sending only.
	UnidirectionalSend Direction = 1

	// UnidirectionalReceive allows receiving only.
	UnidirectionalReceive Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Bidirectional:
		return "BIDIRECTIONAL"
	case UnidirectionalSend:
		return "UNIDIRECTIONAL_SEND"
	case UnidirectionalReceive:
		return "UNIDIRECTIONAL_RECEIVE"
	default:
		return "UNKNOWN"
	}
}
