package property

// TransportProperties is the bundle of selection properties an application
// attaches to a Preconnection. Values are copied when attached; mutating
// the original afterwards has no effect on establishment.
type TransportProperties struct {
	// Reliability requires in-order, loss-free delivery of data.
	Reliability Preference

	// PreserveMsgBoundaries keeps message boundaries visible on the wire.
	PreserveMsgBoundaries Preference

	// PerMsgReliability allows disabling reliability per message.
	PerMsgReliability Preference

	// PreserveOrder delivers data in the order it was sent.
	PreserveOrder Preference

	// ZeroRTTMsg allows sending idempotent data during establishment.
	ZeroRTTMsg Preference

	// Multistreaming shares a transport among multiple streams.
	Multistreaming Preference

	// FullChecksumSend covers the full message with a checksum when sending.
	FullChecksumSend Preference

	// FullChecksumRecv requires full checksum coverage on receipt.
	FullChecksumRecv Preference

	// CongestionControl obeys congestion control when sending.
	CongestionControl Preference

	// KeepAlive sends transport-layer keep-alives.
	KeepAlive Preference

	// UseTemporaryLocalAddress prefers temporary (privacy) addresses.
	UseTemporaryLocalAddress Preference

	// SoftErrorNotify surfaces ICMP-style soft errors as events.
	SoftErrorNotify Preference

	// ActiveReadBeforeSend supports reading before the first send.
	ActiveReadBeforeSend Preference

	// Multipath configures multiple-path usage.
	Multipath Multipath

	// AdvertisesAltAddr advertises alternate addresses to the peer.
	AdvertisesAltAddr bool

	// Direction constrains the communication direction.
	Direction Direction
}

// NewTransportProperties returns properties describing a reliable,
// ordered, congestion-controlled stream. Applications override individual
// fields from there.
func NewTransportProperties() TransportProperties {
	return TransportProperties{
		Reliability:              Require,
		PreserveMsgBoundaries:    NoPreference,
		PerMsgReliability:        NoPreference,
		PreserveOrder:            Require,
		ZeroRTTMsg:               NoPreference,
		Multistreaming:           Prefer,
		FullChecksumSend:         Require,
		FullChecksumRecv:         Require,
		CongestionControl:        Require,
		KeepAlive:                NoPreference,
		UseTemporaryLocalAddress: Prefer,
		SoftErrorNotify:          NoPreference,
		ActiveReadBeforeSend:     NoPreference,
		Multipath:                MultipathDisabled,
		AdvertisesAltAddr:        false,
		Direction:                Bidirectional,
	}
}

// ReliableStreamProfile returns properties for a TCP-like byte stream.
// Identical to the defaults; named for readability at call sites.
func ReliableStreamProfile() TransportProperties {
	return NewTransportProperties()
}

// UnreliableDatagramProfile returns properties for a UDP-like datagram
// flow: no reliability or ordering constraints, boundaries required.
func UnreliableDatagramProfile() TransportProperties {
	p := NewTransportProperties()
	p.Reliability = Avoid
	p.PreserveOrder = NoPreference
	p.PreserveMsgBoundaries = Require
	p.CongestionControl = NoPreference
	p.PerMsgReliability = NoPreference
	return p
}

// Kind identifies one selection property for bridge callers that address
// properties by number rather than by struct field.
type Kind int

const (
	KindReliability Kind = iota
	KindPreserveMsgBoundaries
	KindPerMsgReliability
	KindPreserveOrder
	KindZeroRTTMsg
	KindMultistreaming
	KindFullChecksumSend
	KindFullChecksumRecv
	KindCongestionControl
	KindKeepAlive
	KindUseTemporaryLocalAddress
	KindSoftErrorNotify
	KindActiveReadBeforeSend
)

// String returns the RFC-style property name.
func (k Kind) String() string {
	switch k {
	case KindReliability:
		return "reliability"
	case KindPreserveMsgBoundaries:
		return "preserveMsgBoundaries"
	case KindPerMsgReliability:
		return "perMsgReliability"
	case KindPreserveOrder:
		return "preserveOrder"
	case KindZeroRTTMsg:
		return "zeroRttMsg"
	case KindMultistreaming:
		return "multistreaming"
	case KindFullChecksumSend:
		return "fullChecksumSend"
	case KindFullChecksumRecv:
		return "fullChecksumRecv"
	case KindCongestionControl:
		return "congestionControl"
	case KindKeepAlive:
		return "keepAlive"
	case KindUseTemporaryLocalAddress:
		return "useTemporaryLocalAddress"
	case KindSoftErrorNotify:
		return "softErrorNotify"
	case KindActiveReadBeforeSend:
		return "activeReadBeforeSend"
	default:
		return "unknown"
	}
}

// Set assigns a preference to the property identified by kind.
// Returns false for an unknown kind.
func (tp *TransportProperties) Set(kind Kind, pref Preference) bool {
	switch kind {
	case KindReliability:
		tp.Reliability = pref
	case KindPreserveMsgBoundaries:
		tp.PreserveMsgBoundaries = pref
	case KindPerMsgReliability:
		tp.PerMsgReliability = pref
	case KindPreserveOrder:
		tp.PreserveOrder = pref
	case KindZeroRTTMsg:
		tp.ZeroRTTMsg = pref
	case KindMultistreaming:
		tp.Multistreaming = pref
	case KindFullChecksumSend:
		tp.FullChecksumSend = pref
	case KindFullChecksumRecv:
		tp.FullChecksumRecv = pref
	case KindCongestionControl:
		tp.CongestionControl = pref
	case KindKeepAlive:
		tp.KeepAlive = pref
	case KindUseTemporaryLocalAddress:
		tp.UseTemporaryLocalAddress = pref
	case KindSoftErrorNotify:
		tp.SoftErrorNotify = pref
	case KindActiveReadBeforeSend:
		tp.ActiveReadBeforeSend = pref
	default:
		return false
	}
	return true
}

// Get returns the preference assigned to the property identified by kind.
// Returns false for an unknown kind.
func (tp TransportProperties) Get(kind Kind) (Preference, bool) {
	switch kind {
	case KindReliability:
		return tp.Reliability, true
	case KindPreserveMsgBoundaries:
		return tp.PreserveMsgBoundaries, true
	case KindPerMsgReliability:
		return tp.PerMsgReliability, true
	case KindPreserveOrder:
		return tp.PreserveOrder, true
	case KindZeroRTTMsg:
		return tp.ZeroRTTMsg, true
	case KindMultistreaming:
		return tp.Multistreaming, true
	case KindFullChecksumSend:
		return tp.FullChecksumSend, true
	case KindFullChecksumRecv:
		return tp.FullChecksumRecv, true
	case KindCongestionControl:
		return tp.CongestionControl, true
	case KindKeepAlive:
		return tp.KeepAlive, true
	case KindUseTemporaryLocalAddress:
		return tp.UseTemporaryLocalAddress, true
	case KindSoftErrorNotify:
		return tp.SoftErrorNotify, true
	case KindActiveReadBeforeSend:
		return tp.ActiveReadBeforeSend, true
	default:
		return NoPreference, false
	}
}
