package log

import "time"

// Event represents an engine log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID). During
	// establishment it names the connection being raced for.
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates data flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether the local side initiated or listened.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// LocalAddr is the local address (IP:port).
	LocalAddr string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Message layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Lifecycle state
	Candidate   *CandidateEvent   `cbor:"13,keyasint,omitempty"` // Establishment attempts
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn indicates incoming data.
	DirectionIn Direction = 0
	// DirectionOut indicates outgoing data.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerMessage is the message layer (send/receive operations).
	LayerMessage Layer = 1
	// LayerEngine is the lifecycle layer (selection, racing, state).
	LayerEngine Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerMessage:
		return "MESSAGE"
	case LayerEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a data transfer event.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryCandidate indicates an establishment attempt event.
	CategoryCandidate Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryCandidate:
		return "CANDIDATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates how the local endpoint entered the connection.
type Role uint8

const (
	// RoleInitiator indicates the local side initiated.
	RoleInitiator Role = 0
	// RoleListener indicates the local side accepted.
	RoleListener Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "INITIATOR"
	case RoleListener:
		return "LISTENER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a message-level send or receive operation.
type MessageEvent struct {
	// MessageID identifies the message (UUID, empty for receives that
	// carry no identifier).
	MessageID string `cbor:"1,keyasint,omitempty"`

	// Length is the payload length in bytes.
	Length int `cbor:"2,keyasint"`

	// EndOfMessage is false when the payload is a partial send.
	EndOfMessage bool `cbor:"3,keyasint"`

	// Partial indicates a partial delivery on the receive side.
	Partial bool `cbor:"4,keyasint,omitempty"`

	// Lifetime is the message lifetime, if one was set.
	// Stored as nanoseconds.
	Lifetime *time.Duration `cbor:"5,keyasint,omitempty"`

	// Priority is the message priority, if one was set.
	Priority *uint32 `cbor:"6,keyasint,omitempty"`

	// Expired indicates the message lifetime elapsed before the wire.
	Expired bool `cbor:"7,keyasint,omitempty"`
}

// StateChangeEvent captures lifecycle transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityListener indicates a listener state change.
	StateEntityListener StateEntity = 1
	// StateEntityEstablishment indicates an establishment phase change.
	StateEntityEstablishment StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityListener:
		return "LISTENER"
	case StateEntityEstablishment:
		return "ESTABLISHMENT"
	default:
		return "UNKNOWN"
	}
}

// CandidateEvent captures the fate of one establishment attempt.
type CandidateEvent struct {
	// Stack is the protocol stack attempted (e.g. "TCP_TLS").
	Stack string `cbor:"1,keyasint"`

	// Address is the resolved remote address attempted.
	Address string `cbor:"2,keyasint"`

	// Outcome of the attempt.
	Outcome CandidateOutcome `cbor:"3,keyasint"`

	// Elapsed is the time from attempt start to outcome.
	// Stored as nanoseconds.
	Elapsed time.Duration `cbor:"4,keyasint,omitempty"`

	// Reason carries the failure cause for failed attempts.
	Reason string `cbor:"5,keyasint,omitempty"`
}

// CandidateOutcome indicates how an establishment attempt ended.
type CandidateOutcome uint8

const (
	// OutcomeStarted indicates the attempt was launched.
	OutcomeStarted CandidateOutcome = 0
	// OutcomeWon indicates the attempt completed first.
	OutcomeWon CandidateOutcome = 1
	// OutcomeLost indicates the attempt succeeded after another had won.
	OutcomeLost CandidateOutcome = 2
	// OutcomeFailed indicates the attempt failed.
	OutcomeFailed CandidateOutcome = 3
)

// String returns the outcome name.
func (o CandidateOutcome) String() string {
	switch o {
	case OutcomeStarted:
		return "STARTED"
	case OutcomeWon:
		return "WON"
	case OutcomeLost:
		return "LOST"
	case OutcomeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`

	// Soft indicates the error did not terminate the connection.
	Soft bool `cbor:"5,keyasint,omitempty"`
}
