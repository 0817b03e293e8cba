package taps

import (
	"time"

	"github.com/taps-protocol/taps-go/pkg/endpoint"
)

// Message is the unit of data exchanged over a Connection. Messages are
// built with NewMessage and refined with the chainable With* methods
// before being handed to Send. The engine does not copy the payload;
// callers must not modify it until the send completes.
type Message struct {
	payload      []byte
	id           string
	lifetime     time.Duration
	priority     uint32
	idempotent   bool
	final        bool
	endOfMessage bool
}

// NewMessage builds a complete message carrying payload with default
// properties: no lifetime, default priority, end of message set.
func NewMessage(payload []byte) *Message {
	return &Message{
		payload:      payload,
		priority:     DefaultMessagePriority,
		endOfMessage: true,
	}
}

// NewMessageString builds a complete message from a string payload.
func NewMessageString(payload string) *Message {
	return NewMessage([]byte(payload))
}

// WithLifetime bounds how long the message may wait before reaching the
// wire. A message whose lifetime elapses before its send starts is
// dropped and reported as expired. Zero means unlimited.
func (m *Message) WithLifetime(d time.Duration) *Message {
	m.lifetime = d
	return m
}

// WithPriority sets the message priority. Lower values are more urgent.
func (m *Message) WithPriority(p uint32) *Message {
	m.priority = p
	return m
}

// WithID sets an application-chosen identifier reported back in send
// completion events. Send assigns one when empty.
func (m *Message) WithID(id string) *Message {
	m.id = id
	return m
}

// Idempotent marks the message as safe to transmit as early data.
func (m *Message) Idempotent() *Message {
	m.idempotent = true
	return m
}

// Final marks the message as the last one in its direction. The sending
// side is closed once it is delivered.
func (m *Message) Final() *Message {
	m.final = true
	return m
}

// Partial marks the message as a non-final chunk of a larger logical
// message. Sending it does not signal logical message completion; the
// chunk carrying the end must be a regular (non-partial) message.
func (m *Message) Partial() *Message {
	m.endOfMessage = false
	return m
}

// Payload returns the message payload.
func (m *Message) Payload() []byte { return m.payload }

// ID returns the message identifier, empty until assigned.
func (m *Message) ID() string { return m.id }

// Lifetime returns the message lifetime, zero when unlimited.
func (m *Message) Lifetime() time.Duration { return m.lifetime }

// Priority returns the message priority.
func (m *Message) Priority() uint32 { return m.priority }

// IsIdempotent reports whether the message may be sent as early data.
func (m *Message) IsIdempotent() bool { return m.idempotent }

// IsFinal reports whether the message closes the sending direction.
func (m *Message) IsFinal() bool { return m.final }

// EndOfMessage reports whether this chunk completes its logical message.
func (m *Message) EndOfMessage() bool { return m.endOfMessage }

// Len returns the payload length in bytes.
func (m *Message) Len() int { return len(m.payload) }

// Empty reports whether the payload is empty.
func (m *Message) Empty() bool { return len(m.payload) == 0 }

// ECNMarking is the ECN codepoint observed on a received message.
type ECNMarking int

const (
	ECNNotECT ECNMarking = iota
	ECNECT0
	ECNECT1
	ECNCE
)

func (e ECNMarking) String() string {
	switch e {
	case ECNNotECT:
		return "NOT_ECT"
	case ECNECT0:
		return "ECT0"
	case ECNECT1:
		return "ECT1"
	case ECNCE:
		return "CE"
	default:
		return "UNKNOWN"
	}
}

// MessageContext carries receive-side metadata delivered alongside each
// message.
type MessageContext struct {
	// ReceivedAt is when the engine completed receiving the message.
	ReceivedAt time.Time

	// Local and Remote identify the path endpoints the message used.
	Local  endpoint.Local
	Remote endpoint.Remote

	// ECN is the ECN codepoint observed on the message, when available.
	ECN ECNMarking

	// EarlyData reports whether the message arrived before the handshake
	// completed.
	EarlyData bool

	// Final reports whether the delivered payload completes a message.
	// It is false for partial deliveries of a larger message and for
	// unframed byte-stream chunks.
	Final bool
}
