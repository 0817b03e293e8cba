package taps

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by preconnection validation and connection operations.
var (
	// ErrNoRemoteEndpoint is returned by Initiate when the preconnection
	// has no remote endpoint to connect to.
	ErrNoRemoteEndpoint = errors.New("no remote endpoint specified")

	// ErrNoLocalEndpoint is returned by Listen when the preconnection
	// has no local endpoint to bind.
	ErrNoLocalEndpoint = errors.New("no local endpoint specified")

	// ErrUnsatisfiable is returned when the selection properties rule out
	// every available protocol stack.
	ErrUnsatisfiable = errors.New("transport properties not satisfiable by any protocol stack")

	// ErrRendezvousNotSupported is returned by Rendezvous, which requires
	// peer-to-peer NAT traversal support.
	ErrRendezvousNotSupported = errors.New("rendezvous not supported")

	// ErrEstablishmentFailed is the sentinel wrapped by EstablishmentError.
	ErrEstablishmentFailed = errors.New("connection establishment failed")

	// ErrNotSupported is returned for operations the selected protocol
	// stack or connection direction cannot perform.
	ErrNotSupported = errors.New("operation not supported")

	// ErrInvalidState is returned when an operation is attempted in a
	// connection state that does not permit it.
	ErrInvalidState = errors.New("invalid connection state")

	// ErrConnectionClosed is returned by operations on a closed, closing
	// or failed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrMessageExpired is returned when a message lifetime elapses
	// before the message reaches the wire.
	ErrMessageExpired = errors.New("message expired before sending")

	// ErrCloseTimeout is returned when queued sends cannot be flushed
	// within the close timeout.
	ErrCloseTimeout = errors.New("close timed out flushing queued sends")

	// ErrListenerStopped is returned for operations on a stopped listener.
	ErrListenerStopped = errors.New("listener stopped")

	// ErrInvalidParameters is returned when operation arguments are
	// malformed.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrTimeout is returned when an operation exceeds its deadline.
	ErrTimeout = errors.New("operation timed out")
)

// AttemptError records the failure of a single establishment candidate.
type AttemptError struct {
	Stack   string
	Address string
	Err     error
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stack, e.Address, e.Err)
}

func (e AttemptError) Unwrap() error {
	return e.Err
}

// EstablishmentError aggregates the outcome of a failed establishment
// race: one AttemptError per candidate tried, or a single Reason when
// the race never started (resolution failure, no usable candidates).
// It matches ErrEstablishmentFailed under errors.Is.
type EstablishmentError struct {
	Remote   string
	Reason   string
	Attempts []AttemptError
}

func (e *EstablishmentError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "connection establishment failed for %s", e.Remote)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Attempts) > 0 {
		fmt.Fprintf(&b, ": all %d candidates failed", len(e.Attempts))
		for _, a := range e.Attempts {
			b.WriteString("; ")
			b.WriteString(a.Error())
		}
	}
	return b.String()
}

func (e *EstablishmentError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, ErrEstablishmentFailed)
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}

func newEstablishmentError(remote, reason string) *EstablishmentError {
	return &EstablishmentError{Remote: remote, Reason: reason}
}
