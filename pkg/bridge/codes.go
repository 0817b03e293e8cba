package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/taps-protocol/taps-go/pkg/framing"
	"github.com/taps-protocol/taps-go/pkg/security"
	"github.com/taps-protocol/taps-go/pkg/taps"
)

// Code is the numeric result of a bridge operation. Zero is success;
// failures are negative. The values are part of the boundary contract
// and never change.
type Code int32

const (
	CodeSuccess             Code = 0
	CodeInvalidParameters   Code = -1
	CodeEstablishmentFailed Code = -2
	CodeConnectionFailed    Code = -3
	CodeSendFailed          Code = -4
	CodeReceiveFailed       Code = -5
	CodeNotSupported        Code = -6
	CodeTimeout             Code = -7
	CodeInvalidState        Code = -8
	CodeSecurityError       Code = -9
	CodeIO                  Code = -10
	CodeUnknown             Code = -99
)

// String returns the code name.
func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "SUCCESS"
	case CodeInvalidParameters:
		return "INVALID_PARAMETERS"
	case CodeEstablishmentFailed:
		return "ESTABLISHMENT_FAILED"
	case CodeConnectionFailed:
		return "CONNECTION_FAILED"
	case CodeSendFailed:
		return "SEND_FAILED"
	case CodeReceiveFailed:
		return "RECEIVE_FAILED"
	case CodeNotSupported:
		return "NOT_SUPPORTED"
	case CodeTimeout:
		return "TIMEOUT"
	case CodeInvalidState:
		return "INVALID_STATE"
	case CodeSecurityError:
		return "SECURITY_ERROR"
	case CodeIO:
		return "IO_ERROR"
	case CodeUnknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

// CodeOf maps an engine or bridge error to its boundary code. A shim
// that returns codes instead of Go errors calls this on every error the
// bridge hands back.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeSuccess
	case errors.Is(err, ErrInvalidHandle),
		errors.Is(err, taps.ErrInvalidParameters),
		errors.Is(err, taps.ErrNoRemoteEndpoint),
		errors.Is(err, taps.ErrNoLocalEndpoint),
		errors.Is(err, taps.ErrUnsatisfiable),
		errors.Is(err, framing.ErrMessageEmpty):
		return CodeInvalidParameters
	case errors.Is(err, security.ErrNoIdentity):
		return CodeSecurityError
	case errors.Is(err, taps.ErrEstablishmentFailed):
		return CodeEstablishmentFailed
	case errors.Is(err, taps.ErrRendezvousNotSupported),
		errors.Is(err, taps.ErrNotSupported):
		return CodeNotSupported
	case errors.Is(err, taps.ErrTimeout),
		errors.Is(err, taps.ErrCloseTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrNotInitialized),
		errors.Is(err, taps.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, taps.ErrConnectionClosed),
		errors.Is(err, taps.ErrListenerStopped),
		errors.Is(err, context.Canceled):
		return CodeConnectionFailed
	case errors.Is(err, taps.ErrMessageExpired),
		errors.Is(err, framing.ErrMessageTooLarge):
		return CodeSendFailed
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		isSyscallError(err):
		return CodeIO
	default:
		return CodeUnknown
	}
}

func isSyscallError(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno)
}
