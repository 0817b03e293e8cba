package taps

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptErrorFormat(t *testing.T) {
	attempt := AttemptError{
		Stack:   "tcp",
		Address: "192.0.2.1:443",
		Err:     syscall.ECONNREFUSED,
	}

	assert.Contains(t, attempt.Error(), "tcp")
	assert.Contains(t, attempt.Error(), "192.0.2.1:443")
	assert.ErrorIs(t, attempt, syscall.ECONNREFUSED)
}

func TestEstablishmentErrorMatchesSentinel(t *testing.T) {
	err := &EstablishmentError{
		Remote: "example.com:443",
		Attempts: []AttemptError{
			{Stack: "tcp+tls", Address: "192.0.2.1:443", Err: syscall.ECONNREFUSED},
			{Stack: "tcp+tls", Address: "192.0.2.2:443", Err: syscall.ETIMEDOUT},
		},
	}

	require.ErrorIs(t, err, ErrEstablishmentFailed)

	// Attempt causes stay reachable through the chain.
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.ErrorIs(t, err, syscall.ETIMEDOUT)
}

func TestEstablishmentErrorMessage(t *testing.T) {
	err := &EstablishmentError{
		Remote: "example.com:443",
		Attempts: []AttemptError{
			{Stack: "tcp", Address: "192.0.2.1:80", Err: errors.New("connection refused")},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "example.com:443")
	assert.Contains(t, msg, "all 1 candidates failed")
	assert.Contains(t, msg, "192.0.2.1:80")
}

func TestEstablishmentErrorReasonOnly(t *testing.T) {
	err := newEstablishmentError("peer.local:9000", "resolution failed: no addresses found")

	require.ErrorIs(t, err, ErrEstablishmentFailed)
	assert.Contains(t, err.Error(), "peer.local:9000")
	assert.Contains(t, err.Error(), "resolution failed")
	assert.Empty(t, err.Attempts)
}

func TestErrorsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNoRemoteEndpoint,
		ErrNoLocalEndpoint,
		ErrUnsatisfiable,
		ErrRendezvousNotSupported,
		ErrEstablishmentFailed,
		ErrNotSupported,
		ErrInvalidState,
		ErrConnectionClosed,
		ErrMessageExpired,
		ErrCloseTimeout,
		ErrListenerStopped,
		ErrInvalidParameters,
		ErrTimeout,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.NotErrorIs(t, a, b)
		}
	}
}
