package taps

import (
	"time"

	"github.com/taps-protocol/taps-go/pkg/framing"
)

// Establishment and connection defaults.
const (
	// DefaultAttemptDelay staggers candidate connection attempts during
	// racing, following the Happy Eyeballs recommendation.
	DefaultAttemptDelay = 250 * time.Millisecond

	// DefaultMaxParallelAttempts bounds how many candidates may dial
	// concurrently during a single establishment race.
	DefaultMaxParallelAttempts = 8

	// DefaultEstablishTimeout bounds the whole establishment race,
	// resolution included.
	DefaultEstablishTimeout = 30 * time.Second

	// DefaultCloseTimeout bounds the graceful flush of queued sends
	// during Close.
	DefaultCloseTimeout = 5 * time.Second

	// DefaultReadTimeout and DefaultWriteTimeout bound individual
	// transport reads and writes. Zero disables the deadline.
	DefaultReadTimeout  = 0 * time.Second
	DefaultWriteTimeout = 30 * time.Second

	// DefaultMessagePriority is the priority assigned to messages that
	// do not set one. Lower values are more urgent.
	DefaultMessagePriority uint32 = 100
)

// EstablishConfig tunes candidate racing during Initiate.
type EstablishConfig struct {
	// AttemptDelay is the stagger between consecutive candidate starts.
	AttemptDelay time.Duration

	// MaxParallelAttempts caps concurrently dialing candidates.
	MaxParallelAttempts int

	// EstablishTimeout bounds the whole race.
	EstablishTimeout time.Duration
}

// DefaultEstablishConfig returns the racing defaults.
func DefaultEstablishConfig() EstablishConfig {
	return EstablishConfig{
		AttemptDelay:        DefaultAttemptDelay,
		MaxParallelAttempts: DefaultMaxParallelAttempts,
		EstablishTimeout:    DefaultEstablishTimeout,
	}
}

func (c EstablishConfig) withDefaults() EstablishConfig {
	if c.AttemptDelay <= 0 {
		c.AttemptDelay = DefaultAttemptDelay
	}
	if c.MaxParallelAttempts <= 0 {
		c.MaxParallelAttempts = DefaultMaxParallelAttempts
	}
	if c.EstablishTimeout <= 0 {
		c.EstablishTimeout = DefaultEstablishTimeout
	}
	return c
}

// ConnConfig tunes an established connection.
type ConnConfig struct {
	// MaxMessageSize caps framed message payloads.
	MaxMessageSize uint32

	// CloseTimeout bounds the graceful flush during Close.
	CloseTimeout time.Duration

	// ReadTimeout and WriteTimeout bound individual transport reads and
	// writes. Zero disables the deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConnConfig returns the connection defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		MaxMessageSize: framing.DefaultMaxMessageSize,
		CloseTimeout:   DefaultCloseTimeout,
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
	}
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = framing.DefaultMaxMessageSize
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	return c
}

// ListenerConfig tunes a listener.
type ListenerConfig struct {
	// ConnectionLimit caps live accepted connections. Zero means
	// unlimited. Accepts beyond the limit are closed immediately.
	ConnectionLimit int
}

// DefaultListenerConfig returns the listener defaults.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{}
}
