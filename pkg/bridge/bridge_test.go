package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taps-protocol/taps-go/internal/testcert"
	"github.com/taps-protocol/taps-go/pkg/framing"
	"github.com/taps-protocol/taps-go/pkg/pathmon"
	"github.com/taps-protocol/taps-go/pkg/property"
	"github.com/taps-protocol/taps-go/pkg/security"
	"github.com/taps-protocol/taps-go/pkg/taps"
	"github.com/taps-protocol/taps-go/pkg/version"
)

// initBridge initializes the runtime for one test and tears it down
// afterwards. The registry is process-wide, so every test balances its
// Init calls.
func initBridge(t *testing.T) {
	t.Helper()
	require.NoError(t, Init())
	t.Cleanup(func() { _ = Shutdown() })
	ClearLastError()
}

func TestVersionIsLibraryVersion(t *testing.T) {
	assert.Equal(t, version.Library, Version())
	assert.NotEmpty(t, Version())
}

// TestOperationsBeforeInit verifies every entry point refuses to run
// before Init, including operations on handles that never existed.
func TestOperationsBeforeInit(t *testing.T) {
	_, err := NewPreconnection()
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = ListInterfaces()
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = StartPathMonitor(func(ev pathmon.ChangeEvent, userData any) {}, nil)
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.ErrorIs(t, PreconnectionAddLocal(Handle(1), Endpoint{}), ErrNotInitialized)
	assert.ErrorIs(t, Shutdown(), ErrNotInitialized)
}

func TestInitShutdownNesting(t *testing.T) {
	require.NoError(t, Init())
	require.NoError(t, Init())

	h, err := NewPreconnection()
	require.NoError(t, err)

	// The inner Shutdown must not tear the runtime down.
	require.NoError(t, Shutdown())
	require.NoError(t, PreconnectionAddLocal(h, Endpoint{Hostname: "localhost"}))

	// The outer Shutdown invalidates every handle.
	require.NoError(t, Shutdown())
	err = PreconnectionAddLocal(h, Endpoint{Hostname: "localhost"})
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = Shutdown()
	assert.ErrorIs(t, err, ErrNotInitialized)

	// Handles do not come back with the next Init.
	initBridge(t)
	err = PreconnectionAddLocal(h, Endpoint{Hostname: "localhost"})
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestPreconnectionLifecycle(t *testing.T) {
	initBridge(t)

	h, err := NewPreconnection()
	require.NoError(t, err)
	require.NotZero(t, h)

	require.NoError(t, PreconnectionAddLocal(h, Endpoint{Hostname: "127.0.0.1"}))
	require.NoError(t, PreconnectionAddRemote(h, Endpoint{Hostname: "example.com", Port: 443}))
	require.NoError(t, PreconnectionSetTransportProperties(h, DefaultTransportConfig()))
	require.NoError(t, PreconnectionSetPreference(h, property.KindCongestionControl, property.Prohibit))
	require.NoError(t, PreconnectionSetSecurityParameters(h, SecurityConfig{Disabled: true}))

	require.NoError(t, PreconnectionFree(h))
	assert.ErrorIs(t, PreconnectionFree(h), ErrInvalidHandle)
	assert.ErrorIs(t, PreconnectionAddLocal(h, Endpoint{}), ErrInvalidHandle)
}

func TestPreconnectionSetPreferenceUnknownKind(t *testing.T) {
	initBridge(t)

	h, err := NewPreconnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = PreconnectionFree(h) })

	err = PreconnectionSetPreference(h, property.Kind(99), property.Avoid)
	require.Error(t, err)
	assert.ErrorIs(t, err, taps.ErrInvalidParameters)
	assert.Equal(t, CodeInvalidParameters, CodeOf(err))
}

// TestHandleKindMismatch verifies a handle of one kind is rejected by
// operations of every other kind.
func TestHandleKindMismatch(t *testing.T) {
	initBridge(t)

	h, err := NewPreconnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = PreconnectionFree(h) })

	assert.ErrorIs(t, ConnectionFree(h), ErrInvalidHandle)
	assert.ErrorIs(t, ListenerFree(h), ErrInvalidHandle)
	assert.ErrorIs(t, StopPathMonitor(h), ErrInvalidHandle)
	assert.ErrorIs(t, Abort(h), ErrInvalidHandle)

	_, err = ConnectionState(h)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestUnknownHandle(t *testing.T) {
	initBridge(t)

	st, err := ConnectionState(Handle(12345))
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.Equal(t, taps.StateClosed, st)

	assert.False(t, ListenerIsActive(Handle(12345)))

	_, err = ListenerLocalEndpoint(Handle(12345))
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestLastErrorLifecycle(t *testing.T) {
	initBridge(t)
	assert.Empty(t, LastError())

	err := PreconnectionFree(Handle(7))
	require.ErrorIs(t, err, ErrInvalidHandle)
	assert.Equal(t, err.Error(), LastError())

	ClearLastError()
	assert.Empty(t, LastError())
}

func TestCodeOfMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeSuccess},
		{"invalid handle", ErrInvalidHandle, CodeInvalidParameters},
		{"invalid parameters", taps.ErrInvalidParameters, CodeInvalidParameters},
		{"wrapped invalid parameters", fmt.Errorf("send: %w", taps.ErrInvalidParameters), CodeInvalidParameters},
		{"no remote endpoint", taps.ErrNoRemoteEndpoint, CodeInvalidParameters},
		{"no local endpoint", taps.ErrNoLocalEndpoint, CodeInvalidParameters},
		{"unsatisfiable selection", taps.ErrUnsatisfiable, CodeInvalidParameters},
		{"empty message", framing.ErrMessageEmpty, CodeInvalidParameters},
		{"no identity", security.ErrNoIdentity, CodeSecurityError},
		{"establishment failed", taps.ErrEstablishmentFailed, CodeEstablishmentFailed},
		{"rendezvous not supported", taps.ErrRendezvousNotSupported, CodeNotSupported},
		{"not supported", taps.ErrNotSupported, CodeNotSupported},
		{"timeout", taps.ErrTimeout, CodeTimeout},
		{"close timeout", taps.ErrCloseTimeout, CodeTimeout},
		{"deadline exceeded", context.DeadlineExceeded, CodeTimeout},
		{"io deadline", os.ErrDeadlineExceeded, CodeTimeout},
		{"not initialized", ErrNotInitialized, CodeInvalidState},
		{"invalid state", taps.ErrInvalidState, CodeInvalidState},
		{"connection closed", taps.ErrConnectionClosed, CodeConnectionFailed},
		{"listener stopped", taps.ErrListenerStopped, CodeConnectionFailed},
		{"canceled", context.Canceled, CodeConnectionFailed},
		{"message expired", taps.ErrMessageExpired, CodeSendFailed},
		{"message too large", framing.ErrMessageTooLarge, CodeSendFailed},
		{"eof", io.EOF, CodeIO},
		{"closed pipe", io.ErrClosedPipe, CodeIO},
		{"net closed", net.ErrClosed, CodeIO},
		{"raw errno", syscall.ECONNREFUSED, CodeIO},
		{"wrapped errno", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, CodeIO},
		{"unclassified", errors.New("something odd"), CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestCodeString(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeSuccess, "SUCCESS"},
		{CodeInvalidParameters, "INVALID_PARAMETERS"},
		{CodeEstablishmentFailed, "ESTABLISHMENT_FAILED"},
		{CodeConnectionFailed, "CONNECTION_FAILED"},
		{CodeSendFailed, "SEND_FAILED"},
		{CodeReceiveFailed, "RECEIVE_FAILED"},
		{CodeNotSupported, "NOT_SUPPORTED"},
		{CodeTimeout, "TIMEOUT"},
		{CodeInvalidState, "INVALID_STATE"},
		{CodeSecurityError, "SECURITY_ERROR"},
		{CodeIO, "IO_ERROR"},
		{CodeUnknown, "UNKNOWN"},
		{Code(-42), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.String())
	}
}

// TestCodeValuesAreStable pins the numeric boundary contract.
func TestCodeValuesAreStable(t *testing.T) {
	assert.EqualValues(t, 0, CodeSuccess)
	assert.EqualValues(t, -1, CodeInvalidParameters)
	assert.EqualValues(t, -2, CodeEstablishmentFailed)
	assert.EqualValues(t, -3, CodeConnectionFailed)
	assert.EqualValues(t, -4, CodeSendFailed)
	assert.EqualValues(t, -5, CodeReceiveFailed)
	assert.EqualValues(t, -6, CodeNotSupported)
	assert.EqualValues(t, -7, CodeTimeout)
	assert.EqualValues(t, -8, CodeInvalidState)
	assert.EqualValues(t, -9, CodeSecurityError)
	assert.EqualValues(t, -10, CodeIO)
	assert.EqualValues(t, -99, CodeUnknown)
}

// TestConnectionStateValuesAreStable pins the state numbering shared
// with boundary callers.
func TestConnectionStateValuesAreStable(t *testing.T) {
	assert.EqualValues(t, 0, taps.StateEstablishing)
	assert.EqualValues(t, 1, taps.StateReady)
	assert.EqualValues(t, 2, taps.StateClosing)
	assert.EqualValues(t, 3, taps.StateClosed)
	assert.EqualValues(t, 4, taps.StateFailed)
}

func TestDefaultTransportConfigMatchesEngineDefaults(t *testing.T) {
	tp := property.NewTransportProperties()
	cfg := DefaultTransportConfig()

	assert.Equal(t, tp.Reliability, cfg.Reliability)
	assert.Equal(t, tp.PreserveMsgBoundaries, cfg.PreserveMsgBoundaries)
	assert.Equal(t, tp.PreserveOrder, cfg.PreserveOrder)
	assert.Equal(t, tp.CongestionControl, cfg.CongestionControl)
	assert.Equal(t, tp.Direction, cfg.Direction)
	assert.Equal(t, tp.Multipath, cfg.Multipath)
}

func TestTransportConfigToProperties(t *testing.T) {
	cfg := DefaultTransportConfig()
	cfg.PreserveMsgBoundaries = property.Prefer
	cfg.CongestionControl = property.Prohibit
	cfg.Direction = property.UnidirectionalSend

	tp := cfg.toProperties()
	assert.Equal(t, property.Require, tp.Reliability)
	assert.Equal(t, property.Prefer, tp.PreserveMsgBoundaries)
	assert.Equal(t, property.Prohibit, tp.CongestionControl)
	assert.Equal(t, property.UnidirectionalSend, tp.Direction)
}

func TestEndpointConversion(t *testing.T) {
	t.Run("literal IP becomes address", func(t *testing.T) {
		r := Endpoint{Hostname: "127.0.0.1", Port: 443}.toRemote()
		require.NotNil(t, r.Address)
		assert.True(t, r.Address.Equal(net.ParseIP("127.0.0.1")))
		assert.Empty(t, r.Hostname)
		assert.EqualValues(t, 443, r.Port)
	})

	t.Run("IPv6 literal becomes address", func(t *testing.T) {
		l := Endpoint{Hostname: "::1"}.toLocal()
		require.NotNil(t, l.Address)
		assert.True(t, l.Address.Equal(net.ParseIP("::1")))
	})

	t.Run("name stays a hostname", func(t *testing.T) {
		r := Endpoint{Hostname: "example.com", Service: "https"}.toRemote()
		assert.Nil(t, r.Address)
		assert.Equal(t, "example.com", r.Hostname)
		assert.Equal(t, "https", r.Service)
	})

	t.Run("interface carried to local", func(t *testing.T) {
		l := Endpoint{Interface: "lo", Port: 8080}.toLocal()
		assert.Equal(t, "lo", l.Interface)
		assert.EqualValues(t, 8080, l.Port)
	})

	t.Run("zero endpoint stays empty", func(t *testing.T) {
		r := Endpoint{}.toRemote()
		assert.Nil(t, r.Address)
		assert.Empty(t, r.Hostname)
		assert.Zero(t, r.Port)
	})
}

func TestSecurityConfigConversion(t *testing.T) {
	t.Run("zero value requires TLS", func(t *testing.T) {
		params, err := SecurityConfig{}.toParameters()
		require.NoError(t, err)
		assert.False(t, params.Disabled())
		assert.False(t, params.Opportunistic())
	})

	t.Run("disabled", func(t *testing.T) {
		params, err := SecurityConfig{Disabled: true}.toParameters()
		require.NoError(t, err)
		assert.True(t, params.Disabled())
	})

	t.Run("opportunistic", func(t *testing.T) {
		params, err := SecurityConfig{Opportunistic: true}.toParameters()
		require.NoError(t, err)
		assert.True(t, params.Opportunistic())
	})

	t.Run("disabled and opportunistic conflict", func(t *testing.T) {
		_, err := SecurityConfig{Disabled: true, Opportunistic: true}.toParameters()
		assert.ErrorIs(t, err, taps.ErrInvalidParameters)
	})

	t.Run("pinned certificate", func(t *testing.T) {
		bundle := testcert.Generate(t)
		params, err := SecurityConfig{
			PinnedServerCertificate: bundle.ServerCert.Certificate[0],
		}.toParameters()
		require.NoError(t, err)
		assert.False(t, params.Disabled())
	})

	t.Run("malformed pinned certificate", func(t *testing.T) {
		_, err := SecurityConfig{PinnedServerCertificate: []byte("not DER")}.toParameters()
		assert.ErrorIs(t, err, taps.ErrInvalidParameters)
	})

	t.Run("identity key pair", func(t *testing.T) {
		bundle := testcert.Generate(t)
		certPEM, keyPEM := testcert.PEM(t, bundle.ServerCert)
		params, err := SecurityConfig{
			IdentityCertPEM: certPEM,
			IdentityKeyPEM:  keyPEM,
		}.toParameters()
		require.NoError(t, err)
		require.Len(t, params.Identity, 1)
	})

	t.Run("mismatched identity key pair", func(t *testing.T) {
		bundle := testcert.Generate(t)
		certPEM, _ := testcert.PEM(t, bundle.ServerCert)
		_, otherKey := testcert.PEM(t, bundle.ClientCert)
		_, err := SecurityConfig{
			IdentityCertPEM: certPEM,
			IdentityKeyPEM:  otherKey,
		}.toParameters()
		assert.ErrorIs(t, err, taps.ErrInvalidParameters)
	})

	t.Run("pre-shared key", func(t *testing.T) {
		params, err := SecurityConfig{
			PreSharedKey: []byte("0123456789abcdef0123456789abcdef"),
			PSKIdentity:  "sensor-7",
		}.toParameters()
		require.NoError(t, err)
		assert.False(t, params.Disabled())
	})
}

func TestMessageOptionsBuild(t *testing.T) {
	t.Run("zero options keep engine defaults", func(t *testing.T) {
		msg := MessageOptions{}.build([]byte("x"))
		assert.Empty(t, msg.ID())
		assert.Zero(t, msg.Lifetime())
		assert.Equal(t, taps.DefaultMessagePriority, msg.Priority())
		assert.False(t, msg.IsIdempotent())
		assert.False(t, msg.IsFinal())
		assert.True(t, msg.EndOfMessage())
	})

	t.Run("all options applied", func(t *testing.T) {
		opts := MessageOptions{
			ID:             "m1",
			LifetimeMillis: 1500,
			Priority:       7,
			Idempotent:     true,
			Final:          true,
			Partial:        true,
		}
		msg := opts.build([]byte("payload"))
		assert.Equal(t, "m1", msg.ID())
		assert.Equal(t, 1500*time.Millisecond, msg.Lifetime())
		assert.EqualValues(t, 7, msg.Priority())
		assert.True(t, msg.IsIdempotent())
		assert.True(t, msg.IsFinal())
		assert.False(t, msg.EndOfMessage())
		assert.Equal(t, []byte("payload"), msg.Payload())
	})
}

// TestSendReceiveValidation drives the synchronous argument checks
// against a connection still establishing, where no engine connection
// is bound yet.
func TestSendReceiveValidation(t *testing.T) {
	initBridge(t)

	h, _ := reg.register(kindConnection, &connState{})
	t.Cleanup(func() { _ = ConnectionFree(h) })

	onDone := func(Code, string, any) {}
	onRecv := func([]byte, bool, any) {}

	st, err := ConnectionState(h)
	require.NoError(t, err)
	assert.Equal(t, taps.StateEstablishing, st)

	assert.ErrorIs(t, Send(h, []byte("x"), MessageOptions{}, nil, nil), taps.ErrInvalidParameters)
	assert.ErrorIs(t, Send(h, nil, MessageOptions{}, onDone, nil), taps.ErrInvalidParameters)
	assert.ErrorIs(t, Send(h, []byte("x"), MessageOptions{}, onDone, nil), taps.ErrInvalidState)

	assert.ErrorIs(t, Receive(h, 0, 0, nil, onDone, nil), taps.ErrInvalidParameters)
	assert.ErrorIs(t, Receive(h, 0, 0, onRecv, nil, nil), taps.ErrInvalidParameters)
	assert.ErrorIs(t, Receive(h, 0, 0, onRecv, onDone, nil), taps.ErrInvalidState)

	assert.ErrorIs(t, Close(h, nil, nil), taps.ErrInvalidParameters)
	assert.ErrorIs(t, Close(h, onDone, nil), taps.ErrInvalidState)

	// Abort of a connection with no engine object is a no-op.
	assert.NoError(t, Abort(h))
}

func TestPathMonitorLifecycle(t *testing.T) {
	initBridge(t)

	_, err := ListInterfaces()
	require.NoError(t, err)

	_, err = StartPathMonitor(nil, nil)
	assert.ErrorIs(t, err, taps.ErrInvalidParameters)

	h, err := StartPathMonitor(func(ev pathmon.ChangeEvent, userData any) {}, nil)
	require.NoError(t, err)
	require.NotZero(t, h)

	require.NoError(t, StopPathMonitor(h))
	assert.ErrorIs(t, StopPathMonitor(h), ErrInvalidHandle)
}
