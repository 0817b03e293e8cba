package bridge

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taps-protocol/taps-go/internal/testcert"
	"github.com/taps-protocol/taps-go/pkg/property"
	"github.com/taps-protocol/taps-go/pkg/taps"
)

type completion struct {
	code    Code
	message string
}

type recvResult struct {
	payload []byte
	final   bool
}

func awaitCompletion(t *testing.T, ch <-chan completion) completion {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(10 * time.Second):
		t.Fatal("completion callback not fired")
		return completion{}
	}
}

func awaitHandle(t *testing.T, ch <-chan Handle) Handle {
	t.Helper()
	select {
	case h := <-ch:
		return h
	case <-time.After(10 * time.Second):
		t.Fatal("connection callback not fired")
		return 0
	}
}

func awaitRecv(t *testing.T, ch <-chan recvResult) recvResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("receive callback not fired")
		return recvResult{}
	}
}

// framedConfig is the reliable ordered profile with framed message
// boundaries used by the loopback tests.
func framedConfig() TransportConfig {
	cfg := DefaultTransportConfig()
	cfg.PreserveMsgBoundaries = property.Prefer
	return cfg
}

// listenCleartext starts a framed cleartext listener on an ephemeral
// loopback port. No connection handler is installed.
func listenCleartext(t *testing.T) (Handle, uint16) {
	t.Helper()

	p, err := NewPreconnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = PreconnectionFree(p) })

	require.NoError(t, PreconnectionSetTransportProperties(p, framedConfig()))
	require.NoError(t, PreconnectionSetSecurityParameters(p, SecurityConfig{Disabled: true}))
	require.NoError(t, PreconnectionAddLocal(p, Endpoint{Hostname: "127.0.0.1", Port: 0}))

	lh, err := Listen(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ListenerFree(lh) })

	ep, err := ListenerLocalEndpoint(lh)
	require.NoError(t, err)
	require.NotZero(t, ep.Port)
	return lh, ep.Port
}

// dialCleartext initiates a framed cleartext connection to a loopback
// port and waits for the ready callback.
func dialCleartext(t *testing.T, port uint16) Handle {
	t.Helper()

	p, err := NewPreconnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = PreconnectionFree(p) })

	require.NoError(t, PreconnectionSetTransportProperties(p, framedConfig()))
	require.NoError(t, PreconnectionSetSecurityParameters(p, SecurityConfig{Disabled: true}))
	require.NoError(t, PreconnectionAddRemote(p, Endpoint{Hostname: "127.0.0.1", Port: port}))

	ready := make(chan Handle, 1)
	failed := make(chan completion, 1)
	ch, err := Initiate(p,
		func(conn Handle, _ any) { ready <- conn },
		func(code Code, message string, _ any) { failed <- completion{code, message} },
		nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ConnectionFree(ch) })

	select {
	case conn := <-ready:
		require.Equal(t, ch, conn)
	case c := <-failed:
		t.Fatalf("establishment failed: %s (%s)", c.message, c.code)
	case <-time.After(10 * time.Second):
		t.Fatal("establishment callback not fired")
	}
	return ch
}

// deadPort returns a loopback port with nothing listening on it.
func deadPort(t *testing.T) uint16 {
	t.Helper()
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(probe.Addr().(*net.TCPAddr).Port)
	require.NoError(t, probe.Close())
	return port
}

// TestBridgeEndToEnd drives the whole handle surface over one loopback
// connection: listen, initiate, a message each way, graceful close with
// the end-of-stream marker, and handle release.
func TestBridgeEndToEnd(t *testing.T) {
	initBridge(t)

	lh, port := listenCleartext(t)
	require.True(t, ListenerIsActive(lh))
	require.NoError(t, ListenerSetConnectionLimit(lh, 8))

	conns := make(chan Handle, 4)
	require.NoError(t, ListenerSetHandler(lh, func(conn Handle, _ any) { conns <- conn }, nil))

	client := dialCleartext(t, port)
	st, err := ConnectionState(client)
	require.NoError(t, err)
	require.Equal(t, taps.StateReady, st)

	server := awaitHandle(t, conns)
	t.Cleanup(func() { _ = ConnectionFree(server) })
	st, err = ConnectionState(server)
	require.NoError(t, err)
	require.Equal(t, taps.StateReady, st)

	// Client to server.
	sendDone := make(chan completion, 1)
	require.NoError(t, Send(client, []byte("ping"), MessageOptions{ID: "m1"},
		func(code Code, message string, _ any) { sendDone <- completion{code, message} }, nil))
	c := awaitCompletion(t, sendDone)
	assert.Equal(t, CodeSuccess, c.code)
	assert.Empty(t, c.message)

	recvs := make(chan recvResult, 1)
	recvErrs := make(chan completion, 1)
	onRecv := func(payload []byte, final bool, _ any) { recvs <- recvResult{payload, final} }
	onRecvErr := func(code Code, message string, _ any) { recvErrs <- completion{code, message} }

	require.NoError(t, Receive(server, 0, 0, onRecv, onRecvErr, nil))
	r := awaitRecv(t, recvs)
	assert.Equal(t, "ping", string(r.payload))
	assert.True(t, r.final)

	// Server back to client.
	require.NoError(t, Send(server, []byte("pong"), MessageOptions{},
		func(code Code, message string, _ any) { sendDone <- completion{code, message} }, nil))
	assert.Equal(t, CodeSuccess, awaitCompletion(t, sendDone).code)

	clientRecvs := make(chan recvResult, 1)
	require.NoError(t, Receive(client, 0, 0,
		func(payload []byte, final bool, _ any) { clientRecvs <- recvResult{payload, final} },
		onRecvErr, nil))
	assert.Equal(t, "pong", string(awaitRecv(t, clientRecvs).payload))

	// Graceful close: the peer sees one final empty delivery, then a
	// closed error.
	closed := make(chan completion, 1)
	require.NoError(t, Close(client,
		func(code Code, message string, _ any) { closed <- completion{code, message} }, nil))
	assert.Equal(t, CodeSuccess, awaitCompletion(t, closed).code)

	st, err = ConnectionState(client)
	require.NoError(t, err)
	assert.Equal(t, taps.StateClosed, st)

	require.NoError(t, Receive(server, 0, 0, onRecv, onRecvErr, nil))
	r = awaitRecv(t, recvs)
	assert.Empty(t, r.payload)
	assert.True(t, r.final)

	require.NoError(t, Receive(server, 0, 0, onRecv, onRecvErr, nil))
	assert.Equal(t, CodeConnectionFailed, awaitCompletion(t, recvErrs).code)

	// Handles release exactly once.
	require.NoError(t, ConnectionFree(server))
	assert.ErrorIs(t, ConnectionFree(server), ErrInvalidHandle)
	require.NoError(t, ConnectionFree(client))

	require.NoError(t, ListenerStop(lh))
	assert.False(t, ListenerIsActive(lh))
	require.NoError(t, ListenerStop(lh))
	require.NoError(t, ListenerFree(lh))
	assert.ErrorIs(t, ListenerFree(lh), ErrInvalidHandle)
}

// TestBridgeTLSEndToEnd runs the handshake through the boundary
// security configs: the listener loads its identity from PEM bytes and
// the client pins the server certificate in DER form.
func TestBridgeTLSEndToEnd(t *testing.T) {
	initBridge(t)
	bundle := testcert.Generate(t)
	certPEM, keyPEM := testcert.PEM(t, bundle.ServerCert)

	p, err := NewPreconnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = PreconnectionFree(p) })
	require.NoError(t, PreconnectionSetTransportProperties(p, framedConfig()))
	require.NoError(t, PreconnectionSetSecurityParameters(p, SecurityConfig{
		IdentityCertPEM: certPEM,
		IdentityKeyPEM:  keyPEM,
	}))
	require.NoError(t, PreconnectionAddLocal(p, Endpoint{Hostname: "127.0.0.1", Port: 0}))

	lh, err := Listen(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ListenerFree(lh) })
	conns := make(chan Handle, 1)
	require.NoError(t, ListenerSetHandler(lh, func(conn Handle, _ any) { conns <- conn }, nil))
	ep, err := ListenerLocalEndpoint(lh)
	require.NoError(t, err)

	cp, err := NewPreconnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = PreconnectionFree(cp) })
	require.NoError(t, PreconnectionSetTransportProperties(cp, framedConfig()))
	require.NoError(t, PreconnectionSetSecurityParameters(cp, SecurityConfig{
		PinnedServerCertificate: bundle.ServerCert.Certificate[0],
	}))
	require.NoError(t, PreconnectionAddRemote(cp, Endpoint{Hostname: "127.0.0.1", Port: ep.Port}))

	ready := make(chan Handle, 1)
	failed := make(chan completion, 1)
	client, err := Initiate(cp,
		func(conn Handle, _ any) { ready <- conn },
		func(code Code, message string, _ any) { failed <- completion{code, message} },
		nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ConnectionFree(client) })

	select {
	case <-ready:
	case c := <-failed:
		t.Fatalf("TLS establishment failed: %s (%s)", c.message, c.code)
	case <-time.After(10 * time.Second):
		t.Fatal("establishment callback not fired")
	}

	server := awaitHandle(t, conns)
	t.Cleanup(func() { _ = ConnectionFree(server) })

	sendDone := make(chan completion, 1)
	require.NoError(t, Send(client, []byte("over tls"), MessageOptions{},
		func(code Code, message string, _ any) { sendDone <- completion{code, message} }, nil))
	require.Equal(t, CodeSuccess, awaitCompletion(t, sendDone).code)

	recvs := make(chan recvResult, 1)
	recvErrs := make(chan completion, 1)
	require.NoError(t, Receive(server, 0, 0,
		func(payload []byte, final bool, _ any) { recvs <- recvResult{payload, final} },
		func(code Code, message string, _ any) { recvErrs <- completion{code, message} },
		nil))
	assert.Equal(t, "over tls", string(awaitRecv(t, recvs).payload))

	closed := make(chan completion, 1)
	require.NoError(t, Close(client,
		func(code Code, message string, _ any) { closed <- completion{code, message} }, nil))
	assert.Equal(t, CodeSuccess, awaitCompletion(t, closed).code)
}

// TestInitiateFailureFiresErrorCallback verifies establishment against
// a dead port resolves through the error callback and leaves the handle
// in the failed state until freed.
func TestInitiateFailureFiresErrorCallback(t *testing.T) {
	initBridge(t)
	port := deadPort(t)

	p, err := NewPreconnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = PreconnectionFree(p) })
	require.NoError(t, PreconnectionSetTransportProperties(p, framedConfig()))
	require.NoError(t, PreconnectionSetSecurityParameters(p, SecurityConfig{Disabled: true}))
	require.NoError(t, PreconnectionAddRemote(p, Endpoint{Hostname: "127.0.0.1", Port: port}))

	failed := make(chan completion, 1)
	ch, err := Initiate(p,
		func(conn Handle, _ any) { t.Error("ready callback fired for dead port") },
		func(code Code, message string, _ any) { failed <- completion{code, message} },
		nil)
	require.NoError(t, err)

	c := awaitCompletion(t, failed)
	assert.Equal(t, CodeEstablishmentFailed, c.code)
	assert.NotEmpty(t, c.message)
	assert.NotEmpty(t, LastError())

	st, err := ConnectionState(ch)
	require.NoError(t, err)
	assert.Equal(t, taps.StateFailed, st)

	require.NoError(t, ConnectionFree(ch))
	assert.ErrorIs(t, ConnectionFree(ch), ErrInvalidHandle)
}

// TestInitiateWithoutRemoteFails verifies the validation error of the
// underlying engine arrives through the error callback.
func TestInitiateWithoutRemoteFails(t *testing.T) {
	initBridge(t)

	p, err := NewPreconnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = PreconnectionFree(p) })

	failed := make(chan completion, 1)
	ch, err := Initiate(p,
		func(conn Handle, _ any) { t.Error("ready callback fired without a remote") },
		func(code Code, message string, _ any) { failed <- completion{code, message} },
		nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ConnectionFree(ch) })

	assert.Equal(t, CodeInvalidParameters, awaitCompletion(t, failed).code)

	st, err := ConnectionState(ch)
	require.NoError(t, err)
	assert.Equal(t, taps.StateFailed, st)
}

// TestInitiateNilCallbackRejected verifies Initiate refuses to start
// without both callbacks.
func TestInitiateNilCallbackRejected(t *testing.T) {
	initBridge(t)

	p, err := NewPreconnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = PreconnectionFree(p) })

	_, err = Initiate(p, nil, func(Code, string, any) {}, nil)
	assert.ErrorIs(t, err, taps.ErrInvalidParameters)

	_, err = Initiate(p, func(Handle, any) {}, nil, nil)
	assert.ErrorIs(t, err, taps.ErrInvalidParameters)
}

// TestAbortDuringEstablishmentCancelsRace aborts a connection whose
// only candidate is stuck in a TLS handshake against a server that
// never answers. The error callback must still fire exactly once.
func TestAbortDuringEstablishmentCancelsRace(t *testing.T) {
	initBridge(t)

	// A plain TCP sink: the TLS handshake against it stalls forever.
	sink, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	port := uint16(sink.Addr().(*net.TCPAddr).Port)

	p, err := NewPreconnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = PreconnectionFree(p) })
	require.NoError(t, PreconnectionAddRemote(p, Endpoint{Hostname: "127.0.0.1", Port: port}))

	failed := make(chan completion, 1)
	ch, err := Initiate(p,
		func(conn Handle, _ any) { t.Error("ready callback fired against a sink") },
		func(code Code, message string, _ any) { failed <- completion{code, message} },
		nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ConnectionFree(ch) })

	st, err := ConnectionState(ch)
	require.NoError(t, err)
	require.Equal(t, taps.StateEstablishing, st)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, Abort(ch))

	c := awaitCompletion(t, failed)
	assert.NotEqual(t, CodeSuccess, c.code)

	st, err = ConnectionState(ch)
	require.NoError(t, err)
	assert.Equal(t, taps.StateFailed, st)
}

// TestAbortResolvesPendingReceive verifies a receive blocked on an idle
// connection is failed by a concurrent abort.
func TestAbortResolvesPendingReceive(t *testing.T) {
	initBridge(t)

	lh, port := listenCleartext(t)
	conns := make(chan Handle, 1)
	require.NoError(t, ListenerSetHandler(lh, func(conn Handle, _ any) { conns <- conn }, nil))

	_ = dialCleartext(t, port) // keep the peer alive but never send
	server := awaitHandle(t, conns)
	t.Cleanup(func() { _ = ConnectionFree(server) })

	recvErrs := make(chan completion, 1)
	require.NoError(t, Receive(server, 0, 0,
		func(payload []byte, final bool, _ any) { t.Error("receive delivered on idle connection") },
		func(code Code, message string, _ any) { recvErrs <- completion{code, message} },
		nil))

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, Abort(server))

	assert.Equal(t, CodeConnectionFailed, awaitCompletion(t, recvErrs).code)

	st, err := ConnectionState(server)
	require.NoError(t, err)
	assert.True(t, st.Terminal())
}

// TestListenerQueuesUntilHandlerInstalled verifies connections arriving
// before a handler is installed are delivered once one is, with the
// caller's context value attached.
func TestListenerQueuesUntilHandlerInstalled(t *testing.T) {
	initBridge(t)

	lh, port := listenCleartext(t)
	_ = dialCleartext(t, port) // arrives before any handler exists

	type delivery struct {
		conn     Handle
		userData any
	}
	got := make(chan delivery, 1)
	require.NoError(t, ListenerSetHandler(lh,
		func(conn Handle, userData any) { got <- delivery{conn, userData} }, "srv"))

	select {
	case d := <-got:
		require.NotZero(t, d.conn)
		assert.Equal(t, "srv", d.userData)
		st, err := ConnectionState(d.conn)
		require.NoError(t, err)
		assert.Equal(t, taps.StateReady, st)
		require.NoError(t, ConnectionFree(d.conn))
	case <-time.After(10 * time.Second):
		t.Fatal("queued connection not delivered")
	}
}

// TestListenerStopTearsDownQueued verifies undelivered queued
// connections are released when the listener stops.
func TestListenerStopTearsDownQueued(t *testing.T) {
	initBridge(t)

	lh, port := listenCleartext(t)
	_ = dialCleartext(t, port) // queues on the server side

	e, err := reg.lookup(lh, kindListener)
	require.NoError(t, err)
	ls := e.obj.(*listenerState)

	require.Eventually(t, func() bool {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		return len(ls.pending) == 1
	}, 5*time.Second, 10*time.Millisecond)

	ls.mu.Lock()
	queued := ls.pending[0]
	ls.mu.Unlock()

	require.NoError(t, ListenerStop(lh))

	_, err = ConnectionState(queued)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	got := make(chan Handle, 1)
	require.NoError(t, ListenerSetHandler(lh, func(conn Handle, _ any) { got <- conn }, nil))
	select {
	case conn := <-got:
		t.Fatalf("torn-down connection %d delivered", conn)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestShutdownResolvesPendingOperations verifies the final Shutdown
// unblocks a pending receive and a pending establishment race, firing
// their callbacks instead of leaking them.
func TestShutdownResolvesPendingOperations(t *testing.T) {
	require.NoError(t, Init())
	ClearLastError()

	lh, port := listenCleartext(t)
	conns := make(chan Handle, 1)
	require.NoError(t, ListenerSetHandler(lh, func(conn Handle, _ any) { conns <- conn }, nil))
	_ = dialCleartext(t, port) // keep the peer alive but never send
	server := awaitHandle(t, conns)

	recvErrs := make(chan completion, 1)
	require.NoError(t, Receive(server, 0, 0,
		func(payload []byte, final bool, _ any) { t.Error("receive delivered during shutdown") },
		func(code Code, message string, _ any) { recvErrs <- completion{code, message} },
		nil))

	sink, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	p, err := NewPreconnection()
	require.NoError(t, err)
	require.NoError(t, PreconnectionAddRemote(p,
		Endpoint{Hostname: "127.0.0.1", Port: uint16(sink.Addr().(*net.TCPAddr).Port)}))

	estErrs := make(chan completion, 1)
	_, err = Initiate(p,
		func(conn Handle, _ any) { t.Error("ready callback fired against a sink") },
		func(code Code, message string, _ any) { estErrs <- completion{code, message} },
		nil)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, Shutdown())

	assert.Equal(t, CodeConnectionFailed, awaitCompletion(t, recvErrs).code)
	assert.NotEqual(t, CodeSuccess, awaitCompletion(t, estErrs).code)

	_, err = NewPreconnection()
	assert.ErrorIs(t, err, ErrNotInitialized)
}
