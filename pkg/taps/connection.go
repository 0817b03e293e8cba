package taps

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/taps-protocol/taps-go/pkg/endpoint"
	"github.com/taps-protocol/taps-go/pkg/framing"
	"github.com/taps-protocol/taps-go/pkg/log"
	"github.com/taps-protocol/taps-go/pkg/property"
	"github.com/taps-protocol/taps-go/pkg/selection"
)

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int32

const (
	// StateEstablishing means the connection is being set up.
	StateEstablishing ConnectionState = iota
	// StateReady means the connection can send and receive.
	StateReady
	// StateClosing means a graceful close is in progress.
	StateClosing
	// StateClosed means the connection ended cleanly.
	StateClosed
	// StateFailed means the connection ended with an error.
	StateFailed
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case StateEstablishing:
		return "ESTABLISHING"
	case StateReady:
		return "READY"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state is Closed or Failed.
func (s ConnectionState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// sendQueueDepth is how many sends may wait for the writer goroutine
// before Send blocks on enqueue.
const sendQueueDepth = 32

// sendRequest travels from Send to the writer goroutine. A nil msg is a
// flush barrier: it completes once every earlier request has been
// written.
type sendRequest struct {
	msg    *Message
	expiry time.Time
	done   chan error
}

// connParams carries everything needed to assemble a Connection after
// the transport handshake succeeded. id, when set, carries the
// identifier the establishment race already logged under.
type connParams struct {
	id      string
	conn    net.Conn
	tlsConn *tls.Conn
	stack   selection.ProtocolStack
	local   endpoint.Local
	remote  endpoint.Remote
	role    log.Role
	tprops  property.TransportProperties
	config  ConnConfig
	handler EventHandler
	logger  log.Logger
}

// Connection is an established transport session. All methods are safe
// for concurrent use. Sends are serialized through a single writer
// goroutine, so messages reach the wire in the order Send accepted
// them.
type Connection struct {
	id     string
	config ConnConfig
	role   log.Role

	handler EventHandler
	logger  log.Logger

	conn    net.Conn
	tlsConn *tls.Conn
	stream  net.Conn
	stack   selection.ProtocolStack
	framer  *framing.LengthPrefix

	local  endpoint.Local
	remote endpoint.Remote

	tprops property.TransportProperties
	props  *property.ConnectionProperties

	state      atomic.Int32
	sendClosed atomic.Bool

	closeOnce sync.Once
	closeCh   chan struct{}
	sendCh    chan *sendRequest
	sendDone  chan struct{}

	recvMu       sync.Mutex
	eofSeen      bool
	eofDelivered bool

	mu        sync.Mutex
	closeErr  error
	onRelease func()
}

// newConnection assembles a connection around a completed transport
// handshake. The caller must invoke start to make it Ready.
func newConnection(p connParams) *Connection {
	if p.logger == nil {
		p.logger = log.NoopLogger{}
	}
	if p.id == "" {
		p.id = uuid.New().String()
	}

	c := &Connection{
		id:       p.id,
		config:   p.config.withDefaults(),
		role:     p.role,
		handler:  p.handler,
		logger:   p.logger,
		conn:     p.conn,
		tlsConn:  p.tlsConn,
		stack:    p.stack,
		local:    p.local,
		remote:   p.remote,
		tprops:   p.tprops,
		props:    property.NewConnectionProperties(),
		closeCh:  make(chan struct{}),
		sendCh:   make(chan *sendRequest, sendQueueDepth),
		sendDone: make(chan struct{}),
	}

	c.stream = p.conn
	if p.tlsConn != nil {
		c.stream = p.tlsConn
	}

	// Message boundaries over a byte stream need an explicit framer.
	// Datagram stacks preserve them natively. Selection keeps stream
	// stacks only for the soft preference, so Prefer is the reachable
	// opt-in for framed TCP.
	if p.stack.ServiceClass == selection.ServiceStream &&
		(p.tprops.PreserveMsgBoundaries == property.Require ||
			p.tprops.PreserveMsgBoundaries == property.Prefer) {
		c.framer = framing.NewLengthPrefixWithMaxSize(c.stream, c.config.MaxMessageSize)
		c.framer.SetLogger(c.logger, c.id)
	}

	c.state.Store(int32(StateEstablishing))
	c.props.UpdateMessageLimits(int(c.config.MaxMessageSize), int(c.config.MaxMessageSize), int(c.config.MaxMessageSize))
	c.refreshReadOnlyProps(StateEstablishing)
	c.applyKeepAlivePreference()

	return c
}

// start launches the writer goroutine and moves the connection to
// Ready.
func (c *Connection) start() {
	go c.sendLoop()
	c.transition(StateEstablishing, StateReady, "")
	c.notifyReady()
}

// ID returns the unique connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Properties returns the mutable connection properties.
func (c *Connection) Properties() *property.ConnectionProperties {
	return c.props
}

// TransportProperties returns the selection properties the connection
// was established with.
func (c *Connection) TransportProperties() property.TransportProperties {
	return c.tprops
}

// Stack returns the protocol stack that won establishment.
func (c *Connection) Stack() selection.ProtocolStack {
	return c.stack
}

// LocalAddr returns the bound transport address.
func (c *Connection) LocalAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// RemoteAddr returns the peer transport address.
func (c *Connection) RemoteAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}

// RemoteEndpoint returns the remote endpoint the connection targets.
func (c *Connection) RemoteEndpoint() endpoint.Remote {
	return c.remote
}

// LocalEndpoint returns the local endpoint specification.
func (c *Connection) LocalEndpoint() endpoint.Local {
	return c.local
}

// TLSConnectionState returns the TLS session details when the winning
// stack carries TLS.
func (c *Connection) TLSConnectionState() (tls.ConnectionState, bool) {
	if c.tlsConn == nil {
		return tls.ConnectionState{}, false
	}
	return c.tlsConn.ConnectionState(), true
}

// Clone would create a new connection entangled with this one. Protocol
// stacks with stream multiplexing are not available, so cloning always
// fails.
func (c *Connection) Clone() (*Connection, error) {
	return nil, fmt.Errorf("%w: connection groups require a multistreaming stack", ErrNotSupported)
}

// SetKeepAliveTimeout enables transport keep-alives with the given
// period. Non-positive d disables them. Only TCP-based stacks support
// keep-alives.
func (c *Connection) SetKeepAliveTimeout(d time.Duration) error {
	tcp, ok := c.conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("%w: keep-alive requires a TCP stack", ErrNotSupported)
	}
	if d <= 0 {
		_ = c.props.Set(property.KeyKeepAliveTimeout, property.DisabledTimeout)
		return tcp.SetKeepAlive(false)
	}
	if err := tcp.SetKeepAlive(true); err != nil {
		return fmt.Errorf("failed to enable keep-alive: %w", err)
	}
	if err := tcp.SetKeepAlivePeriod(d); err != nil {
		return fmt.Errorf("failed to set keep-alive period: %w", err)
	}
	_ = c.props.Set(property.KeyKeepAliveTimeout, d)
	return nil
}

// Send transmits msg over the connection. It blocks until the message
// has been handed to the transport, its lifetime expired, or ctx ended.
// Concurrent sends are written in the order they were accepted.
func (c *Connection) Send(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidParameters)
	}
	if c.tprops.Direction == property.UnidirectionalReceive {
		return fmt.Errorf("%w: connection is receive-only", ErrNotSupported)
	}
	if c.sendClosed.Load() {
		return fmt.Errorf("%w: sending side closed after final message", ErrInvalidState)
	}
	switch c.State() {
	case StateReady:
	case StateEstablishing:
		return ErrInvalidState
	default:
		return ErrConnectionClosed
	}

	if msg.id == "" {
		msg.id = uuid.New().String()
	}
	req := &sendRequest{msg: msg, done: make(chan error, 1)}
	if msg.lifetime > 0 {
		req.expiry = time.Now().Add(msg.lifetime)
	}

	select {
	case c.sendCh <- req:
	case <-c.closeCh:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closeCh:
		// The drain answers requests it saw; anything else is closed.
		select {
		case err := <-req.done:
			return err
		default:
			return ErrConnectionClosed
		}
	}
}

// sendLoop is the single writer goroutine. It preserves FIFO order and
// assembles partial chunks until their end-of-message arrives.
func (c *Connection) sendLoop() {
	defer close(c.sendDone)

	var assembling []byte
	for {
		select {
		case req := <-c.sendCh:
			if req.msg == nil {
				req.done <- nil
				continue
			}
			err := c.writeMessage(req, &assembling)
			req.done <- err
			switch {
			case err == nil:
			case c.isSoftTransportError(err):
				c.notifySoftError(err)
			case c.fatalSendError(err):
				c.teardown(StateFailed, err)
			}
		case <-c.closeCh:
			c.drainSendQueue()
			return
		}
	}
}

// fatalSendError reports whether a send failure poisons the transport.
// Per-message rejections leave the connection usable.
func (c *Connection) fatalSendError(err error) bool {
	if errors.Is(err, ErrMessageExpired) ||
		errors.Is(err, ErrConnectionClosed) ||
		errors.Is(err, framing.ErrMessageTooLarge) ||
		errors.Is(err, framing.ErrMessageEmpty) {
		return false
	}
	return true
}

// isSoftTransportError reports ICMP-style failures on datagram stacks
// that leave the connection usable, such as port unreachable surfacing
// as a connection refused on the connected socket.
func (c *Connection) isSoftTransportError(err error) bool {
	return c.stack.ServiceClass == selection.ServiceDatagram &&
		errors.Is(err, syscall.ECONNREFUSED)
}

// closed reports whether teardown has started.
func (c *Connection) closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// drainSendQueue fails every queued request after teardown started.
func (c *Connection) drainSendQueue() {
	for {
		select {
		case req := <-c.sendCh:
			req.done <- ErrConnectionClosed
		default:
			return
		}
	}
}

// writeMessage puts one request on the wire. Partial chunks accumulate
// in assembling until a chunk with end-of-message closes the logical
// message.
func (c *Connection) writeMessage(req *sendRequest, assembling *[]byte) error {
	msg := req.msg

	if !req.expiry.IsZero() && time.Now().After(req.expiry) {
		c.logMessageEvent(msg, log.DirectionOut, true)
		c.notifyExpired(msg.id)
		return fmt.Errorf("%w: message %s", ErrMessageExpired, msg.id)
	}

	payload := msg.payload
	if c.framer != nil {
		if !msg.endOfMessage {
			*assembling = append(*assembling, payload...)
			c.logMessageEvent(msg, log.DirectionOut, false)
			return nil
		}
		if len(*assembling) > 0 {
			payload = append(*assembling, payload...)
			*assembling = nil
		}
		c.setWriteDeadline()
		if err := c.framer.WriteFrame(payload); err != nil {
			if c.closed() {
				return ErrConnectionClosed
			}
			return fmt.Errorf("failed to send message: %w", err)
		}
	} else {
		c.setWriteDeadline()
		if len(payload) > 0 || c.stack.ServiceClass == selection.ServiceDatagram {
			if _, err := c.stream.Write(payload); err != nil {
				if c.closed() {
					return ErrConnectionClosed
				}
				return fmt.Errorf("failed to send message: %w", err)
			}
		}
	}

	c.logMessageEvent(msg, log.DirectionOut, false)
	if msg.endOfMessage {
		c.notifySent(msg.id)
	}
	if msg.final {
		c.sendClosed.Store(true)
		c.closeWriteSide()
	}
	return nil
}

// Receive delivers the next message. minIncompleteLength is the fewest
// bytes an unframed delivery may carry; maxLength caps the delivery
// size. Non-positive arguments select the defaults. With a framer
// installed each call yields one complete message; datagram stacks
// yield one datagram. A clean end of stream is delivered once as an
// empty message whose context has Final set; subsequent calls return
// ErrConnectionClosed.
func (c *Connection) Receive(ctx context.Context, minIncompleteLength, maxLength int) (*Message, *MessageContext, error) {
	if c.tprops.Direction == property.UnidirectionalSend {
		return nil, nil, fmt.Errorf("%w: connection is send-only", ErrNotSupported)
	}
	if maxLength <= 0 {
		maxLength = int(c.config.MaxMessageSize)
	}
	if minIncompleteLength <= 0 {
		minIncompleteLength = 1
	}
	if minIncompleteLength > maxLength {
		return nil, nil, fmt.Errorf("%w: minIncompleteLength %d exceeds maxLength %d",
			ErrInvalidParameters, minIncompleteLength, maxLength)
	}

	switch c.State() {
	case StateReady, StateClosing:
	case StateEstablishing:
		return nil, nil, ErrInvalidState
	default:
		return nil, nil, ErrConnectionClosed
	}

	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if c.eofSeen {
		return c.deliverEOF()
	}

	stop := c.watchContext(ctx)
	defer stop()

	var (
		payload []byte
		final   bool
		err     error
	)
	switch {
	case c.framer != nil:
		c.setReadDeadline()
		payload, err = c.framer.ReadFrame()
		final = true
	case c.stack.ServiceClass == selection.ServiceDatagram:
		buf := make([]byte, maxLength)
		c.setReadDeadline()
		var n int
		n, err = c.stream.Read(buf)
		payload = buf[:n]
		final = true
	default:
		payload, err = c.readChunk(minIncompleteLength, maxLength)
	}

	if err != nil {
		if errors.Is(err, io.EOF) {
			c.eofSeen = true
			if len(payload) == 0 {
				return c.deliverEOF()
			}
		} else {
			return nil, nil, c.receiveError(ctx, err)
		}
	}

	msg := &Message{payload: payload, priority: DefaultMessagePriority, endOfMessage: final}
	mctx := c.newMessageContext(final)
	c.logReceiveEvent(len(payload), final)
	c.notifyReceived(msg, mctx)
	return msg, mctx, nil
}

// readChunk reads an unframed byte-stream chunk of at least minLen and
// at most maxLen bytes.
func (c *Connection) readChunk(minLen, maxLen int) ([]byte, error) {
	buf := make([]byte, maxLen)
	total := 0
	for total < minLen {
		c.setReadDeadline()
		n, err := c.stream.Read(buf[total:])
		total += n
		if err != nil {
			return buf[:total], err
		}
	}
	return buf[:total], nil
}

// deliverEOF hands out the end-of-stream marker exactly once.
func (c *Connection) deliverEOF() (*Message, *MessageContext, error) {
	if c.eofDelivered {
		return nil, nil, ErrConnectionClosed
	}
	c.eofDelivered = true
	msg := &Message{priority: DefaultMessagePriority, endOfMessage: true}
	mctx := c.newMessageContext(true)
	c.logReceiveEvent(0, true)
	c.notifyReceived(msg, mctx)
	return msg, mctx, nil
}

// receiveError translates a transport read failure. Reads interrupted
// by our own teardown report the connection as closed; anything else is
// fatal.
func (c *Connection) receiveError(ctx context.Context, err error) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if c.closed() || c.State() != StateReady {
		return ErrConnectionClosed
	}
	if c.isSoftTransportError(err) {
		soft := fmt.Errorf("soft error: %w", err)
		c.notifySoftError(soft)
		return soft
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: receive", ErrTimeout)
	}
	wrapped := fmt.Errorf("failed to receive message: %w", err)
	c.teardown(StateFailed, wrapped)
	return wrapped
}

// newMessageContext snapshots the receive-side metadata.
func (c *Connection) newMessageContext(final bool) *MessageContext {
	return &MessageContext{
		ReceivedAt: time.Now(),
		Local:      c.local,
		Remote:     c.remote,
		Final:      final,
	}
}

// Close shuts the connection down gracefully: queued sends are flushed
// within the close timeout, the sending side is closed, and the
// connection moves to Closed. Close on an already closing or closed
// connection returns nil immediately.
func (c *Connection) Close() error {
	for {
		switch c.State() {
		case StateReady:
			if !c.transition(StateReady, StateClosing, "close") {
				continue
			}
		case StateEstablishing:
			c.teardown(StateClosed, nil)
			return nil
		default:
			return nil
		}
		break
	}

	flushErr := c.flushSends()
	c.closeWriteSide()
	c.teardown(StateClosed, nil)
	return flushErr
}

// flushSends waits until every queued send has been written, bounded by
// the close timeout.
func (c *Connection) flushSends() error {
	barrier := &sendRequest{done: make(chan error, 1)}
	timer := time.NewTimer(c.config.CloseTimeout)
	defer timer.Stop()

	select {
	case c.sendCh <- barrier:
	case <-timer.C:
		return ErrCloseTimeout
	case <-c.closeCh:
		return nil
	}
	select {
	case <-barrier.done:
		return nil
	case <-timer.C:
		return ErrCloseTimeout
	case <-c.closeCh:
		return nil
	}
}

// Abort tears the connection down immediately. Queued sends fail with
// ErrConnectionClosed and no flush is attempted.
func (c *Connection) Abort() {
	c.teardown(StateClosed, fmt.Errorf("%w: aborted by local endpoint", ErrConnectionClosed))
}

// closeWriteSide half-closes the sending direction: TLS sends its
// close-notify, plain TCP shuts down the write side.
func (c *Connection) closeWriteSide() {
	if c.tlsConn != nil {
		_ = c.tlsConn.CloseWrite()
		return
	}
	if tcp, ok := c.conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
}

// teardown finishes the connection exactly once: the transport is
// closed, queued sends are failed, and OnClosed fires.
func (c *Connection) teardown(target ConnectionState, cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = cause
		release := c.onRelease
		c.mu.Unlock()

		close(c.closeCh)

		reason := ""
		if cause != nil {
			reason = cause.Error()
		}
		c.forceState(target, reason)

		if c.stream != nil {
			_ = c.stream.Close()
		}
		if release != nil {
			release()
		}
		c.notifyClosed(cause)
	})
}

// CloseError returns the error the connection terminated with, nil
// after a clean close or while the connection is still live.
func (c *Connection) CloseError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// setOnRelease registers a hook invoked once on teardown. The listener
// uses it to track live accepted connections.
func (c *Connection) setOnRelease(fn func()) {
	c.mu.Lock()
	c.onRelease = fn
	c.mu.Unlock()
}

// transition performs one CAS state change and emits the corresponding
// event and log record.
func (c *Connection) transition(from, to ConnectionState, reason string) bool {
	if !c.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	c.afterTransition(from, to, reason)
	return true
}

// forceState moves to a terminal state regardless of the current one.
func (c *Connection) forceState(to ConnectionState, reason string) {
	for {
		old := c.State()
		if old == to {
			return
		}
		if c.state.CompareAndSwap(int32(old), int32(to)) {
			c.afterTransition(old, to, reason)
			return
		}
	}
}

func (c *Connection) afterTransition(old, new ConnectionState, reason string) {
	c.refreshReadOnlyProps(new)
	c.logStateChange(old, new, reason)
	c.notifyStateChange(old, new)
}

// refreshReadOnlyProps mirrors the state into the read-only connection
// properties.
func (c *Connection) refreshReadOnlyProps(state ConnectionState) {
	canSend := state == StateReady &&
		c.tprops.Direction != property.UnidirectionalReceive &&
		!c.sendClosed.Load()
	canReceive := (state == StateReady || state == StateClosing) &&
		c.tprops.Direction != property.UnidirectionalSend
	c.props.UpdateReadOnly(state.String(), canSend, canReceive)
}

// applyKeepAlivePreference turns on TCP keep-alives when the selection
// properties asked for them.
func (c *Connection) applyKeepAlivePreference() {
	if c.tprops.KeepAlive != property.Require && c.tprops.KeepAlive != property.Prefer {
		return
	}
	if tcp, ok := c.conn.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(true)
	}
}

// watchContext unblocks a pending read when ctx ends by expiring the
// read deadline. The returned stop function releases the watcher.
func (c *Connection) watchContext(ctx context.Context) func() {
	if ctx == nil || ctx.Done() == nil {
		return func() {}
	}
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.stream.SetReadDeadline(time.Now())
		case <-stopped:
		}
	}()
	return func() { close(stopped) }
}

// setReadDeadline arms the per-read deadline, clearing any deadline a
// cancelled context left behind.
func (c *Connection) setReadDeadline() {
	if c.config.ReadTimeout > 0 {
		_ = c.stream.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return
	}
	_ = c.stream.SetReadDeadline(time.Time{})
}

func (c *Connection) setWriteDeadline() {
	if c.config.WriteTimeout > 0 {
		_ = c.stream.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		return
	}
	_ = c.stream.SetWriteDeadline(time.Time{})
}

// Event notification helpers. The handler may be nil.

func (c *Connection) notifyReady() {
	if c.handler != nil {
		c.handler.OnReady()
	}
}

func (c *Connection) notifyReceived(msg *Message, mctx *MessageContext) {
	if c.handler != nil {
		c.handler.OnReceived(msg, mctx)
	}
}

func (c *Connection) notifySent(messageID string) {
	if c.handler != nil {
		c.handler.OnSent(messageID)
	}
}

func (c *Connection) notifyExpired(messageID string) {
	if c.handler != nil {
		c.handler.OnExpired(messageID)
	}
}

func (c *Connection) notifyStateChange(old, new ConnectionState) {
	if c.handler != nil {
		c.handler.OnStateChange(old, new)
	}
}

func (c *Connection) notifyClosed(err error) {
	if c.handler != nil {
		c.handler.OnClosed(err)
	}
}

// notifySoftError reports a non-fatal condition without touching the
// connection state.
func (c *Connection) notifySoftError(err error) {
	c.logError(err, true)
	if c.handler != nil {
		c.handler.OnSoftError(err)
	}
}

// Logging helpers.

func (c *Connection) baseEvent() log.Event {
	ev := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		LocalRole:    c.role,
	}
	if c.conn != nil {
		if addr := c.conn.RemoteAddr(); addr != nil {
			ev.RemoteAddr = addr.String()
		}
		if addr := c.conn.LocalAddr(); addr != nil {
			ev.LocalAddr = addr.String()
		}
	}
	return ev
}

func (c *Connection) logStateChange(old, new ConnectionState, reason string) {
	ev := c.baseEvent()
	ev.Layer = log.LayerEngine
	ev.Category = log.CategoryState
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityConnection,
		OldState: old.String(),
		NewState: new.String(),
		Reason:   reason,
	}
	c.logger.Log(ev)
}

func (c *Connection) logMessageEvent(msg *Message, dir log.Direction, expired bool) {
	ev := c.baseEvent()
	ev.Direction = dir
	ev.Layer = log.LayerMessage
	ev.Category = log.CategoryMessage
	me := &log.MessageEvent{
		MessageID:    msg.id,
		Length:       msg.Len(),
		EndOfMessage: msg.endOfMessage,
		Expired:      expired,
	}
	if msg.lifetime > 0 {
		lifetime := msg.lifetime
		me.Lifetime = &lifetime
	}
	if msg.priority != DefaultMessagePriority {
		priority := msg.priority
		me.Priority = &priority
	}
	ev.Message = me
	c.logger.Log(ev)
}

func (c *Connection) logReceiveEvent(length int, final bool) {
	ev := c.baseEvent()
	ev.Direction = log.DirectionIn
	ev.Layer = log.LayerMessage
	ev.Category = log.CategoryMessage
	ev.Message = &log.MessageEvent{
		Length:       length,
		EndOfMessage: final,
		Partial:      !final,
	}
	c.logger.Log(ev)
}

func (c *Connection) logError(err error, soft bool) {
	ev := c.baseEvent()
	ev.Layer = log.LayerEngine
	ev.Category = log.CategoryError
	ev.Error = &log.ErrorEventData{
		Layer:   log.LayerEngine,
		Message: err.Error(),
		Soft:    soft,
	}
	c.logger.Log(ev)
}
