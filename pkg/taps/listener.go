package taps

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taps-protocol/taps-go/pkg/endpoint"
	"github.com/taps-protocol/taps-go/pkg/log"
	"github.com/taps-protocol/taps-go/pkg/property"
	"github.com/taps-protocol/taps-go/pkg/security"
	"github.com/taps-protocol/taps-go/pkg/selection"
)

// handshakeTimeout bounds the TLS handshake of one accepted connection.
const handshakeTimeout = 10 * time.Second

// acceptQueueDepth is how many established inbound connections may wait
// for Accept when no ListenerHandler is installed.
const acceptQueueDepth = 64

// listenParams carries everything a listener needs from its
// preconnection.
type listenParams struct {
	locals      []endpoint.Local
	stack       selection.ProtocolStack
	tprops      property.TransportProperties
	security    *security.Parameters
	config      ListenerConfig
	connCfg     ConnConfig
	handler     ListenerHandler
	connHandler EventHandler
	logger      log.Logger
}

// Listener accepts inbound connections on a bound local endpoint. Each
// accepted connection completes its handshake before delivery, so every
// connection handed out is already Ready. Delivery goes to the
// ListenerHandler when one is installed, otherwise connections queue
// for Accept.
type Listener struct {
	id    string
	local endpoint.Local
	stack selection.ProtocolStack

	tprops      property.TransportProperties
	security    *security.Parameters
	config      ListenerConfig
	connCfg     ConnConfig
	handler     ListenerHandler
	connHandler EventHandler
	logger      log.Logger

	ln         net.Listener
	tlsConfig  *tls.Config
	advertiser *endpoint.Advertiser

	ctx    context.Context
	cancel context.CancelFunc

	running  atomic.Bool
	live     atomic.Int32
	limit    atomic.Int32
	wg       sync.WaitGroup
	stopOnce sync.Once

	connCh chan *Connection
}

// newListener binds the first viable local endpoint and starts the
// accept loop.
func newListener(ctx context.Context, p listenParams) (*Listener, error) {
	l := &Listener{
		id:          uuid.New().String(),
		stack:       p.stack,
		tprops:      p.tprops,
		security:    p.security,
		config:      p.config,
		connCfg:     p.connCfg.withDefaults(),
		handler:     p.handler,
		connHandler: p.connHandler,
		logger:      p.logger,
		connCh:      make(chan *Connection, acceptQueueDepth),
	}
	if l.logger == nil {
		l.logger = log.NoopLogger{}
	}
	l.limit.Store(int32(p.config.ConnectionLimit))

	if p.stack.Secure {
		tlsCfg, err := security.ServerTLSConfig(p.security)
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS configuration: %w", err)
		}
		l.tlsConfig = tlsCfg
	}

	var bindErr error
	for _, local := range p.locals {
		ln, err := net.Listen(p.stack.Network(), local.BindAddr())
		if err != nil {
			bindErr = err
			continue
		}
		l.ln = ln
		l.local = local
		break
	}
	if l.ln == nil {
		if bindErr == nil {
			bindErr = ErrNoLocalEndpoint
		}
		return nil, fmt.Errorf("failed to bind local endpoint: %w", bindErr)
	}

	if l.local.Service != "" {
		l.advertiser = endpoint.NewAdvertiser(endpoint.AdvertiserConfig{
			Interface: l.local.Interface,
		})
		if err := l.advertiser.Advertise(l.local.Service, l.boundPort()); err != nil {
			l.ln.Close()
			return nil, err
		}
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.running.Store(true)
	l.logState("", "ACTIVE", "")

	l.wg.Add(1)
	go l.acceptLoop()

	return l, nil
}

// ID returns the unique listener identifier.
func (l *Listener) ID() string {
	return l.id
}

// IsRunning reports whether the listener still accepts connections.
func (l *Listener) IsRunning() bool {
	return l.running.Load()
}

// Addr returns the bound transport address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// LocalEndpoint returns the local endpoint with the actually bound
// address and port filled in.
func (l *Listener) LocalEndpoint() endpoint.Local {
	local := l.local
	if addr, ok := l.ln.Addr().(*net.TCPAddr); ok {
		local = local.WithPort(uint16(addr.Port))
		if local.Address == nil && !addr.IP.IsUnspecified() {
			local = local.WithAddress(addr.IP)
		}
	}
	return local
}

// SetConnectionLimit caps live accepted connections. Accepts beyond the
// limit are closed immediately. Zero removes the limit.
func (l *Listener) SetConnectionLimit(n int) {
	l.limit.Store(int32(n))
}

// Accept returns the next established inbound connection. It is only
// usable when no ListenerHandler is installed.
func (l *Listener) Accept(ctx context.Context) (*Connection, error) {
	if l.handler != nil {
		return nil, fmt.Errorf("%w: listener delivers to a handler", ErrInvalidState)
	}

	select {
	case conn := <-l.connCh:
		return conn, nil
	default:
	}
	select {
	case conn := <-l.connCh:
		return conn, nil
	case <-l.ctx.Done():
		return nil, ErrListenerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts the listener down: the advertisement is withdrawn, the
// accept loop ends, and pending handshakes are abandoned. Connections
// already delivered stay alive. Stop is idempotent.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		l.running.Store(false)
		l.cancel()
		if l.advertiser != nil {
			l.advertiser.Stop()
		}
		_ = l.ln.Close()
		l.wg.Wait()

		l.logState("ACTIVE", "STOPPED", "")
		if l.handler != nil {
			l.handler.OnStopped()
		}
	})
}

// acceptLoop accepts raw connections until the listener stops.
func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for l.running.Load() {
		raw, err := l.ln.Accept()
		if err != nil {
			if !l.running.Load() || l.ctx.Err() != nil {
				return
			}
			l.notifyError(fmt.Errorf("accept failed: %w", err))
			continue
		}

		if !l.reserveSlot() {
			raw.Close()
			l.logError(errors.New("connection limit reached, rejecting accept"))
			continue
		}

		l.wg.Add(1)
		go l.handleConn(raw)
	}
}

// handleConn completes the handshake for one accepted connection and
// delivers it. The slot reserved by the accept loop is released on any
// failure, otherwise when the connection terminates.
func (l *Listener) handleConn(raw net.Conn) {
	defer l.wg.Done()

	var tlsConn *tls.Conn
	if l.tlsConfig != nil {
		tc := tls.Server(raw, l.tlsConfig.Clone())
		hsCtx, cancel := context.WithTimeout(l.ctx, handshakeTimeout)
		err := tc.HandshakeContext(hsCtx)
		cancel()
		if err != nil {
			raw.Close()
			l.releaseSlot()
			l.notifyError(fmt.Errorf("TLS handshake failed: %w", err))
			return
		}
		if err := security.VerifyConnection(tc.ConnectionState(), l.security); err != nil {
			tc.Close()
			l.releaseSlot()
			l.notifyError(fmt.Errorf("connection verification failed: %w", err))
			return
		}
		tlsConn = tc
	}

	conn := newConnection(connParams{
		conn:    raw,
		tlsConn: tlsConn,
		stack:   l.stack,
		local:   l.LocalEndpoint(),
		remote:  remoteFromAddr(raw.RemoteAddr()),
		role:    log.RoleListener,
		tprops:  l.tprops,
		config:  l.connCfg,
		handler: l.connHandler,
		logger:  l.logger,
	})
	conn.setOnRelease(l.releaseSlot)
	conn.start()
	l.deliver(conn)
}

// deliver hands an established connection to the handler or queues it
// for Accept. When nobody is accepting and the queue is full the
// connection is aborted.
func (l *Listener) deliver(conn *Connection) {
	if l.handler != nil {
		l.handler.OnConnectionReceived(conn)
		return
	}
	select {
	case l.connCh <- conn:
	default:
		conn.Abort()
		l.logError(errors.New("accept queue full, dropping connection"))
	}
}

// reserveSlot claims one live-connection slot, honoring the limit.
func (l *Listener) reserveSlot() bool {
	limit := l.limit.Load()
	if limit <= 0 {
		l.live.Add(1)
		return true
	}
	for {
		cur := l.live.Load()
		if cur >= limit {
			return false
		}
		if l.live.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (l *Listener) releaseSlot() {
	l.live.Add(-1)
}

// boundPort returns the port the listener actually bound.
func (l *Listener) boundPort() int {
	if addr, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return int(l.local.Port)
}

// notifyError reports a non-fatal listener failure.
func (l *Listener) notifyError(err error) {
	l.logError(err)
	if l.handler != nil {
		l.handler.OnListenError(err)
	}
}

func (l *Listener) logState(old, new, reason string) {
	l.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: l.id,
		Layer:        log.LayerEngine,
		Category:     log.CategoryState,
		LocalRole:    log.RoleListener,
		LocalAddr:    l.ln.Addr().String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityListener,
			OldState: old,
			NewState: new,
			Reason:   reason,
		},
	})
}

func (l *Listener) logError(err error) {
	l.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: l.id,
		Layer:        log.LayerEngine,
		Category:     log.CategoryError,
		LocalRole:    log.RoleListener,
		Error: &log.ErrorEventData{
			Layer:   log.LayerEngine,
			Message: err.Error(),
			Soft:    true,
		},
	})
}

// remoteFromAddr builds the remote endpoint description of an accepted
// peer from its transport address.
func remoteFromAddr(addr net.Addr) endpoint.Remote {
	remote := endpoint.NewRemote()
	switch a := addr.(type) {
	case *net.TCPAddr:
		remote = remote.WithAddress(a.IP).WithPort(uint16(a.Port))
	case *net.UDPAddr:
		remote = remote.WithAddress(a.IP).WithPort(uint16(a.Port))
	}
	return remote
}
