package taps

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/taps-protocol/taps-go/pkg/endpoint"
	"github.com/taps-protocol/taps-go/pkg/log"
	"github.com/taps-protocol/taps-go/pkg/property"
	"github.com/taps-protocol/taps-go/pkg/security"
	"github.com/taps-protocol/taps-go/pkg/selection"
)

// Preconnection is the passive template establishment works from: the
// endpoints, transport properties and security parameters an
// application configures before any network activity. Initiate, Listen
// and Rendezvous consume a snapshot, so a preconnection can be reused
// and modified between establishment attempts.
type Preconnection struct {
	mu sync.RWMutex

	locals  []endpoint.Local
	remotes []endpoint.Remote

	tprops   property.TransportProperties
	security *security.Parameters

	handler         EventHandler
	listenerHandler ListenerHandler
	logger          log.Logger

	establishCfg EstablishConfig
	connCfg      ConnConfig
	listenerCfg  ListenerConfig
	resolverCfg  endpoint.ResolverConfig
}

// NewPreconnection creates a preconnection with default transport
// properties and security required.
func NewPreconnection() *Preconnection {
	return &Preconnection{
		tprops:       property.NewTransportProperties(),
		security:     security.NewParameters(),
		logger:       log.NoopLogger{},
		establishCfg: DefaultEstablishConfig(),
		connCfg:      DefaultConnConfig(),
		listenerCfg:  DefaultListenerConfig(),
		resolverCfg:  endpoint.DefaultResolverConfig(),
	}
}

// AddLocal appends a local endpoint. Listen binds the first viable one;
// Initiate uses the first as its source address when set.
func (p *Preconnection) AddLocal(local endpoint.Local) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locals = append(p.locals, local)
}

// AddRemote appends a remote endpoint. Initiate races the candidates of
// every remote.
func (p *Preconnection) AddRemote(remote endpoint.Remote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remotes = append(p.remotes, remote)
}

// Locals returns a copy of the local endpoints.
func (p *Preconnection) Locals() []endpoint.Local {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]endpoint.Local(nil), p.locals...)
}

// Remotes returns a copy of the remote endpoints.
func (p *Preconnection) Remotes() []endpoint.Remote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]endpoint.Remote(nil), p.remotes...)
}

// SetTransportProperties replaces the selection properties.
func (p *Preconnection) SetTransportProperties(tprops property.TransportProperties) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tprops = tprops
}

// TransportProperties returns the current selection properties.
func (p *Preconnection) TransportProperties() property.TransportProperties {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tprops
}

// SetSecurityParameters replaces the security parameters. nil restores
// the default of required security.
func (p *Preconnection) SetSecurityParameters(params *security.Parameters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if params == nil {
		params = security.NewParameters()
	}
	p.security = params
}

// SetEventHandler installs the handler connections created from this
// preconnection notify.
func (p *Preconnection) SetEventHandler(handler EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// SetListenerHandler installs the handler listeners notify. With a
// handler installed, inbound connections are delivered through it
// instead of Accept.
func (p *Preconnection) SetListenerHandler(handler ListenerHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listenerHandler = handler
}

// SetLogger installs the event logger for establishment, connections
// and listeners.
func (p *Preconnection) SetLogger(logger log.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if logger == nil {
		logger = log.NoopLogger{}
	}
	p.logger = logger
}

// SetEstablishConfig tunes candidate racing.
func (p *Preconnection) SetEstablishConfig(cfg EstablishConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.establishCfg = cfg
}

// SetConnConfig tunes connections created from this preconnection.
func (p *Preconnection) SetConnConfig(cfg ConnConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connCfg = cfg
}

// SetListenerConfig tunes listeners created from this preconnection.
func (p *Preconnection) SetListenerConfig(cfg ListenerConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listenerCfg = cfg
}

// SetResolverConfig tunes endpoint resolution.
func (p *Preconnection) SetResolverConfig(cfg endpoint.ResolverConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolverCfg = cfg
}

// snapshot copies the preconnection under the read lock so an
// establishment works from a consistent view.
func (p *Preconnection) snapshot() Preconnection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Preconnection{
		locals:          append([]endpoint.Local(nil), p.locals...),
		remotes:         append([]endpoint.Remote(nil), p.remotes...),
		tprops:          p.tprops,
		security:        p.security,
		handler:         p.handler,
		listenerHandler: p.listenerHandler,
		logger:          p.logger,
		establishCfg:    p.establishCfg,
		connCfg:         p.connCfg,
		listenerCfg:     p.listenerCfg,
		resolverCfg:     p.resolverCfg,
	}
}

// Initiate actively establishes a connection to the configured remote
// endpoints. Candidates are the cross product of the selected protocol
// stacks and the resolved addresses, raced with staggered starts; the
// first candidate to complete its full handshake wins. The returned
// connection is Ready.
//
// Configuration problems (no remote endpoint, unsatisfiable transport
// properties) surface directly; network failures are reported as an
// *EstablishmentError.
func (p *Preconnection) Initiate(ctx context.Context) (*Connection, error) {
	snap := p.snapshot()

	if len(snap.remotes) == 0 {
		return nil, ErrNoRemoteEndpoint
	}
	stacks := selection.Select(snap.tprops, securityMode(snap.security))
	if len(stacks) == 0 {
		return nil, ErrUnsatisfiable
	}

	var local endpoint.Local
	if len(snap.locals) > 0 {
		local = snap.locals[0]
	}

	connID := uuid.New().String()
	est := &establisher{
		config:   snap.establishCfg.withDefaults(),
		resolver: endpoint.NewResolver(snap.resolverCfg),
		security: snap.security,
		local:    local,
		logger:   snap.logger,
		connID:   connID,
	}

	conn, tlsConn, won, err := est.establish(ctx, snap.remotes, stacks)
	if err != nil {
		return nil, err
	}

	c := newConnection(connParams{
		id:      connID,
		conn:    conn,
		tlsConn: tlsConn,
		stack:   won.stack,
		local:   local,
		remote:  won.remote,
		role:    log.RoleInitiator,
		tprops:  snap.tprops,
		config:  snap.connCfg,
		handler: snap.handler,
		logger:  snap.logger,
	})
	c.start()
	return c, nil
}

// Listen passively opens a listener on the configured local endpoints.
// The first viable endpoint is bound; no racing takes place. Only
// stream-based stacks can listen.
func (p *Preconnection) Listen(ctx context.Context) (*Listener, error) {
	snap := p.snapshot()

	if len(snap.locals) == 0 {
		return nil, ErrNoLocalEndpoint
	}
	stacks := selection.Select(snap.tprops, securityMode(snap.security))
	if len(stacks) == 0 {
		return nil, ErrUnsatisfiable
	}
	stack, ok := firstStreamStack(stacks)
	if !ok {
		return nil, fmt.Errorf("%w: listening requires a stream-based stack", ErrNotSupported)
	}

	return newListener(ctx, listenParams{
		locals:      snap.locals,
		stack:       stack,
		tprops:      snap.tprops,
		security:    snap.security,
		config:      snap.listenerCfg,
		connCfg:     snap.connCfg,
		handler:     snap.listenerHandler,
		connHandler: snap.handler,
		logger:      snap.logger,
	})
}

// Rendezvous would establish a peer-to-peer connection by racing both
// directions simultaneously. It requires NAT traversal support, which
// no available stack provides.
func (p *Preconnection) Rendezvous(ctx context.Context) (*Connection, error) {
	snap := p.snapshot()

	if len(snap.remotes) == 0 {
		return nil, ErrNoRemoteEndpoint
	}
	if len(snap.locals) == 0 {
		return nil, ErrNoLocalEndpoint
	}
	return nil, fmt.Errorf("%w: %w for %s",
		ErrEstablishmentFailed, ErrRendezvousNotSupported, remoteDescription(snap.remotes))
}

// securityMode maps the security parameters onto the stack selection
// constraint.
func securityMode(params *security.Parameters) selection.SecurityMode {
	switch {
	case params == nil:
		return selection.SecurityRequired
	case params.Disabled():
		return selection.SecurityCleartext
	case params.Opportunistic():
		return selection.SecurityOpportunistic
	default:
		return selection.SecurityRequired
	}
}

// firstStreamStack returns the best ranked stream-based stack.
func firstStreamStack(stacks []selection.ProtocolStack) (selection.ProtocolStack, bool) {
	for _, stack := range stacks {
		if stack.ServiceClass == selection.ServiceStream {
			return stack, true
		}
	}
	return selection.ProtocolStack{}, false
}
