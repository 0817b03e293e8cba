package bridge

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"sync"

	"github.com/taps-protocol/taps-go/pkg/endpoint"
	"github.com/taps-protocol/taps-go/pkg/property"
	"github.com/taps-protocol/taps-go/pkg/security"
	"github.com/taps-protocol/taps-go/pkg/taps"
)

// Endpoint is the boundary representation of a local or remote
// endpoint. Hostname carries either a DNS name or a literal IP; zero
// fields are unset.
type Endpoint struct {
	Hostname  string
	Port      uint16
	Service   string
	Interface string
}

func (e Endpoint) toRemote() endpoint.Remote {
	r := endpoint.NewRemote()
	if e.Hostname != "" {
		if ip := net.ParseIP(e.Hostname); ip != nil {
			r = r.WithAddress(ip)
		} else {
			r = r.WithHostname(e.Hostname)
		}
	}
	if e.Port != 0 {
		r = r.WithPort(e.Port)
	}
	if e.Service != "" {
		r = r.WithService(e.Service)
	}
	if e.Interface != "" {
		r = r.WithInterface(e.Interface)
	}
	return r
}

func (e Endpoint) toLocal() endpoint.Local {
	l := endpoint.NewLocal()
	if e.Hostname != "" {
		if ip := net.ParseIP(e.Hostname); ip != nil {
			l = l.WithAddress(ip)
		} else {
			l = l.WithHostname(e.Hostname)
		}
	}
	if e.Port != 0 {
		l = l.WithPort(e.Port)
	}
	if e.Service != "" {
		l = l.WithService(e.Service)
	}
	if e.Interface != "" {
		l = l.WithInterface(e.Interface)
	}
	return l
}

// TransportConfig is the boundary bundle of selection properties. All
// fields are applied as given; start from DefaultTransportConfig to get
// the reliable-stream defaults, since the Preference zero value is
// Require.
type TransportConfig struct {
	Reliability           property.Preference
	PreserveMsgBoundaries property.Preference
	PreserveOrder         property.Preference
	CongestionControl     property.Preference
	Direction             property.Direction
	Multipath             property.Multipath
}

// DefaultTransportConfig mirrors the engine's reliable-stream defaults.
func DefaultTransportConfig() TransportConfig {
	tp := property.NewTransportProperties()
	return TransportConfig{
		Reliability:           tp.Reliability,
		PreserveMsgBoundaries: tp.PreserveMsgBoundaries,
		PreserveOrder:         tp.PreserveOrder,
		CongestionControl:     tp.CongestionControl,
		Direction:             tp.Direction,
		Multipath:             tp.Multipath,
	}
}

func (c TransportConfig) toProperties() property.TransportProperties {
	tp := property.NewTransportProperties()
	tp.Reliability = c.Reliability
	tp.PreserveMsgBoundaries = c.PreserveMsgBoundaries
	tp.PreserveOrder = c.PreserveOrder
	tp.CongestionControl = c.CongestionControl
	tp.Direction = c.Direction
	tp.Multipath = c.Multipath
	return tp
}

// SecurityConfig is the boundary representation of security
// parameters. The zero value means TLS required with system trust.
type SecurityConfig struct {
	// Disabled selects cleartext transports only.
	Disabled bool

	// Opportunistic tries TLS but accepts cleartext.
	Opportunistic bool

	// PinnedServerCertificate holds a DER-encoded certificate the
	// server must present, replacing system trust.
	PinnedServerCertificate []byte

	// IdentityCertPEM and IdentityKeyPEM carry the local certificate
	// and key in PEM form, required for listeners.
	IdentityCertPEM []byte
	IdentityKeyPEM  []byte

	// PreSharedKey and PSKIdentity configure a pre-shared key.
	PreSharedKey []byte
	PSKIdentity  string
}

func (c SecurityConfig) toParameters() (*security.Parameters, error) {
	if c.Disabled && c.Opportunistic {
		return nil, fmt.Errorf("%w: security both disabled and opportunistic", taps.ErrInvalidParameters)
	}
	var params *security.Parameters
	switch {
	case c.Disabled:
		return security.NewDisabledParameters(), nil
	case c.Opportunistic:
		params = security.NewOpportunisticParameters()
	default:
		params = security.NewParameters()
	}
	if len(c.PinnedServerCertificate) > 0 {
		cert, err := x509.ParseCertificate(c.PinnedServerCertificate)
		if err != nil {
			return nil, fmt.Errorf("%w: pinned certificate: %v", taps.ErrInvalidParameters, err)
		}
		params.AddPinnedServerCertificate(cert)
	}
	if len(c.IdentityCertPEM) > 0 || len(c.IdentityKeyPEM) > 0 {
		pair, err := tls.X509KeyPair(c.IdentityCertPEM, c.IdentityKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("%w: identity key pair: %v", taps.ErrInvalidParameters, err)
		}
		params.Identity = []tls.Certificate{pair}
	}
	if len(c.PreSharedKey) > 0 {
		params.SetPreSharedKey(c.PreSharedKey, c.PSKIdentity)
	}
	return params, nil
}

// preconnState backs a preconnection handle. mu serializes Listen's
// handler installation against concurrent Listen calls.
type preconnState struct {
	mu sync.Mutex
	pc *taps.Preconnection
}

// NewPreconnection creates a preconnection handle with engine defaults.
func NewPreconnection() (Handle, error) {
	if !reg.initialized() {
		return 0, reg.fail(ErrNotInitialized)
	}
	h, _ := reg.register(kindPreconnection, &preconnState{pc: taps.NewPreconnection()})
	return h, nil
}

// PreconnectionAddLocal adds a local endpoint.
func PreconnectionAddLocal(h Handle, ep Endpoint) error {
	e, err := reg.lookup(h, kindPreconnection)
	if err != nil {
		return reg.fail(err)
	}
	e.obj.(*preconnState).pc.AddLocal(ep.toLocal())
	return nil
}

// PreconnectionAddRemote adds a remote endpoint.
func PreconnectionAddRemote(h Handle, ep Endpoint) error {
	e, err := reg.lookup(h, kindPreconnection)
	if err != nil {
		return reg.fail(err)
	}
	e.obj.(*preconnState).pc.AddRemote(ep.toRemote())
	return nil
}

// PreconnectionSetTransportProperties replaces the selection
// properties with cfg applied over the engine defaults.
func PreconnectionSetTransportProperties(h Handle, cfg TransportConfig) error {
	e, err := reg.lookup(h, kindPreconnection)
	if err != nil {
		return reg.fail(err)
	}
	e.obj.(*preconnState).pc.SetTransportProperties(cfg.toProperties())
	return nil
}

// PreconnectionSetPreference assigns one selection property by number,
// leaving the rest untouched.
func PreconnectionSetPreference(h Handle, kind property.Kind, pref property.Preference) error {
	e, err := reg.lookup(h, kindPreconnection)
	if err != nil {
		return reg.fail(err)
	}
	ps := e.obj.(*preconnState)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	tp := ps.pc.TransportProperties()
	if !tp.Set(kind, pref) {
		return reg.fail(fmt.Errorf("%w: unknown property %d", taps.ErrInvalidParameters, kind))
	}
	ps.pc.SetTransportProperties(tp)
	return nil
}

// PreconnectionSetSecurityParameters replaces the security parameters.
func PreconnectionSetSecurityParameters(h Handle, cfg SecurityConfig) error {
	e, err := reg.lookup(h, kindPreconnection)
	if err != nil {
		return reg.fail(err)
	}
	params, err := cfg.toParameters()
	if err != nil {
		return reg.fail(err)
	}
	e.obj.(*preconnState).pc.SetSecurityParameters(params)
	return nil
}

// PreconnectionFree releases the preconnection handle.
func PreconnectionFree(h Handle) error {
	if err := reg.free(h, kindPreconnection); err != nil {
		return reg.fail(err)
	}
	return nil
}

// Initiate starts the establishment race and returns the connection
// handle immediately. Exactly one of onReady and onError fires when the
// race resolves; the handle must be freed in either case. Aborting the
// handle cancels a race still in flight.
func Initiate(h Handle, onReady ConnectionCallback, onError CompletionCallback, userData any) (Handle, error) {
	pe, err := reg.lookup(h, kindPreconnection)
	if err != nil {
		return 0, reg.fail(err)
	}
	if onReady == nil || onError == nil {
		return 0, reg.fail(fmt.Errorf("%w: nil callback", taps.ErrInvalidParameters))
	}
	ps := pe.obj.(*preconnState)
	if !reg.retain(pe) {
		return 0, reg.fail(ErrInvalidHandle)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cs := &connState{cancel: cancel}
	ch, ce := reg.register(kindConnection, cs)
	reg.retain(ce)

	tok := &completionToken{}
	go func() {
		defer reg.release(ch, ce)
		defer reg.release(h, pe)

		conn, err := ps.pc.Initiate(ctx)
		cancel()
		if err != nil {
			cs.mu.Lock()
			cs.failed = true
			cs.cancel = nil
			cs.mu.Unlock()
			reg.recordFailure(err)
			tok.fire(func() { onError(CodeOf(err), err.Error(), userData) })
			return
		}

		cs.mu.Lock()
		cs.conn = conn
		cs.cancel = nil
		freed := ce.freed.Load()
		cs.mu.Unlock()
		if freed {
			conn.Abort()
			reg.recordFailure(taps.ErrConnectionClosed)
			tok.fire(func() {
				onError(CodeConnectionFailed, "connection handle freed during establishment", userData)
			})
			return
		}
		tok.fire(func() { onReady(ch, userData) })
	}()
	return ch, nil
}

// Listen binds the local endpoints and returns a listener handle.
// Inbound connections queue until ListenerSetHandler installs a
// callback.
func Listen(h Handle) (Handle, error) {
	pe, err := reg.lookup(h, kindPreconnection)
	if err != nil {
		return 0, reg.fail(err)
	}
	ps := pe.obj.(*preconnState)

	ls := &listenerState{}
	ps.mu.Lock()
	ps.pc.SetListenerHandler(&forwardingHandler{state: ls})
	ln, err := ps.pc.Listen(context.Background())
	ps.mu.Unlock()
	if err != nil {
		return 0, reg.fail(err)
	}
	ls.mu.Lock()
	ls.ln = ln
	ls.mu.Unlock()
	lh, _ := reg.register(kindListener, ls)
	return lh, nil
}
