package bridge

import (
	"github.com/taps-protocol/taps-go/pkg/taps"
)

// forwardingHandler turns engine listener events into handle
// deliveries. Connections arriving before a callback is installed
// queue in the listener state.
type forwardingHandler struct {
	taps.NoopListenerHandler
	state *listenerState
}

func (f *forwardingHandler) OnConnectionReceived(conn *taps.Connection) {
	ch, _ := reg.register(kindConnection, &connState{conn: conn})

	s := f.state
	s.mu.Lock()
	cb, userData := s.cb, s.userData
	if cb == nil {
		s.pending = append(s.pending, ch)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// Engine handlers must not block; boundary callbacks may.
	go cb(ch, userData)
}

func (f *forwardingHandler) OnListenError(err error) {
	reg.recordFailure(err)
}

// ListenerSetHandler installs the connection-delivery callback and
// flushes any connections that arrived before it. Passing nil stops
// delivery; connections queue again.
func ListenerSetHandler(h Handle, cb ConnectionCallback, userData any) error {
	e, err := reg.lookup(h, kindListener)
	if err != nil {
		return reg.fail(err)
	}
	s := e.obj.(*listenerState)

	s.mu.Lock()
	s.cb = cb
	s.userData = userData
	queued := s.pending
	if cb != nil {
		s.pending = nil
	}
	s.mu.Unlock()

	if cb == nil {
		return nil
	}
	for _, ch := range queued {
		go cb(ch, userData)
	}
	return nil
}

// ListenerSetConnectionLimit caps concurrently served connections.
// Zero means unlimited.
func ListenerSetConnectionLimit(h Handle, n int) error {
	e, err := reg.lookup(h, kindListener)
	if err != nil {
		return reg.fail(err)
	}
	s := e.obj.(*listenerState)
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	ln.SetConnectionLimit(n)
	return nil
}

// ListenerLocalEndpoint returns the bound address and port.
func ListenerLocalEndpoint(h Handle) (Endpoint, error) {
	e, err := reg.lookup(h, kindListener)
	if err != nil {
		return Endpoint{}, reg.fail(err)
	}
	s := e.obj.(*listenerState)
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	local := ln.LocalEndpoint()
	ep := Endpoint{Port: local.Port, Service: local.Service, Interface: local.Interface}
	if local.Address != nil {
		ep.Hostname = local.Address.String()
	} else {
		ep.Hostname = local.Hostname
	}
	return ep, nil
}

// ListenerIsActive reports whether the listener is accepting. Unknown
// handles report false.
func ListenerIsActive(h Handle) bool {
	e, err := reg.lookup(h, kindListener)
	if err != nil {
		return false
	}
	s := e.obj.(*listenerState)
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	return ln.IsRunning()
}

// ListenerStop stops accepting. Connections already delivered are
// unaffected; queued undelivered ones are torn down. Idempotent.
func ListenerStop(h Handle) error {
	e, err := reg.lookup(h, kindListener)
	if err != nil {
		return reg.fail(err)
	}
	s := e.obj.(*listenerState)

	s.mu.Lock()
	ln := s.ln
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	ln.Stop()
	for _, ch := range pending {
		reg.freeInternal(ch)
	}
	return nil
}

// ListenerFree stops the listener and releases the handle.
func ListenerFree(h Handle) error {
	if err := reg.free(h, kindListener); err != nil {
		return reg.fail(err)
	}
	return nil
}
