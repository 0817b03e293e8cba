package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/taps-protocol/taps-go/pkg/pathmon"
	"github.com/taps-protocol/taps-go/pkg/taps"
)

// Handle identifies one engine-owned object across the boundary. Zero
// is never a valid handle.
type Handle uint64

// Bridge errors. Operation arguments that fail validation wrap
// taps.ErrInvalidParameters instead.
var (
	// ErrNotInitialized is returned by operations before Init or after
	// the final Shutdown.
	ErrNotInitialized = errors.New("bridge not initialized")

	// ErrInvalidHandle is returned for unknown, freed or wrongly typed
	// handles, including the second free of the same handle.
	ErrInvalidHandle = errors.New("invalid or freed handle")
)

type handleKind int32

const (
	kindPreconnection handleKind = iota
	kindConnection
	kindListener
	kindMonitor
)

// entry is one registry slot. refs counts the boundary reference plus
// one reference per in-flight asynchronous operation; the object is
// disposed when the count reaches zero. freed flips exactly once when
// the boundary releases its reference.
type entry struct {
	kind  handleKind
	refs  atomic.Int32
	freed atomic.Bool
	obj   any
}

// connState backs a connection handle. conn is nil while the
// establishment race started by Initiate is still in flight; failed is
// set when that race ends without a connection.
type connState struct {
	mu     sync.Mutex
	conn   *taps.Connection
	cancel context.CancelFunc
	failed bool
}

func (s *connState) established() *taps.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *connState) state() taps.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.conn != nil:
		return s.conn.State()
	case s.failed:
		return taps.StateFailed
	default:
		return taps.StateEstablishing
	}
}

func (s *connState) dispose() {
	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil && !conn.State().Terminal() {
		conn.Abort()
	}
}

// listenerState backs a listener handle. Inbound connections are
// wrapped into handles as they arrive; until the boundary installs a
// handler they queue in pending.
type listenerState struct {
	mu       sync.Mutex
	ln       *taps.Listener
	cb       ConnectionCallback
	userData any
	pending  []Handle
}

func (s *listenerState) dispose() {
	s.mu.Lock()
	ln := s.ln
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	if ln != nil {
		ln.Stop()
	}
	// Undelivered connections belong to no one once the listener is
	// gone; tear them down.
	for _, h := range pending {
		reg.freeInternal(h)
	}
}

// monitorState backs a path monitor handle.
type monitorState struct {
	mon    *pathmon.Monitor
	cancel context.CancelFunc
}

func (s *monitorState) dispose() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mon.Stop()
}

func (e *entry) dispose() {
	switch s := e.obj.(type) {
	case *connState:
		s.dispose()
	case *listenerState:
		s.dispose()
	case *monitorState:
		s.dispose()
	}
}

// registry is the process-wide handle table. Handles are allocated from
// a counter salted at startup so values from a previous process run
// never validate by accident.
type registry struct {
	initMu sync.Mutex
	inits  int

	handles sync.Map // Handle -> *entry
	next    atomic.Uint64

	errMu   sync.Mutex
	lastErr string
}

var reg = newRegistry()

func newRegistry() *registry {
	r := &registry{}
	id := uuid.New()
	r.next.Store(binary.BigEndian.Uint64(id[:8]) >> 16)
	return r
}

func (r *registry) initialized() bool {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	return r.inits > 0
}

func (r *registry) register(kind handleKind, obj any) (Handle, *entry) {
	e := &entry{kind: kind, obj: obj}
	e.refs.Store(1)
	h := Handle(r.next.Add(1))
	r.handles.Store(h, e)
	return h, e
}

// lookup returns the live entry for h, or ErrNotInitialized /
// ErrInvalidHandle. The entry is not retained; callers that hand it to
// a goroutine must retain it first.
func (r *registry) lookup(h Handle, kind handleKind) (*entry, error) {
	if !r.initialized() {
		return nil, ErrNotInitialized
	}
	v, ok := r.handles.Load(h)
	if !ok {
		return nil, ErrInvalidHandle
	}
	e := v.(*entry)
	if e.kind != kind || e.freed.Load() {
		return nil, ErrInvalidHandle
	}
	return e, nil
}

// retain adds a reference unless the entry is already dead.
func (r *registry) retain(e *entry) bool {
	for {
		n := e.refs.Load()
		if n <= 0 {
			return false
		}
		if e.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops one reference and disposes the object when the last
// reference is gone.
func (r *registry) release(h Handle, e *entry) {
	if e.refs.Add(-1) != 0 {
		return
	}
	r.handles.Delete(h)
	e.dispose()
}

// free releases the boundary reference exactly once.
func (r *registry) free(h Handle, kind handleKind) error {
	e, err := r.lookup(h, kind)
	if err != nil {
		return err
	}
	if !e.freed.CompareAndSwap(false, true) {
		return ErrInvalidHandle
	}
	r.release(h, e)
	return nil
}

// freeInternal releases a bridge-owned reference without the
// initialization check, for cleanup paths that run during teardown.
func (r *registry) freeInternal(h Handle) {
	v, ok := r.handles.Load(h)
	if !ok {
		return
	}
	e := v.(*entry)
	if !e.freed.CompareAndSwap(false, true) {
		return
	}
	r.release(h, e)
}

func (r *registry) recordFailure(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	r.lastErr = err.Error()
	r.errMu.Unlock()
}

func (r *registry) lastError() string {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.lastErr
}

func (r *registry) clearLastError() {
	r.errMu.Lock()
	r.lastErr = ""
	r.errMu.Unlock()
}

// fail records err as the last error and returns it.
func (r *registry) fail(err error) error {
	r.recordFailure(err)
	return err
}

// teardown force-disposes every live entry. Pending operations unblock
// with a cancellation error and fire their callbacks before their
// references drain.
func (r *registry) teardown() {
	r.handles.Range(func(key, value any) bool {
		h := key.(Handle)
		e := value.(*entry)
		e.freed.Store(true)
		e.dispose()
		r.handles.Delete(h)
		return true
	})
}

// completionToken makes the callback pair of one asynchronous call fire
// exactly once no matter how the operation resolves.
type completionToken struct {
	once sync.Once
}

func (t *completionToken) fire(fn func()) {
	t.once.Do(fn)
}
