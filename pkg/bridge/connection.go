package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/taps-protocol/taps-go/pkg/taps"
)

// MessageOptions carries per-message properties across the boundary.
// The zero value sends a complete, non-final message with engine
// defaults.
type MessageOptions struct {
	// ID is echoed in completion reporting; the engine assigns one
	// when empty.
	ID string

	// LifetimeMillis bounds how long the message may wait before
	// reaching the wire. Zero means unlimited.
	LifetimeMillis uint64

	// Priority orders queued messages; lower is more urgent. Zero
	// keeps the engine default.
	Priority uint32

	// Idempotent marks the message safe to send as early data.
	Idempotent bool

	// Final closes the sending direction after delivery.
	Final bool

	// Partial marks a non-final chunk of a larger message.
	Partial bool
}

func (o MessageOptions) build(payload []byte) *taps.Message {
	msg := taps.NewMessage(payload)
	if o.ID != "" {
		msg.WithID(o.ID)
	}
	if o.LifetimeMillis > 0 {
		msg.WithLifetime(time.Duration(o.LifetimeMillis) * time.Millisecond)
	}
	if o.Priority > 0 {
		msg.WithPriority(o.Priority)
	}
	if o.Idempotent {
		msg.Idempotent()
	}
	if o.Final {
		msg.Final()
	}
	if o.Partial {
		msg.Partial()
	}
	return msg
}

// ConnectionState returns the connection lifecycle state. Handles whose
// establishment race is still in flight report Establishing; invalid
// handles report Closed alongside the error.
func ConnectionState(h Handle) (taps.ConnectionState, error) {
	e, err := reg.lookup(h, kindConnection)
	if err != nil {
		return taps.StateClosed, reg.fail(err)
	}
	return e.obj.(*connState).state(), nil
}

// Send queues payload for transmission and returns immediately.
// onComplete fires exactly once with the outcome.
func Send(h Handle, payload []byte, opts MessageOptions, onComplete CompletionCallback, userData any) error {
	e, err := reg.lookup(h, kindConnection)
	if err != nil {
		return reg.fail(err)
	}
	if onComplete == nil {
		return reg.fail(fmt.Errorf("%w: nil completion callback", taps.ErrInvalidParameters))
	}
	if len(payload) == 0 {
		return reg.fail(fmt.Errorf("%w: empty payload", taps.ErrInvalidParameters))
	}
	cs := e.obj.(*connState)
	conn := cs.established()
	if conn == nil {
		return reg.fail(fmt.Errorf("%w: connection not ready", taps.ErrInvalidState))
	}
	if !reg.retain(e) {
		return reg.fail(ErrInvalidHandle)
	}

	tok := &completionToken{}
	go func() {
		defer reg.release(h, e)
		err := conn.Send(context.Background(), opts.build(payload))
		if err != nil {
			reg.recordFailure(err)
		}
		tok.fire(func() { onComplete(CodeOf(err), errorMessage(err), userData) })
	}()
	return nil
}

// Receive asks for the next message. onReceived or onError fires
// exactly once. minIncomplete and maxLength bound partial delivery as
// in the engine; zero values select the defaults.
func Receive(h Handle, minIncomplete, maxLength int, onReceived ReceiveCallback, onError CompletionCallback, userData any) error {
	e, err := reg.lookup(h, kindConnection)
	if err != nil {
		return reg.fail(err)
	}
	if onReceived == nil || onError == nil {
		return reg.fail(fmt.Errorf("%w: nil callback", taps.ErrInvalidParameters))
	}
	cs := e.obj.(*connState)
	conn := cs.established()
	if conn == nil {
		return reg.fail(fmt.Errorf("%w: connection not ready", taps.ErrInvalidState))
	}
	if !reg.retain(e) {
		return reg.fail(ErrInvalidHandle)
	}

	tok := &completionToken{}
	go func() {
		defer reg.release(h, e)
		msg, mctx, err := conn.Receive(context.Background(), minIncomplete, maxLength)
		if err != nil {
			reg.recordFailure(err)
			tok.fire(func() { onError(CodeOf(err), err.Error(), userData) })
			return
		}
		tok.fire(func() { onReceived(msg.Payload(), mctx.Final, userData) })
	}()
	return nil
}

// Close shuts the connection down gracefully, flushing queued sends.
// onClosed fires exactly once.
func Close(h Handle, onClosed CompletionCallback, userData any) error {
	e, err := reg.lookup(h, kindConnection)
	if err != nil {
		return reg.fail(err)
	}
	if onClosed == nil {
		return reg.fail(fmt.Errorf("%w: nil completion callback", taps.ErrInvalidParameters))
	}
	cs := e.obj.(*connState)
	conn := cs.established()
	if conn == nil {
		return reg.fail(fmt.Errorf("%w: connection not ready", taps.ErrInvalidState))
	}
	if !reg.retain(e) {
		return reg.fail(ErrInvalidHandle)
	}

	tok := &completionToken{}
	go func() {
		defer reg.release(h, e)
		err := conn.Close()
		if err != nil {
			reg.recordFailure(err)
		}
		tok.fire(func() { onClosed(CodeOf(err), errorMessage(err), userData) })
	}()
	return nil
}

// Abort tears the connection down immediately. Pending sends and
// receives resolve with a closed error; a still-running establishment
// race is cancelled.
func Abort(h Handle) error {
	e, err := reg.lookup(h, kindConnection)
	if err != nil {
		return reg.fail(err)
	}
	cs := e.obj.(*connState)

	cs.mu.Lock()
	conn := cs.conn
	cancel := cs.cancel
	cs.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Abort()
	}
	return nil
}

// ConnectionFree releases the connection handle. A connection still
// open when its last reference drops is aborted.
func ConnectionFree(h Handle) error {
	if err := reg.free(h, kindConnection); err != nil {
		return reg.fail(err)
	}
	return nil
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
