package bridge

import (
	"context"
	"fmt"

	"github.com/taps-protocol/taps-go/pkg/pathmon"
	"github.com/taps-protocol/taps-go/pkg/taps"
)

// ListInterfaces returns a snapshot of the usable network interfaces.
// The returned slice is owned by the caller.
func ListInterfaces() ([]pathmon.Interface, error) {
	if !reg.initialized() {
		return nil, reg.fail(ErrNotInitialized)
	}
	ifaces, err := pathmon.List()
	if err != nil {
		return nil, reg.fail(err)
	}
	return ifaces, nil
}

// StartPathMonitor begins watching for interface changes and returns
// the watcher handle. cb fires once per change until StopPathMonitor.
func StartPathMonitor(cb PathChangeCallback, userData any) (Handle, error) {
	if !reg.initialized() {
		return 0, reg.fail(ErrNotInitialized)
	}
	if cb == nil {
		return 0, reg.fail(fmt.Errorf("%w: nil callback", taps.ErrInvalidParameters))
	}

	mon := pathmon.NewMonitor(pathmon.DefaultMonitorConfig(), func(ev pathmon.ChangeEvent) {
		cb(ev, userData)
	})
	ctx, cancel := context.WithCancel(context.Background())
	mon.Start(ctx)

	h, _ := reg.register(kindMonitor, &monitorState{mon: mon, cancel: cancel})
	return h, nil
}

// StopPathMonitor stops the watcher and releases its handle. A second
// stop of the same handle returns ErrInvalidHandle.
func StopPathMonitor(h Handle) error {
	if err := reg.free(h, kindMonitor); err != nil {
		return reg.fail(err)
	}
	return nil
}
