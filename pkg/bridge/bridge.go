package bridge

import (
	"github.com/taps-protocol/taps-go/pkg/pathmon"
	"github.com/taps-protocol/taps-go/pkg/version"
)

// ConnectionCallback delivers a connection handle. The boundary caller
// owns the handle and must free it.
type ConnectionCallback func(conn Handle, userData any)

// CompletionCallback resolves one asynchronous operation. code is
// CodeSuccess when the operation succeeded; message is empty then.
type CompletionCallback func(code Code, message string, userData any)

// ReceiveCallback delivers one received message. final reports whether
// the payload completes a logical message.
type ReceiveCallback func(payload []byte, final bool, userData any)

// PathChangeCallback delivers one network path change event.
type PathChangeCallback func(event pathmon.ChangeEvent, userData any)

// Init brings up the process-wide runtime. Calls nest: every Init needs
// a matching Shutdown, and only the last Shutdown tears the runtime
// down.
func Init() error {
	reg.initMu.Lock()
	defer reg.initMu.Unlock()
	reg.inits++
	return nil
}

// Shutdown releases one Init reference. The final Shutdown aborts every
// live connection, stops every listener and monitor, and invalidates
// all handles; pending callbacks resolve with a cancellation error.
func Shutdown() error {
	reg.initMu.Lock()
	defer reg.initMu.Unlock()
	if reg.inits == 0 {
		return reg.fail(ErrNotInitialized)
	}
	reg.inits--
	if reg.inits == 0 {
		reg.teardown()
	}
	return nil
}

// Version returns the library version string.
func Version() string {
	return version.Library
}

// LastError returns the message of the most recent failing bridge call,
// or the empty string. The value is process-wide.
func LastError() string {
	return reg.lastError()
}

// ClearLastError resets the last-error string.
func ClearLastError() {
	reg.clearLastError()
}
