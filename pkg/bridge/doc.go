// Package bridge exposes the engine across a language-neutral boundary:
// every Preconnection, Connection, Listener and path monitor is an
// opaque uint64 handle, every asynchronous operation resolves through
// exactly one callback invocation, and failures carry both a numeric
// code and a retrievable last-error string.
//
// The surface is shaped for a C shim to wrap one to one. Handles are
// safe to use from any goroutine or native thread; freeing a handle is
// required and detected when done twice. Strings and slices returned by
// the bridge are owned by the caller; no free call is needed for them.
//
// Init and Shutdown gate the process-wide runtime and are reference
// counted, so nested init/cleanup pairs from independent components are
// safe. The final Shutdown aborts every live handle and resolves every
// pending callback with a cancellation error.
package bridge
