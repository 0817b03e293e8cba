package taps

// EventHandler receives asynchronous connection events. All methods are
// invoked from engine goroutines; implementations must not block. Embed
// NoopHandler to implement a subset.
type EventHandler interface {
	// OnReady fires once when the connection enters Ready.
	OnReady()

	// OnReceived fires for every message delivered by Receive.
	OnReceived(msg *Message, mctx *MessageContext)

	// OnSent fires when a logical message has been handed to the wire.
	OnSent(messageID string)

	// OnExpired fires when a message lifetime elapses before its send
	// starts. The message is dropped.
	OnExpired(messageID string)

	// OnSoftError reports a non-fatal condition. The connection state is
	// unchanged.
	OnSoftError(err error)

	// OnPathChange reports that the set of usable local interfaces
	// changed.
	OnPathChange()

	// OnStateChange fires on every connection state transition.
	OnStateChange(old, new ConnectionState)

	// OnClosed fires exactly once when the connection reaches a terminal
	// state. err is nil after a clean close.
	OnClosed(err error)
}

// NoopHandler implements EventHandler with no-ops.
type NoopHandler struct{}

func (NoopHandler) OnReady()                                       {}
func (NoopHandler) OnReceived(*Message, *MessageContext)           {}
func (NoopHandler) OnSent(string)                                  {}
func (NoopHandler) OnExpired(string)                               {}
func (NoopHandler) OnSoftError(error)                              {}
func (NoopHandler) OnPathChange()                                  {}
func (NoopHandler) OnStateChange(ConnectionState, ConnectionState) {}
func (NoopHandler) OnClosed(error)                                 {}

var _ EventHandler = NoopHandler{}

// ListenerHandler receives asynchronous listener events.
type ListenerHandler interface {
	// OnConnectionReceived delivers a fully established inbound
	// connection. The receiver owns it from this point.
	OnConnectionReceived(conn *Connection)

	// OnListenError reports a non-fatal accept or handshake failure.
	OnListenError(err error)

	// OnStopped fires once when the listener stops.
	OnStopped()
}

// NoopListenerHandler implements ListenerHandler with no-ops.
type NoopListenerHandler struct{}

func (NoopListenerHandler) OnConnectionReceived(*Connection) {}
func (NoopListenerHandler) OnListenError(error)              {}
func (NoopListenerHandler) OnStopped()                       {}

var _ ListenerHandler = NoopListenerHandler{}
