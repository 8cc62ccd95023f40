package dap

import "context"

// Transport is a bidirectional message channel to a debug adapter.
// Received messages, transport errors, and closure are delivered through
// the subscription points; handlers must be registered before Connect.
type Transport interface {
	// Connect establishes the channel.
	Connect(ctx context.Context) error

	// Disconnect tears the channel down. Safe to call more than once.
	Disconnect() error

	// Send transmits a message. Implementations may queue sends while
	// disconnected rather than fail.
	Send(msg *Message) error

	// Connected reports true link status, not merely that Connect was called.
	Connected() bool

	// OnMessage registers the handler for received messages.
	OnMessage(fn func(*Message))

	// OnError registers the handler for transport errors.
	OnError(fn func(error))

	// OnClose registers the handler invoked when the transport closes for
	// good. The error is nil on orderly disconnect.
	OnClose(fn func(error))
}
