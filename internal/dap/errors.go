package dap

import "errors"

var (
	// ErrTimeout is returned when no response arrives within the request window.
	ErrTimeout = errors.New("dap: request timed out")

	// ErrClosed is returned when using a client or transport after Close.
	ErrClosed = errors.New("dap: closed")

	// ErrNotConnected is returned by transports that cannot queue sends.
	ErrNotConnected = errors.New("dap: not connected")

	// ErrReconnectFailed is the terminal transport error after the reconnect
	// attempt cap is exceeded.
	ErrReconnectFailed = errors.New("dap: reconnect attempts exhausted")
)
