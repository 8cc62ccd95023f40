package dap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// StdioTransport runs a debug adapter as a subprocess and speaks the
// protocol over its stdin/stdout. There is no reconnection: a dead adapter
// process is a terminal close.
type StdioTransport struct {
	cmd *exec.Cmd

	mu        sync.Mutex
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	connected bool
	closing   bool

	closeOnce sync.Once

	onMessage func(*Message)
	onError   func(error)
	onClose   func(error)
}

// NewStdioTransport creates a transport for the given adapter command.
// The command is started by Connect.
func NewStdioTransport(cmd *exec.Cmd) *StdioTransport {
	return &StdioTransport{cmd: cmd}
}

// OnMessage registers the received-message handler.
func (t *StdioTransport) OnMessage(fn func(*Message)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

// OnError registers the transport-error handler.
func (t *StdioTransport) OnError(fn func(error)) {
	t.mu.Lock()
	t.onError = fn
	t.mu.Unlock()
}

// OnClose registers the closed handler.
func (t *StdioTransport) OnClose(fn func(error)) {
	t.mu.Lock()
	t.onClose = fn
	t.mu.Unlock()
}

// Connect starts the adapter process and begins reading its stdout.
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing {
		return ErrClosed
	}
	if t.connected {
		return nil
	}

	stdin, err := t.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("get stdin pipe: %w", err)
	}

	stdout, err := t.cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("get stdout pipe: %w", err)
	}

	if err := t.cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("start adapter: %w", err)
	}

	t.stdin = stdin
	t.stdout = stdout
	t.connected = true

	go t.readLoop(stdout)
	return nil
}

// Disconnect kills the adapter process and closes the pipes.
func (t *StdioTransport) Disconnect() error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	t.connected = false
	stdin := t.stdin
	stdout := t.stdout
	onClose := t.onClose
	t.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if stdout != nil {
		stdout.Close()
	}
	if t.cmd.Process != nil {
		t.cmd.Process.Kill()
	}
	err := t.cmd.Wait()

	t.closeOnce.Do(func() {
		if onClose != nil {
			onClose(nil)
		}
	})
	return err
}

// Connected reports whether the adapter process is up.
func (t *StdioTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Send writes one message to the adapter's stdin.
func (t *StdioTransport) Send(msg *Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing {
		return ErrClosed
	}
	if !t.connected {
		return ErrNotConnected
	}
	return writeMessage(t.stdin, msg)
}

func (t *StdioTransport) readLoop(stdout io.Reader) {
	reader := bufio.NewReader(stdout)
	for {
		msg, err := readMessage(reader)
		if err != nil {
			t.mu.Lock()
			closing := t.closing
			t.connected = false
			onError := t.onError
			onClose := t.onClose
			t.mu.Unlock()

			if closing {
				return
			}
			if onError != nil {
				onError(fmt.Errorf("receive: %w", err))
			}
			t.closeOnce.Do(func() {
				if onClose != nil {
					onClose(err)
				}
			})
			return
		}

		t.mu.Lock()
		handler := t.onMessage
		t.mu.Unlock()
		if handler != nil {
			handler(msg)
		}
	}
}
