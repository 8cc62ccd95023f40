package dap

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TCPConfig configures a TCPTransport.
type TCPConfig struct {
	// Addr is the adapter address in host:port form.
	Addr string

	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration

	// ReconnectBaseDelay is the delay before the first reconnect attempt;
	// it doubles on every subsequent attempt.
	ReconnectBaseDelay time.Duration

	// MaxReconnectAttempts caps reconnect attempts after an abnormal close.
	// Exceeding the cap surfaces a terminal transport error.
	MaxReconnectAttempts int

	// Logger receives transport diagnostics. Nil means no logging.
	Logger *zap.Logger
}

// DefaultTCPConfig returns a default transport configuration for addr.
func DefaultTCPConfig(addr string) TCPConfig {
	return TCPConfig{
		Addr:                 addr,
		DialTimeout:          10 * time.Second,
		ReconnectBaseDelay:   250 * time.Millisecond,
		MaxReconnectAttempts: 5,
	}
}

// TCPTransport is a reconnecting network transport. Sends while disconnected
// are queued and flushed in original order once the link is back. After an
// abnormal close it retries with exponential backoff up to the configured
// attempt cap, then reports a terminal error and stops.
type TCPTransport struct {
	cfg    TCPConfig
	logger *zap.Logger

	// dial is swappable for tests.
	dial func() (net.Conn, error)

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	closing   bool
	queue     []*Message

	done      chan struct{}
	closeOnce sync.Once

	onMessage func(*Message)
	onError   func(error)
	onClose   func(error)
}

// NewTCPTransport creates a reconnecting TCP transport.
func NewTCPTransport(cfg TCPConfig) *TCPTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &TCPTransport{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	t.dial = func() (net.Conn, error) {
		return net.DialTimeout("tcp", cfg.Addr, cfg.DialTimeout)
	}
	return t
}

// OnMessage registers the received-message handler.
func (t *TCPTransport) OnMessage(fn func(*Message)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

// OnError registers the transport-error handler.
func (t *TCPTransport) OnError(fn func(error)) {
	t.mu.Lock()
	t.onError = fn
	t.mu.Unlock()
}

// OnClose registers the closed handler.
func (t *TCPTransport) OnClose(fn func(error)) {
	t.mu.Lock()
	t.onClose = fn
	t.mu.Unlock()
}

// Connect dials the adapter and flushes any queued messages. The initial
// connection is not retried; backoff applies only after a successful
// connection drops.
func (t *TCPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, err := t.dial()
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.cfg.Addr, err)
	}

	t.attach(conn)
	t.logger.Debug("transport connected", zap.String("addr", t.cfg.Addr))
	return nil
}

// attach installs a live connection, flushes the queue, and starts reading.
func (t *TCPTransport) attach(conn net.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.connected = true
	pending := t.queue
	t.queue = nil

	var flushErr error
	for i, msg := range pending {
		if err := writeMessage(conn, msg); err != nil {
			// Keep the unsent tail for the next connection.
			t.queue = append(t.queue, pending[i:]...)
			flushErr = err
			break
		}
	}
	t.mu.Unlock()

	if flushErr != nil {
		t.logger.Warn("flush after connect failed", zap.Error(flushErr))
	}

	go t.readLoop(conn)
}

// Disconnect closes the transport for good.
func (t *TCPTransport) Disconnect() error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	conn := t.conn
	t.conn = nil
	t.connected = false
	onClose := t.onClose
	t.mu.Unlock()

	t.closeOnce.Do(func() { close(t.done) })

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if onClose != nil {
		onClose(nil)
	}
	return err
}

// Connected reports true link status.
func (t *TCPTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Send transmits a message, queueing it if the link is down.
func (t *TCPTransport) Send(msg *Message) error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return ErrClosed
	}
	if !t.connected {
		t.queue = append(t.queue, msg)
		t.mu.Unlock()
		return nil
	}

	conn := t.conn
	err := writeMessage(conn, msg)
	if err != nil {
		// The link is breaking; requeue and let the reconnect path retry.
		t.queue = append(t.queue, msg)
		t.connected = false
		t.conn = nil
		t.mu.Unlock()

		conn.Close()
		t.emitError(fmt.Errorf("send: %w", err))
		go t.reconnectLoop()
		return nil
	}
	t.mu.Unlock()
	return nil
}

// readLoop receives messages until the connection drops.
func (t *TCPTransport) readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		msg, err := readMessage(reader)
		if err != nil {
			t.mu.Lock()
			if t.closing || t.conn != conn {
				t.mu.Unlock()
				return
			}
			t.connected = false
			t.conn = nil
			t.mu.Unlock()

			conn.Close()
			t.emitError(fmt.Errorf("receive: %w", err))
			go t.reconnectLoop()
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

// reconnectLoop retries the connection with exponential backoff. Attempt N
// waits ReconnectBaseDelay << (N-1) before dialing.
func (t *TCPTransport) reconnectLoop() {
	for attempt := 1; attempt <= t.cfg.MaxReconnectAttempts; attempt++ {
		delay := t.cfg.ReconnectBaseDelay << (attempt - 1)

		select {
		case <-t.done:
			return
		case <-time.After(delay):
		}

		t.mu.Lock()
		if t.closing {
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		conn, err := t.dial()
		if err == nil {
			t.logger.Info("transport reconnected",
				zap.String("addr", t.cfg.Addr),
				zap.Int("attempt", attempt))
			t.attach(conn)
			return
		}

		t.logger.Warn("reconnect attempt failed",
			zap.String("addr", t.cfg.Addr),
			zap.Int("attempt", attempt),
			zap.Error(err))
		t.emitError(fmt.Errorf("reconnect attempt %d: %w", attempt, err))
	}

	t.mu.Lock()
	t.closing = true
	onClose := t.onClose
	t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.done) })

	t.emitError(ErrReconnectFailed)
	if onClose != nil {
		onClose(ErrReconnectFailed)
	}
}

func (t *TCPTransport) emitError(err error) {
	t.mu.Lock()
	handler := t.onError
	t.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}
