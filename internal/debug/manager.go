package debug

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pulseide/debugkit/internal/dap"
)

// Manager owns the set of live sessions and a shared event stream. Hosts
// construct one manager per workspace; there is no process-wide instance.
type Manager struct {
	logger *zap.Logger
	events *Dispatcher

	mu       sync.RWMutex
	sessions map[string]*Session
	active   string
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the diagnostics logger.
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates an empty session manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:   zap.NewNop(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.events = NewDispatcher(m.logger)
	return m
}

// Subscribe registers a handler for events from every managed session and
// returns its unsubscribe function.
func (m *Manager) Subscribe(fn func(Event)) func() {
	return m.events.Subscribe(fn)
}

// NewSession creates a session over the client, registers it, and makes it
// active if it is the first one. Events flow into the shared stream.
func (m *Manager) NewSession(client *dap.Client, cfg Config) *Session {
	if cfg.Events == nil {
		cfg.Events = m.events
	}
	if cfg.Logger == nil {
		cfg.Logger = m.logger
	}
	s := NewSession(client, cfg)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	if m.active == "" {
		m.active = s.ID()
	}
	m.mu.Unlock()

	return s
}

// Session returns a session by ID.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Sessions returns all managed sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Active returns the active session, if any.
func (m *Manager) Active() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[m.active]
	return s, ok
}

// SetActive switches the active session.
func (m *Manager) SetActive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	m.active = id
	return nil
}

// Remove drops a stopped session from the manager. The active session is
// protected; switch first.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	if m.active == id {
		return ErrSessionActive
	}
	delete(m.sessions, id)
	return nil
}

// DisconnectAll terminates every session best-effort and forgets them.
// Individual teardown errors are swallowed by the sessions themselves.
func (m *Manager) DisconnectAll(ctx context.Context) {
	for _, s := range m.Sessions() {
		s.Terminate(ctx)
		if err := s.Client().Close(); err != nil {
			m.logger.Warn("close client failed",
				zap.String("session", s.ID()), zap.Error(err))
		}
	}

	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.active = ""
	m.mu.Unlock()
}
