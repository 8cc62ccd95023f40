package debug

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseide/debugkit/internal/dap"
)

// State is a session lifecycle state. Transitions only move forward
// through the graph except for the paused/stepping/running cycle.
type State int

const (
	// StateInitializing is the initial state; the capability handshake is
	// in flight.
	StateInitializing State = iota
	// StateConfigured means capabilities were received.
	StateConfigured
	// StateLaunching means the launch or attach request was accepted.
	StateLaunching
	// StateRunning means the debuggee is executing.
	StateRunning
	// StatePaused means the debuggee is halted on a stop.
	StatePaused
	// StateStepping means a step command is in flight.
	StateStepping
	// StateStopping means teardown has begun.
	StateStopping
	// StateStopped is terminal.
	StateStopped
	// StateError is terminal; initialize or launch failed.
	StateError
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateConfigured:
		return "configured"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStepping:
		return "stepping"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// terminal reports whether no further transitions are allowed.
func (s State) terminal() bool {
	return s == StateStopped || s == StateError
}

// Mode selects how the session acquires its debuggee.
type Mode int

const (
	// ModeLaunch starts a new debuggee process.
	ModeLaunch Mode = iota
	// ModeAttach attaches to a running one.
	ModeAttach
)

// Config configures a debug session.
type Config struct {
	// Name is the display name for the session.
	Name string

	// AdapterID identifies the debug adapter type (e.g. "delve").
	AdapterID string

	// ClientID and ClientName identify this client to the adapter.
	ClientID   string
	ClientName string

	// Mode selects launch or attach.
	Mode Mode

	// LaunchArgs is the opaque adapter-specific launch/attach body.
	LaunchArgs any

	// StackDepth is how many frames a stack refresh requests.
	StackDepth int

	// Events receives session events. Nil means a private dispatcher.
	Events *Dispatcher

	// Logger receives session diagnostics, including swallowed teardown
	// and stack-refresh errors. Nil means no logging.
	Logger *zap.Logger
}

// DefaultConfig returns a default session configuration.
func DefaultConfig() Config {
	return Config{
		Name:       "debug",
		AdapterID:  "generic",
		ClientID:   "debugkit",
		ClientName: "Pulse Debugkit",
		StackDepth: 20,
	}
}

// OutputEntry is one captured debuggee output line.
type OutputEntry struct {
	Category string
	Text     string
	Time     time.Time
}

// maxOutputEntries caps the per-session output ring.
const maxOutputEntries = 1000

// Session is one debugging engagement against a single adapter. All mutable
// state is guarded by mu; event handlers and command completions are the
// only mutators.
type Session struct {
	id     string
	cfg    Config
	client *dap.Client
	events *Dispatcher
	logger *zap.Logger

	mu           sync.RWMutex
	state        State
	caps         *dap.Capabilities
	lastErr      error
	startedAt    time.Time
	endedAt      time.Time
	exitCode     int
	exitCodeSet  bool
	threads      map[int]*Thread
	activeThread int
	output       []OutputEntry
}

// NewSession creates a session over an already-connected client and wires
// its event handlers. Start drives the handshake.
func NewSession(client *dap.Client, cfg Config) *Session {
	if cfg.StackDepth <= 0 {
		cfg.StackDepth = 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := cfg.Events
	if events == nil {
		events = NewDispatcher(logger)
	}

	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		client:    client,
		events:    events,
		logger:    logger.With(zap.String("adapter", cfg.AdapterID)),
		state:     StateInitializing,
		startedAt: time.Now(),
		threads:   make(map[int]*Thread),
	}

	client.OnStopped(s.onStopped)
	client.OnContinued(s.onContinued)
	client.OnThread(s.onThread)
	client.OnOutput(s.onOutput)
	client.OnBreakpoint(s.onBreakpoint)
	client.OnTerminated(s.onTerminated)
	client.OnExited(s.onExited)
	client.OnEvent(s.onAnyEvent)

	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Name returns the session display name.
func (s *Session) Name() string { return s.cfg.Name }

// AdapterID returns the adapter type identifier.
func (s *Session) AdapterID() string { return s.cfg.AdapterID }

// Client returns the underlying protocol client.
func (s *Session) Client() *dap.Client { return s.client }

// Events returns the session's event dispatcher.
func (s *Session) Events() *Dispatcher { return s.events }

// Subscribe registers an event handler and returns its unsubscribe function.
func (s *Session) Subscribe(fn func(Event)) func() {
	return s.events.Subscribe(fn)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Capabilities returns the negotiated capability flags, or nil before the
// handshake completes. The returned value is a copy.
func (s *Session) Capabilities() *dap.Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.caps == nil {
		return nil
	}
	caps := *s.caps
	return &caps
}

// LastError returns the failure recorded when the session entered the
// error state.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ExitCode returns the debuggee exit code, if one was reported.
func (s *Session) ExitCode() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exitCode, s.exitCodeSet
}

// StartedAt returns the session creation time.
func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// EndedAt returns the session end time; zero while live.
func (s *Session) EndedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endedAt
}

// Threads returns a snapshot of all known threads.
func (s *Session) Threads() []Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t.clone())
	}
	return out
}

// Thread returns a snapshot of one thread.
func (s *Session) Thread(id int) (Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return Thread{}, false
	}
	return t.clone(), true
}

// ActiveThread returns the thread the session currently focuses on.
func (s *Session) ActiveThread() (Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[s.activeThread]
	if !ok {
		return Thread{}, false
	}
	return t.clone(), true
}

// Output returns a snapshot of captured debuggee output, oldest first.
func (s *Session) Output() []OutputEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OutputEntry, len(s.output))
	copy(out, s.output)
	return out
}

// Start drives initialize, launch/attach, and the configuration-done step.
// A failure in any of those moves the session to the error state.
func (s *Session) Start(ctx context.Context) error {
	caps, err := s.client.Initialize(ctx, dap.InitializeRequestArguments{
		ClientID:             s.cfg.ClientID,
		ClientName:           s.cfg.ClientName,
		AdapterID:            s.cfg.AdapterID,
		LinesStartAt1:        true,
		ColumnsStartAt1:      true,
		PathFormat:           "path",
		SupportsVariableType: true,
	})
	if err != nil {
		return s.fail(fmt.Errorf("initialize: %w", err))
	}

	s.mu.Lock()
	s.caps = caps
	s.mu.Unlock()
	s.setState(StateConfigured)

	command := "launch"
	if s.cfg.Mode == ModeAttach {
		command = "attach"
		err = s.client.Attach(ctx, s.cfg.LaunchArgs)
	} else {
		err = s.client.Launch(ctx, s.cfg.LaunchArgs)
	}
	if err != nil {
		return s.fail(fmt.Errorf("%s: %w", command, err))
	}
	s.setState(StateLaunching)

	if caps.SupportsConfigurationDoneRequest {
		if err := s.client.ConfigurationDone(ctx); err != nil {
			return s.fail(fmt.Errorf("configurationDone: %w", err))
		}
	}

	s.setState(StateRunning)
	return nil
}

// Terminate ends the session. An explicit terminate request is preferred
// when the adapter advertises it; otherwise disconnect is sent, asking for
// debuggee termination only if that capability is advertised. Teardown
// errors are logged and swallowed; the session always ends up stopped.
func (s *Session) Terminate(ctx context.Context) {
	s.mu.RLock()
	caps := s.caps
	done := s.state.terminal()
	s.mu.RUnlock()
	if done {
		return
	}

	s.setState(StateStopping)

	var err error
	if caps != nil && caps.SupportsTerminateRequest {
		err = s.client.Terminate(ctx, dap.TerminateArguments{})
	} else {
		args := dap.DisconnectArguments{}
		if caps != nil {
			args.TerminateDebuggee = caps.SupportTerminateDebuggee
		}
		err = s.client.Disconnect(ctx, args)
	}
	if err != nil {
		s.logger.Warn("teardown request failed", zap.Error(err))
	}

	s.markStopped()
}

// fail moves the session to the error state, recording the cause.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	old := s.state
	s.state = StateError
	s.lastErr = err
	s.endedAt = time.Now()
	s.mu.Unlock()

	s.logger.Error("session failed", zap.Error(err))
	s.events.Publish(StateChanged{SessionID: s.id, Old: old, New: StateError})
	return err
}

// setState transitions the lifecycle state and publishes the change.
// Transitions out of a terminal state are ignored.
func (s *Session) setState(next State) {
	s.mu.Lock()
	old := s.state
	if old == next || old.terminal() {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	s.events.Publish(StateChanged{SessionID: s.id, Old: old, New: next})
}

// markStopped moves the session to the terminal stopped state. Idempotent.
func (s *Session) markStopped() {
	s.mu.Lock()
	old := s.state
	if old == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	if s.endedAt.IsZero() {
		s.endedAt = time.Now()
	}
	s.mu.Unlock()

	s.events.Publish(StateChanged{SessionID: s.id, Old: old, New: StateStopped})
}

// ensureThread returns the tracked thread with the given ID, creating a
// placeholder entry if the adapter never announced it.
func (s *Session) ensureThread(id int) *Thread {
	t, ok := s.threads[id]
	if !ok {
		t = &Thread{ID: id, Name: fmt.Sprintf("thread-%d", id), Run: RunRunning}
		s.threads[id] = t
	}
	return t
}

// onStopped merges a stop into thread and session state, then kicks off an
// asynchronous stack refresh for the reporting thread.
func (s *Session) onStopped(body dap.StoppedEventBody) {
	threadID := body.ThreadID
	if threadID == 0 {
		threadID = s.fallbackThread()
	}

	s.mu.Lock()
	t := s.ensureThread(threadID)
	t.markPaused(body.Reason, body.Description)
	if body.AllThreadsStopped {
		for _, other := range s.threads {
			if other.ID != threadID {
				other.markPaused(body.Reason, "")
			}
		}
	}
	s.activeThread = threadID
	s.mu.Unlock()

	s.setState(StatePaused)
	s.events.Publish(Stopped{
		SessionID:         s.id,
		ThreadID:          threadID,
		Reason:            body.Reason,
		Description:       body.Description,
		AllThreadsStopped: body.AllThreadsStopped,
		HitBreakpointIDs:  body.HitBreakpointIDs,
	})

	// The stop already succeeded; a refresh failure is diagnostics only.
	go s.refreshStack(context.Background(), threadID)
}

// refreshStack reloads the call stack of a paused thread.
func (s *Session) refreshStack(ctx context.Context, threadID int) {
	body, err := s.client.StackTrace(ctx, dap.StackTraceArguments{
		ThreadID: threadID,
		Levels:   s.cfg.StackDepth,
	})
	if err != nil {
		s.logger.Warn("stack refresh failed",
			zap.Int("thread", threadID), zap.Error(err))
		return
	}

	s.mu.Lock()
	t, ok := s.threads[threadID]
	// A resume may have raced the refresh; stale state wins.
	if !ok || t.Run != RunPaused {
		s.mu.Unlock()
		return
	}
	t.Frames = body.StackFrames
	t.FrameIndex = 0
	t.Stale = false
	s.mu.Unlock()

	s.events.Publish(StackRefreshed{SessionID: s.id, ThreadID: threadID})
}

// onContinued confirms a resume reported by the adapter.
func (s *Session) onContinued(body dap.ContinuedEventBody) {
	s.mu.Lock()
	t := s.ensureThread(body.ThreadID)
	t.markRunning(true)
	if body.AllThreadsContinued {
		for _, other := range s.threads {
			other.markRunning(true)
		}
	}
	s.mu.Unlock()

	s.setState(StateRunning)
	s.events.Publish(Continued{
		SessionID:           s.id,
		ThreadID:            body.ThreadID,
		AllThreadsContinued: body.AllThreadsContinued,
	})
}

// onThread tracks thread starts and exits.
func (s *Session) onThread(body dap.ThreadEventBody) {
	s.mu.Lock()
	switch body.Reason {
	case "started":
		s.ensureThread(body.ThreadID)
	case "exited":
		delete(s.threads, body.ThreadID)
		if s.activeThread == body.ThreadID {
			s.activeThread = 0
		}
	}
	s.mu.Unlock()

	s.events.Publish(ThreadChanged{
		SessionID: s.id,
		Reason:    body.Reason,
		ThreadID:  body.ThreadID,
	})
}

// onOutput appends to the output ring and notifies subscribers.
func (s *Session) onOutput(body dap.OutputEventBody) {
	s.mu.Lock()
	s.output = append(s.output, OutputEntry{
		Category: body.Category,
		Text:     body.Output,
		Time:     time.Now(),
	})
	if len(s.output) > maxOutputEntries {
		s.output = s.output[len(s.output)-maxOutputEntries:]
	}
	s.mu.Unlock()

	s.events.Publish(Output{SessionID: s.id, Category: body.Category, Text: body.Output})
}

// onBreakpoint mirrors adapter-side breakpoint changes to subscribers.
func (s *Session) onBreakpoint(body dap.BreakpointEventBody) {
	s.events.Publish(BreakpointChanged{
		SessionID:  s.id,
		Reason:     body.Reason,
		Breakpoint: body.Breakpoint,
	})
}

// onTerminated handles adapter-originated termination. Idempotent: a
// repeat delivery on a stopped session changes nothing.
func (s *Session) onTerminated(dap.TerminatedEventBody) {
	s.mu.RLock()
	already := s.state == StateStopped
	s.mu.RUnlock()

	s.markStopped()
	if !already {
		s.events.Publish(Terminated{SessionID: s.id})
	}
}

// onExited records the debuggee exit code. The first reported code wins.
func (s *Session) onExited(body dap.ExitedEventBody) {
	s.mu.Lock()
	first := !s.exitCodeSet
	if first {
		s.exitCode = body.ExitCode
		s.exitCodeSet = true
	}
	s.mu.Unlock()

	s.markStopped()
	if first {
		s.events.Publish(Exited{SessionID: s.id, ExitCode: body.ExitCode})
	}
}

// onAnyEvent passes events with no dedicated variant through to
// subscribers.
func (s *Session) onAnyEvent(evt dap.Event) {
	switch evt.Event {
	case "stopped", "continued", "thread", "output", "breakpoint",
		"terminated", "exited", "initialized":
		return
	}
	s.events.Publish(Generic{SessionID: s.id, Name: evt.Event, Body: evt.Body})
}

// fallbackThread picks a thread for commands with no explicit target.
func (s *Session) fallbackThread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeThread != 0 {
		return s.activeThread
	}
	return 1
}
