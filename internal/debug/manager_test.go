package debug

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulseide/debugkit/internal/dap"
)

func newManagedSession(t *testing.T, m *Manager) (*dap.Loopback, *Session) {
	t.Helper()
	loopback := dap.NewLoopback()
	client := dap.NewClient(loopback)
	if err := loopback.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return loopback, m.NewSession(client, DefaultConfig())
}

func TestManagerFirstSessionBecomesActive(t *testing.T) {
	m := NewManager()
	_, first := newManagedSession(t, m)
	_, second := newManagedSession(t, m)

	active, ok := m.Active()
	if !ok || active.ID() != first.ID() {
		t.Fatalf("active = %v, want first session", ok)
	}

	if err := m.SetActive(second.ID()); err != nil {
		t.Fatalf("set active: %v", err)
	}
	active, _ = m.Active()
	if active.ID() != second.ID() {
		t.Error("active session should have switched")
	}
}

func TestManagerActiveSessionProtectedFromRemoval(t *testing.T) {
	m := NewManager()
	_, first := newManagedSession(t, m)
	_, second := newManagedSession(t, m)

	if err := m.Remove(first.ID()); !errors.Is(err, ErrSessionActive) {
		t.Errorf("remove active = %v, want ErrSessionActive", err)
	}
	if err := m.Remove(second.ID()); err != nil {
		t.Errorf("remove inactive = %v, want nil", err)
	}
	if err := m.Remove("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("remove unknown = %v, want ErrSessionNotFound", err)
	}
}

func TestManagerSharedEventStream(t *testing.T) {
	m := NewManager()

	events := make(chan Event, 8)
	unsubscribe := m.Subscribe(func(evt Event) {
		if _, ok := evt.(Output); ok {
			events <- evt
		}
	})
	defer unsubscribe()

	loopback, session := newManagedSession(t, m)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := loopback.InjectEvent("output", dap.OutputEventBody{
		Category: "stdout",
		Output:   "hello\n",
	}); err != nil {
		t.Fatalf("inject failed: %v", err)
	}

	select {
	case evt := <-events:
		out := evt.(Output)
		if out.SessionID != session.ID() || out.Text != "hello\n" {
			t.Errorf("event = %+v, want output from the managed session", out)
		}
	case <-time.After(time.Second):
		t.Fatal("output never reached the shared stream")
	}
}

func TestManagerDisconnectAll(t *testing.T) {
	m := NewManager()
	loopback, session := newManagedSession(t, m)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	m.DisconnectAll(context.Background())

	if session.State() != StateStopped {
		t.Errorf("state = %v, want stopped", session.State())
	}
	if len(m.Sessions()) != 0 {
		t.Error("manager should forget all sessions")
	}
	if loopback.Connected() {
		t.Error("transport should be closed")
	}
}
