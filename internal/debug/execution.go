package debug

import (
	"context"
	"fmt"

	"github.com/pulseide/debugkit/internal/dap"
)

// resolveThread picks the target for an execution-control command: the
// explicit ID, the active thread, or 1 when nothing is known.
func (s *Session) resolveThread(threadID int) int {
	if threadID > 0 {
		return threadID
	}
	return s.fallbackThread()
}

// snapshotThread captures a thread's state for rollback. The third result
// reports whether the thread was tracked before the command touched it.
func (s *Session) snapshotThread(id int) (Thread, State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.threads[id]; ok {
		return t.clone(), s.state, true
	}
	return Thread{ID: id}, s.state, false
}

// rollbackThread restores a thread and the session state after a rejected
// command. A thread the command itself created is removed, not restored.
func (s *Session) rollbackThread(snap Thread, state State, existed bool) {
	s.mu.Lock()
	if !existed {
		delete(s.threads, snap.ID)
	} else if t, ok := s.threads[snap.ID]; ok {
		*t = snap
	}
	s.mu.Unlock()
	s.setState(state)
}

// Continue resumes a thread. The thread is marked running immediately;
// the continued (or next stopped) event confirms or corrects that intent.
func (s *Session) Continue(ctx context.Context, threadID int) error {
	tid := s.resolveThread(threadID)
	snap, prevState, existed := s.snapshotThread(tid)

	s.mu.Lock()
	s.ensureThread(tid).markRunning(false)
	s.mu.Unlock()
	s.setState(StateRunning)

	body, err := s.client.Continue(ctx, dap.ContinueArguments{ThreadID: tid})
	if err != nil {
		s.rollbackThread(snap, prevState, existed)
		return fmt.Errorf("continue thread %d: %w", tid, err)
	}

	if body.AllThreadsContinued {
		s.mu.Lock()
		for _, t := range s.threads {
			t.markRunning(false)
		}
		s.mu.Unlock()
	}
	return nil
}

// Pause asks the adapter to halt a thread. State is not touched here; the
// stopped event carries the authoritative result.
func (s *Session) Pause(ctx context.Context, threadID int) error {
	tid := s.resolveThread(threadID)
	if err := s.client.Pause(ctx, dap.PauseArguments{ThreadID: tid}); err != nil {
		return fmt.Errorf("pause thread %d: %w", tid, err)
	}
	return nil
}

// StepOver steps the thread over the current line.
func (s *Session) StepOver(ctx context.Context, threadID int) error {
	return s.step(ctx, threadID, "next")
}

// StepInto steps the thread into the current call.
func (s *Session) StepInto(ctx context.Context, threadID int) error {
	return s.step(ctx, threadID, "stepIn")
}

// StepOut steps the thread out of the current frame.
func (s *Session) StepOut(ctx context.Context, threadID int) error {
	return s.step(ctx, threadID, "stepOut")
}

// StepBack steps the thread backwards. Requires supportsStepBack.
func (s *Session) StepBack(ctx context.Context, threadID int) error {
	caps := s.Capabilities()
	if caps == nil || !caps.SupportsStepBack {
		return fmt.Errorf("stepBack: %w", ErrNotSupported)
	}
	return s.step(ctx, threadID, "stepBack")
}

// step issues one step command with optimistic stepping state.
func (s *Session) step(ctx context.Context, threadID int, command string) error {
	tid := s.resolveThread(threadID)
	snap, prevState, existed := s.snapshotThread(tid)

	// Granularity is a hint; send it only when the adapter understands it.
	granularity := ""
	if caps := s.Capabilities(); caps != nil && caps.SupportsSteppingGranularity {
		granularity = "statement"
	}

	s.mu.Lock()
	s.ensureThread(tid).markStepping()
	s.mu.Unlock()
	s.setState(StateStepping)

	var err error
	switch command {
	case "next":
		err = s.client.Next(ctx, dap.NextArguments{ThreadID: tid, Granularity: granularity})
	case "stepIn":
		err = s.client.StepIn(ctx, dap.StepInArguments{ThreadID: tid, Granularity: granularity})
	case "stepOut":
		err = s.client.StepOut(ctx, dap.StepOutArguments{ThreadID: tid, Granularity: granularity})
	case "stepBack":
		err = s.client.StepBack(ctx, dap.StepBackArguments{ThreadID: tid, Granularity: granularity})
	}
	if err != nil {
		s.rollbackThread(snap, prevState, existed)
		return fmt.Errorf("%s thread %d: %w", command, tid, err)
	}
	return nil
}

// Restart restarts the session in place. Requires supportsRestartRequest.
func (s *Session) Restart(ctx context.Context) error {
	caps := s.Capabilities()
	if caps == nil || !caps.SupportsRestartRequest {
		return fmt.Errorf("restart: %w", ErrNotSupported)
	}

	if err := s.client.Restart(ctx, dap.RestartArguments{}); err != nil {
		return fmt.Errorf("restart: %w", err)
	}

	s.mu.Lock()
	s.threads = make(map[int]*Thread)
	s.activeThread = 0
	s.mu.Unlock()
	s.setState(StateRunning)
	return nil
}
