package debug

import "github.com/pulseide/debugkit/internal/dap"

// RunState is a thread's execution state.
type RunState int

const (
	// RunRunning means the thread is executing.
	RunRunning RunState = iota
	// RunPaused means the thread is halted.
	RunPaused
	// RunStepping means a step command is in flight for the thread.
	RunStepping
)

// String returns a string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunPaused:
		return "paused"
	case RunStepping:
		return "stepping"
	default:
		return "unknown"
	}
}

// Thread is one adapter-reported execution thread. Run state is two-phase:
// execution-control commands record an unconfirmed intent, and the matching
// continued/stopped event confirms or corrects it.
type Thread struct {
	// ID is the adapter-assigned numeric thread ID.
	ID int

	// Name is the adapter-reported display name.
	Name string

	// Run is the current run state; Confirmed reports whether it came from
	// an adapter event rather than a locally issued command.
	Run       RunState
	Confirmed bool

	// StopReason and StopDescription describe the most recent stop.
	// Cleared when the thread resumes.
	StopReason      string
	StopDescription string

	// Frames is the call stack, outermost last call first. Valid only
	// while paused; Stale marks frames left over from an earlier pause.
	Frames     []dap.StackFrame
	FrameIndex int
	Stale      bool
}

// clone returns a deep copy safe to hand to callers.
func (t *Thread) clone() Thread {
	c := *t
	if t.Frames != nil {
		c.Frames = make([]dap.StackFrame, len(t.Frames))
		copy(c.Frames, t.Frames)
	}
	return c
}

// markRunning records a resume, keeping the previous frames but flagging
// them stale.
func (t *Thread) markRunning(confirmed bool) {
	t.Run = RunRunning
	t.Confirmed = confirmed
	t.StopReason = ""
	t.StopDescription = ""
	t.Stale = true
}

// markStepping records an in-flight step command.
func (t *Thread) markStepping() {
	t.Run = RunStepping
	t.Confirmed = false
	t.StopReason = ""
	t.StopDescription = ""
	t.Stale = true
}

// markPaused records an adapter-confirmed stop. Frames from the previous
// pause are cleared; the refresh that follows repopulates them.
func (t *Thread) markPaused(reason, description string) {
	t.Run = RunPaused
	t.Confirmed = true
	t.StopReason = reason
	t.StopDescription = description
	t.Frames = nil
	t.FrameIndex = 0
	t.Stale = false
}

// CurrentFrame returns the selected stack frame, if any.
func (t Thread) CurrentFrame() (dap.StackFrame, bool) {
	if t.Stale || t.FrameIndex < 0 || t.FrameIndex >= len(t.Frames) {
		return dap.StackFrame{}, false
	}
	return t.Frames[t.FrameIndex], true
}
