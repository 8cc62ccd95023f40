package debug

import (
	"encoding/json"

	"github.com/pulseide/debugkit/internal/dap"
)

// Event is a session notification delivered to subscribers. Each concrete
// variant carries the session it originated from; unrecognized protocol
// events arrive as Generic.
type Event interface {
	Kind() string
}

// StateChanged reports a session lifecycle transition.
type StateChanged struct {
	SessionID string
	Old       State
	New       State
}

// Kind returns "stateChanged".
func (StateChanged) Kind() string { return "stateChanged" }

// Stopped reports that a thread halted.
type Stopped struct {
	SessionID         string
	ThreadID          int
	Reason            string
	Description       string
	AllThreadsStopped bool
	HitBreakpointIDs  []int
}

// Kind returns "stopped".
func (Stopped) Kind() string { return "stopped" }

// Continued reports that a thread resumed.
type Continued struct {
	SessionID           string
	ThreadID            int
	AllThreadsContinued bool
}

// Kind returns "continued".
func (Continued) Kind() string { return "continued" }

// ThreadChanged reports a thread starting or exiting.
type ThreadChanged struct {
	SessionID string
	Reason    string // "started", "exited"
	ThreadID  int
}

// Kind returns "thread".
func (ThreadChanged) Kind() string { return "thread" }

// Output carries debuggee or adapter output.
type Output struct {
	SessionID string
	Category  string
	Text      string
}

// Kind returns "output".
func (Output) Kind() string { return "output" }

// BreakpointChanged reports an adapter-side breakpoint status change.
type BreakpointChanged struct {
	SessionID  string
	Reason     string // "changed", "new", "removed"
	Breakpoint dap.Breakpoint
}

// Kind returns "breakpoint".
func (BreakpointChanged) Kind() string { return "breakpoint" }

// StackRefreshed reports that a paused thread's call stack was reloaded.
type StackRefreshed struct {
	SessionID string
	ThreadID  int
}

// Kind returns "stackRefreshed".
func (StackRefreshed) Kind() string { return "stackRefreshed" }

// Terminated reports session end.
type Terminated struct {
	SessionID string
}

// Kind returns "terminated".
func (Terminated) Kind() string { return "terminated" }

// Exited reports the debuggee's exit code.
type Exited struct {
	SessionID string
	ExitCode  int
}

// Kind returns "exited".
func (Exited) Kind() string { return "exited" }

// Generic is the passthrough for protocol events with no dedicated variant.
type Generic struct {
	SessionID string
	Name      string
	Body      json.RawMessage
}

// Kind returns the protocol event name.
func (g Generic) Kind() string { return g.Name }
