package debug

import (
	"context"
	"sort"
	"sync"

	"github.com/pulseide/debugkit/internal/dap"
)

// Evaluator evaluates an expression against the current pause. *Session
// satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error)
}

// Watch is one tracked expression with its most recent evaluation result.
type Watch struct {
	ID         int
	Expression string
	Value      string
	Type       string

	// EvalError holds the failure message when the last refresh could not
	// evaluate the expression. Empty after a successful refresh.
	EvalError string
}

// Watches tracks expressions to re-evaluate after each stop. Results stick
// until the next refresh so a front-end always has the last known value.
type Watches struct {
	mu      sync.RWMutex
	nextID  int
	entries map[int]*Watch
}

// NewWatches creates an empty watch set.
func NewWatches() *Watches {
	return &Watches{entries: make(map[int]*Watch)}
}

// Add registers an expression and returns its entry. The value stays empty
// until the next refresh.
func (w *Watches) Add(expression string) Watch {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	entry := &Watch{ID: w.nextID, Expression: expression}
	w.entries[entry.ID] = entry
	return *entry
}

// Remove drops a watch.
func (w *Watches) Remove(id int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entries[id]; !ok {
		return ErrWatchNotFound
	}
	delete(w.entries, id)
	return nil
}

// Update replaces a watch's expression, clearing its stale result.
func (w *Watches) Update(id int, expression string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	entry, ok := w.entries[id]
	if !ok {
		return ErrWatchNotFound
	}
	entry.Expression = expression
	entry.Value = ""
	entry.Type = ""
	entry.EvalError = ""
	return nil
}

// Get returns a snapshot of one watch.
func (w *Watches) Get(id int) (Watch, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	entry, ok := w.entries[id]
	if !ok {
		return Watch{}, false
	}
	return *entry, true
}

// All returns a snapshot of every watch, ordered by ID.
func (w *Watches) All() []Watch {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Watch, 0, len(w.entries))
	for _, entry := range w.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Refresh re-evaluates every watch against a frame. Per-watch failures are
// recorded on the entry, never returned. A watch removed or rewritten while
// its evaluation is in flight keeps the newer state.
func (w *Watches) Refresh(ctx context.Context, eval Evaluator, frameID int) {
	w.mu.RLock()
	pending := make([]Watch, 0, len(w.entries))
	for _, entry := range w.entries {
		pending = append(pending, *entry)
	}
	w.mu.RUnlock()
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })

	for _, snap := range pending {
		body, err := eval.Evaluate(ctx, snap.Expression, frameID, "watch")

		w.mu.Lock()
		entry, ok := w.entries[snap.ID]
		if !ok || entry.Expression != snap.Expression {
			w.mu.Unlock()
			continue
		}
		if err != nil {
			entry.Value = ""
			entry.Type = ""
			entry.EvalError = err.Error()
		} else {
			entry.Value = body.Result
			entry.Type = body.Type
			entry.EvalError = ""
		}
		w.mu.Unlock()
	}
}
