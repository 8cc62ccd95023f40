package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pulseide/debugkit/internal/dap"
)

// Syncer pushes breakpoint sets to an adapter. Session satisfies it; tests
// substitute fakes.
type Syncer interface {
	SetBreakpoints(ctx context.Context, source dap.Source, bps []dap.SourceBreakpoint) ([]dap.Breakpoint, error)
	SetFunctionBreakpoints(ctx context.Context, bps []dap.FunctionBreakpoint) ([]dap.Breakpoint, error)
	SetExceptionBreakpoints(ctx context.Context, filters []string, options []dap.ExceptionFilterOptions) error
}

// Breakpoint is a logical, locally-identified breakpoint. It exists
// independently of any session; Verified and Message mirror the adapter's
// view while a syncer is attached.
type Breakpoint struct {
	// ID is the locally generated identifier.
	ID int `json:"id"`

	// Path and Line locate a source breakpoint. Path is empty for
	// function breakpoints.
	Path   string `json:"path,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`

	// FunctionName is set for function breakpoints.
	FunctionName string `json:"functionName,omitempty"`

	// Condition, HitCondition, and LogMessage are forwarded verbatim.
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
	LogMessage   string `json:"logMessage,omitempty"`

	// Enabled is local-only; disabled breakpoints are excluded from the
	// set sent to the adapter.
	Enabled bool `json:"enabled"`

	// Verified and Message mirror the adapter's response.
	Verified bool   `json:"verified"`
	Message  string `json:"message,omitempty"`

	// ActualLine is where the adapter actually placed the breakpoint.
	ActualLine int `json:"actualLine,omitempty"`
}

// Registry tracks logical breakpoints. Mutations to a file's breakpoints
// re-send the complete enabled set for that file; the protocol has no
// incremental add or remove.
type Registry struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]*Breakpoint
	byPath map[string][]*Breakpoint
	funcs  []*Breakpoint

	exceptionFilters []string
	filterOptions    []dap.ExceptionFilterOptions

	syncer Syncer
}

// NewRegistry creates an empty breakpoint registry.
func NewRegistry() *Registry {
	return &Registry{
		nextID: 1,
		byID:   make(map[int]*Breakpoint),
		byPath: make(map[string][]*Breakpoint),
	}
}

// Attach binds a syncer. The full registry contents are pushed by Sync;
// subsequent mutations push incrementally per file.
func (r *Registry) Attach(s Syncer) {
	r.mu.Lock()
	r.syncer = s
	r.mu.Unlock()
}

// Detach unbinds the syncer. Mutations become local-only.
func (r *Registry) Detach() {
	r.mu.Lock()
	r.syncer = nil
	r.mu.Unlock()
}

func (r *Registry) allocateID() int {
	id := r.nextID
	r.nextID++
	return id
}

// Add registers an enabled source breakpoint and syncs its file.
func (r *Registry) Add(ctx context.Context, path string, line int) (Breakpoint, error) {
	return r.AddWithOptions(ctx, path, line, "", "", "")
}

// AddWithOptions registers a source breakpoint with condition, hit
// condition, and log message, then syncs its file. The hit condition is
// validated before the breakpoint is accepted.
func (r *Registry) AddWithOptions(ctx context.Context, path string, line int, condition, hitCondition, logMessage string) (Breakpoint, error) {
	if hitCondition != "" {
		if _, err := ParseHitCondition(hitCondition); err != nil {
			return Breakpoint{}, err
		}
	}

	r.mu.Lock()
	bp := &Breakpoint{
		ID:           r.allocateID(),
		Path:         path,
		Line:         line,
		Condition:    condition,
		HitCondition: hitCondition,
		LogMessage:   logMessage,
		Enabled:      true,
	}
	r.byID[bp.ID] = bp
	r.byPath[path] = append(r.byPath[path], bp)
	r.mu.Unlock()

	if err := r.syncPath(ctx, path); err != nil {
		return *bp, err
	}
	return r.get(bp.ID), nil
}

// AddFunction registers an enabled function breakpoint and syncs the
// function set.
func (r *Registry) AddFunction(ctx context.Context, name, condition string) (Breakpoint, error) {
	r.mu.Lock()
	bp := &Breakpoint{
		ID:           r.allocateID(),
		FunctionName: name,
		Condition:    condition,
		Enabled:      true,
	}
	r.byID[bp.ID] = bp
	r.funcs = append(r.funcs, bp)
	r.mu.Unlock()

	if err := r.syncFunctions(ctx); err != nil {
		return *bp, err
	}
	return r.get(bp.ID), nil
}

// SetExceptionFilters replaces the exception filter set and pushes it.
func (r *Registry) SetExceptionFilters(ctx context.Context, filters []string, options []dap.ExceptionFilterOptions) error {
	r.mu.Lock()
	r.exceptionFilters = append([]string{}, filters...)
	r.filterOptions = append([]dap.ExceptionFilterOptions{}, options...)
	syncer := r.syncer
	r.mu.Unlock()

	if syncer == nil {
		return nil
	}
	return syncer.SetExceptionBreakpoints(ctx, filters, options)
}

// Remove deletes a breakpoint and re-syncs whatever set it belonged to.
func (r *Registry) Remove(ctx context.Context, id int) error {
	r.mu.Lock()
	bp, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("remove breakpoint %d: %w", id, ErrBreakpointNotFound)
	}
	delete(r.byID, id)

	isFunc := bp.FunctionName != ""
	path := bp.Path
	if isFunc {
		r.funcs = removeByID(r.funcs, id)
	} else {
		r.byPath[path] = removeByID(r.byPath[path], id)
		if len(r.byPath[path]) == 0 {
			delete(r.byPath, path)
		}
	}
	r.mu.Unlock()

	if isFunc {
		return r.syncFunctions(ctx)
	}
	return r.syncPath(ctx, path)
}

// SetEnabled flips a breakpoint's enabled flag and re-syncs its set. The
// flag itself never reaches the adapter; it only filters what is sent.
func (r *Registry) SetEnabled(ctx context.Context, id int, enabled bool) error {
	r.mu.Lock()
	bp, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("enable breakpoint %d: %w", id, ErrBreakpointNotFound)
	}
	if bp.Enabled == enabled {
		r.mu.Unlock()
		return nil
	}
	bp.Enabled = enabled
	isFunc := bp.FunctionName != ""
	path := bp.Path
	r.mu.Unlock()

	if isFunc {
		return r.syncFunctions(ctx)
	}
	return r.syncPath(ctx, path)
}

// Toggle adds a breakpoint at the location, or removes the existing one.
// Returns the affected breakpoint and whether it was added.
func (r *Registry) Toggle(ctx context.Context, path string, line int) (Breakpoint, bool, error) {
	r.mu.Lock()
	for _, bp := range r.byPath[path] {
		if bp.Line == line {
			id := bp.ID
			removed := *bp
			delete(r.byID, id)
			r.byPath[path] = removeByID(r.byPath[path], id)
			if len(r.byPath[path]) == 0 {
				delete(r.byPath, path)
			}
			r.mu.Unlock()
			return removed, false, r.syncPath(ctx, path)
		}
	}
	r.mu.Unlock()

	bp, err := r.Add(ctx, path, line)
	return bp, true, err
}

// Get returns a breakpoint by ID.
func (r *Registry) Get(id int) (Breakpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.byID[id]
	if !ok {
		return Breakpoint{}, false
	}
	return *bp, true
}

func (r *Registry) get(id int) Breakpoint {
	bp, _ := r.Get(id)
	return bp
}

// ForPath returns all breakpoints for a file, enabled or not.
func (r *Registry) ForPath(path string) []Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Breakpoint, 0, len(r.byPath[path]))
	for _, bp := range r.byPath[path] {
		out = append(out, *bp)
	}
	return out
}

// All returns every breakpoint, ordered by ID.
func (r *Registry) All() []Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Breakpoint, 0, len(r.byID))
	for _, bp := range r.byID {
		out = append(out, *bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Paths returns every file that has breakpoints.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.byPath))
	for path := range r.byPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Sync pushes the full registry contents: every file's enabled set, the
// function set, and the exception filters. Used after attach and after a
// session restart.
func (r *Registry) Sync(ctx context.Context) error {
	for _, path := range r.Paths() {
		if err := r.syncPath(ctx, path); err != nil {
			return err
		}
	}
	if r.hasFunctions() {
		if err := r.syncFunctions(ctx); err != nil {
			return err
		}
	}

	r.mu.Lock()
	filters := append([]string{}, r.exceptionFilters...)
	options := append([]dap.ExceptionFilterOptions{}, r.filterOptions...)
	syncer := r.syncer
	r.mu.Unlock()

	if syncer == nil || len(filters) == 0 {
		return nil
	}
	return syncer.SetExceptionBreakpoints(ctx, filters, options)
}

// syncPath sends the complete enabled set for one file and mirrors the
// verification results back onto the sent entries.
func (r *Registry) syncPath(ctx context.Context, path string) error {
	r.mu.Lock()
	syncer := r.syncer
	sent := make([]*Breakpoint, 0, len(r.byPath[path]))
	args := make([]dap.SourceBreakpoint, 0, len(r.byPath[path]))
	for _, bp := range r.byPath[path] {
		if !bp.Enabled {
			continue
		}
		sent = append(sent, bp)
		args = append(args, dap.SourceBreakpoint{
			Line:         bp.Line,
			Column:       bp.Column,
			Condition:    bp.Condition,
			HitCondition: bp.HitCondition,
			LogMessage:   bp.LogMessage,
		})
	}
	r.mu.Unlock()

	if syncer == nil {
		return nil
	}

	source := dap.Source{Name: filepath.Base(path), Path: path}
	result, err := syncer.SetBreakpoints(ctx, source, args)
	if err != nil {
		return fmt.Errorf("sync breakpoints for %s: %w", path, err)
	}

	r.mu.Lock()
	for i, bp := range sent {
		if i >= len(result) {
			break
		}
		bp.Verified = result[i].Verified
		bp.Message = result[i].Message
		if result[i].Line > 0 {
			bp.ActualLine = result[i].Line
		}
	}
	r.mu.Unlock()
	return nil
}

// syncFunctions sends the complete enabled function breakpoint set.
func (r *Registry) syncFunctions(ctx context.Context) error {
	r.mu.Lock()
	syncer := r.syncer
	sent := make([]*Breakpoint, 0, len(r.funcs))
	args := make([]dap.FunctionBreakpoint, 0, len(r.funcs))
	for _, bp := range r.funcs {
		if !bp.Enabled {
			continue
		}
		sent = append(sent, bp)
		args = append(args, dap.FunctionBreakpoint{
			Name:         bp.FunctionName,
			Condition:    bp.Condition,
			HitCondition: bp.HitCondition,
		})
	}
	r.mu.Unlock()

	if syncer == nil {
		return nil
	}

	result, err := syncer.SetFunctionBreakpoints(ctx, args)
	if err != nil {
		return fmt.Errorf("sync function breakpoints: %w", err)
	}

	r.mu.Lock()
	for i, bp := range sent {
		if i >= len(result) {
			break
		}
		bp.Verified = result[i].Verified
		bp.Message = result[i].Message
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) hasFunctions() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.funcs) > 0
}

func removeByID(slice []*Breakpoint, id int) []*Breakpoint {
	for i, bp := range slice {
		if bp.ID == id {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}

// persistedRegistry is the on-disk format.
type persistedRegistry struct {
	Version     int          `json:"version"`
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// Save writes the registry to path as JSON.
func (r *Registry) Save(path string) error {
	data := persistedRegistry{Version: 1, Breakpoints: r.All()}
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal breakpoints: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write breakpoints: %w", err)
	}
	return nil
}

// Load replaces the registry contents from a file written by Save. A
// missing file leaves the registry empty without error. Verification
// state is not restored; the next Sync re-establishes it.
func (r *Registry) Load(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read breakpoints: %w", err)
	}

	var data persistedRegistry
	if err := json.Unmarshal(content, &data); err != nil {
		return fmt.Errorf("unmarshal breakpoints: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID = make(map[int]*Breakpoint)
	r.byPath = make(map[string][]*Breakpoint)
	r.funcs = nil

	maxID := 0
	for i := range data.Breakpoints {
		bp := data.Breakpoints[i]
		bp.Verified = false
		bp.Message = ""
		stored := &bp
		r.byID[bp.ID] = stored
		if bp.FunctionName != "" {
			r.funcs = append(r.funcs, stored)
		} else {
			r.byPath[bp.Path] = append(r.byPath[bp.Path], stored)
		}
		if bp.ID > maxID {
			maxID = bp.ID
		}
	}
	r.nextID = maxID + 1
	return nil
}
