package debug

import (
	"context"
	"fmt"

	"github.com/pulseide/debugkit/internal/dap"
)

// RefreshThreads reloads the thread list from the adapter, preserving the
// run state of threads already known.
func (s *Session) RefreshThreads(ctx context.Context) ([]Thread, error) {
	threads, err := s.client.Threads(ctx)
	if err != nil {
		return nil, fmt.Errorf("threads: %w", err)
	}

	s.mu.Lock()
	seen := make(map[int]bool, len(threads))
	for _, t := range threads {
		seen[t.ID] = true
		tracked := s.ensureThread(t.ID)
		tracked.Name = t.Name
	}
	for id := range s.threads {
		if !seen[id] {
			delete(s.threads, id)
		}
	}
	s.mu.Unlock()

	return s.Threads(), nil
}

// StackTrace fetches frames for a paused thread. Unlike the automatic
// refresh after a stop, callers control the frame window here.
func (s *Session) StackTrace(ctx context.Context, threadID, startFrame, levels int) ([]dap.StackFrame, error) {
	body, err := s.client.StackTrace(ctx, dap.StackTraceArguments{
		ThreadID:   s.resolveThread(threadID),
		StartFrame: startFrame,
		Levels:     levels,
	})
	if err != nil {
		return nil, fmt.Errorf("stackTrace: %w", err)
	}
	return body.StackFrames, nil
}

// Scopes fetches the variable scopes of a stack frame. The returned
// reference handles are valid only for the current pause.
func (s *Session) Scopes(ctx context.Context, frameID int) ([]dap.Scope, error) {
	scopes, err := s.client.Scopes(ctx, dap.ScopesArguments{FrameID: frameID})
	if err != nil {
		return nil, fmt.Errorf("scopes: %w", err)
	}
	return scopes, nil
}

// Variables fetches the children of a scope or variable handle.
func (s *Session) Variables(ctx context.Context, reference int) ([]dap.Variable, error) {
	vars, err := s.client.Variables(ctx, dap.VariablesArguments{VariablesReference: reference})
	if err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}
	return vars, nil
}

// SetVariable assigns a new value to a variable in a container. Requires
// supportsSetVariable.
func (s *Session) SetVariable(ctx context.Context, reference int, name, value string) (*dap.SetVariableResponseBody, error) {
	caps := s.Capabilities()
	if caps == nil || !caps.SupportsSetVariable {
		return nil, fmt.Errorf("setVariable: %w", ErrNotSupported)
	}
	body, err := s.client.SetVariable(ctx, dap.SetVariableArguments{
		VariablesReference: reference,
		Name:               name,
		Value:              value,
	})
	if err != nil {
		return nil, fmt.Errorf("setVariable: %w", err)
	}
	return body, nil
}

// Evaluate evaluates an expression, optionally in a frame context. The
// context hint is "repl", "watch", or "hover".
func (s *Session) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
	body, err := s.client.Evaluate(ctx, dap.EvaluateArguments{
		Expression: expression,
		FrameID:    frameID,
		Context:    evalContext,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return body, nil
}

// SetExpression assigns a value to an assignable expression. Requires
// supportsSetExpression.
func (s *Session) SetExpression(ctx context.Context, expression, value string, frameID int) (*dap.SetExpressionResponseBody, error) {
	caps := s.Capabilities()
	if caps == nil || !caps.SupportsSetExpression {
		return nil, fmt.Errorf("setExpression: %w", ErrNotSupported)
	}
	body, err := s.client.SetExpression(ctx, dap.SetExpressionArguments{
		Expression: expression,
		Value:      value,
		FrameID:    frameID,
	})
	if err != nil {
		return nil, fmt.Errorf("setExpression: %w", err)
	}
	return body, nil
}

// ExceptionInfo fetches details about the exception that stopped a thread.
// Requires supportsExceptionInfoRequest.
func (s *Session) ExceptionInfo(ctx context.Context, threadID int) (*dap.ExceptionInfoResponseBody, error) {
	caps := s.Capabilities()
	if caps == nil || !caps.SupportsExceptionInfoRequest {
		return nil, fmt.Errorf("exceptionInfo: %w", ErrNotSupported)
	}
	body, err := s.client.ExceptionInfo(ctx, dap.ExceptionInfoArguments{
		ThreadID: s.resolveThread(threadID),
	})
	if err != nil {
		return nil, fmt.Errorf("exceptionInfo: %w", err)
	}
	return body, nil
}

// SetBreakpoints sends the complete breakpoint set for one source file.
func (s *Session) SetBreakpoints(ctx context.Context, source dap.Source, bps []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	result, err := s.client.SetBreakpoints(ctx, dap.SetBreakpointsArguments{
		Source:      source,
		Breakpoints: bps,
	})
	if err != nil {
		return nil, fmt.Errorf("setBreakpoints %s: %w", source.Path, err)
	}
	return result, nil
}

// SetFunctionBreakpoints sends the complete function breakpoint set.
// Requires supportsFunctionBreakpoints.
func (s *Session) SetFunctionBreakpoints(ctx context.Context, bps []dap.FunctionBreakpoint) ([]dap.Breakpoint, error) {
	caps := s.Capabilities()
	if caps == nil || !caps.SupportsFunctionBreakpoints {
		return nil, fmt.Errorf("setFunctionBreakpoints: %w", ErrNotSupported)
	}
	result, err := s.client.SetFunctionBreakpoints(ctx, dap.SetFunctionBreakpointsArguments{
		Breakpoints: bps,
	})
	if err != nil {
		return nil, fmt.Errorf("setFunctionBreakpoints: %w", err)
	}
	return result, nil
}

// SetExceptionBreakpoints replaces the active exception filter set.
func (s *Session) SetExceptionBreakpoints(ctx context.Context, filters []string, options []dap.ExceptionFilterOptions) error {
	if err := s.client.SetExceptionBreakpoints(ctx, dap.SetExceptionBreakpointsArguments{
		Filters:       filters,
		FilterOptions: options,
	}); err != nil {
		return fmt.Errorf("setExceptionBreakpoints: %w", err)
	}
	return nil
}
