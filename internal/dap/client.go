package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultRequestTimeout is the window a pending request waits for its
// response before rejecting.
const DefaultRequestTimeout = 30 * time.Second

// Client correlates requests with responses over a Transport and dispatches
// unsolicited events to registered handlers. Requests may be issued
// concurrently; each receives a strictly increasing sequence number.
type Client struct {
	transport Transport
	logger    *zap.Logger
	timeout   time.Duration

	seq atomic.Int64

	pendingMu sync.Mutex
	pending   map[int]*pendingRequest

	handlerMu sync.RWMutex
	handlers  eventHandlers

	closed atomic.Bool
}

// pendingRequest is one in-flight correlator entry.
type pendingRequest struct {
	done  chan struct{}
	once  sync.Once
	timer *time.Timer

	response *Response
	err      error
}

func (p *pendingRequest) resolve(resp *Response) {
	p.once.Do(func() {
		p.response = resp
		close(p.done)
	})
}

func (p *pendingRequest) reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// eventHandlers stores event handler functions.
type eventHandlers struct {
	onInitialized func()
	onStopped     func(StoppedEventBody)
	onContinued   func(ContinuedEventBody)
	onExited      func(ExitedEventBody)
	onTerminated  func(TerminatedEventBody)
	onThread      func(ThreadEventBody)
	onOutput      func(OutputEventBody)
	onBreakpoint  func(BreakpointEventBody)
	onAny         func(Event)
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithLogger sets the diagnostics logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithRequestTimeout overrides the default pending-request timeout.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a client on the given transport. The transport's
// message and close subscriptions are claimed by the client.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		logger:    zap.NewNop(),
		timeout:   DefaultRequestTimeout,
		pending:   make(map[int]*pendingRequest),
	}
	for _, opt := range opts {
		opt(c)
	}

	transport.OnMessage(c.handleMessage)
	transport.OnClose(func(err error) {
		if err == nil {
			err = ErrClosed
		}
		c.failPending(err)
	})

	return c
}

// Transport returns the underlying transport.
func (c *Client) Transport() Transport {
	return c.transport
}

// Close closes the client and the underlying transport. All pending
// requests are rejected.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.failPending(ErrClosed)
	return c.transport.Disconnect()
}

// failPending rejects every pending request with err.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int]*pendingRequest)
	c.pendingMu.Unlock()

	for _, req := range pending {
		req.timer.Stop()
		req.reject(err)
	}
}

// handleMessage dispatches one received message.
func (c *Client) handleMessage(msg *Message) {
	var base ProtocolMessage
	if err := json.Unmarshal(msg.Content, &base); err != nil {
		c.logger.Debug("dropping malformed message", zap.Error(err))
		return
	}

	switch base.Type {
	case "response":
		c.handleResponse(msg.Content)
	case "event":
		c.handleEvent(msg.Content)
	}
}

// handleResponse resolves or rejects the matching pending request.
// Responses with no pending entry (duplicate, late, unknown) are dropped.
func (c *Client) handleResponse(content []byte) {
	var resp Response
	if err := json.Unmarshal(content, &resp); err != nil {
		c.logger.Debug("dropping malformed response", zap.Error(err))
		return
	}

	c.pendingMu.Lock()
	req, ok := c.pending[resp.RequestSeq]
	if ok {
		delete(c.pending, resp.RequestSeq)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug("dropping unmatched response",
			zap.Int("request_seq", resp.RequestSeq),
			zap.String("command", resp.Command))
		return
	}

	req.timer.Stop()
	if resp.Success {
		req.resolve(&resp)
		return
	}

	message := resp.Message
	if message == "" {
		message = "request failed"
	}
	req.reject(fmt.Errorf("%s: %s", resp.Command, message))
}

// handleEvent decodes an event body and calls the matching typed handler,
// then the any-event handler.
func (c *Client) handleEvent(content []byte) {
	var evt Event
	if err := json.Unmarshal(content, &evt); err != nil {
		c.logger.Debug("dropping malformed event", zap.Error(err))
		return
	}

	c.handlerMu.RLock()
	handlers := c.handlers
	c.handlerMu.RUnlock()

	switch evt.Event {
	case "initialized":
		if handlers.onInitialized != nil {
			handlers.onInitialized()
		}
	case "stopped":
		dispatchEvent(c.logger, evt, handlers.onStopped)
	case "continued":
		dispatchEvent(c.logger, evt, handlers.onContinued)
	case "exited":
		dispatchEvent(c.logger, evt, handlers.onExited)
	case "terminated":
		dispatchEvent(c.logger, evt, handlers.onTerminated)
	case "thread":
		dispatchEvent(c.logger, evt, handlers.onThread)
	case "output":
		dispatchEvent(c.logger, evt, handlers.onOutput)
	case "breakpoint":
		dispatchEvent(c.logger, evt, handlers.onBreakpoint)
	}

	// Unrecognized events still reach the any-event handler.
	if handlers.onAny != nil {
		handlers.onAny(evt)
	}
}

// dispatchEvent unmarshals an event body and invokes the handler.
func dispatchEvent[T any](logger *zap.Logger, evt Event, handler func(T)) {
	if handler == nil {
		return
	}
	var body T
	if len(evt.Body) > 0 {
		if err := json.Unmarshal(evt.Body, &body); err != nil {
			logger.Debug("dropping malformed event body",
				zap.String("event", evt.Event), zap.Error(err))
			return
		}
	}
	handler(body)
}

// sendRequest registers a pending entry, dispatches the request, and waits
// for resolution, rejection, timeout, or context cancellation.
func (c *Client) sendRequest(ctx context.Context, command string, args any) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	seq := int(c.seq.Add(1))

	var argsJSON json.RawMessage
	if args != nil {
		var err error
		argsJSON, err = json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
	}

	req := Request{
		ProtocolMessage: ProtocolMessage{Seq: seq, Type: "request"},
		Command:         command,
		Arguments:       argsJSON,
	}
	content, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	pending := &pendingRequest{done: make(chan struct{})}
	pending.timer = time.AfterFunc(c.timeout, func() {
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
		pending.reject(fmt.Errorf("%s: %w", command, ErrTimeout))
	})

	// Register before dispatch so a fast response cannot race the entry.
	c.pendingMu.Lock()
	c.pending[seq] = pending
	c.pendingMu.Unlock()

	if err := c.transport.Send(newMessage(content)); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
		pending.timer.Stop()
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
		pending.timer.Stop()
		return nil, ctx.Err()
	case <-pending.done:
		if pending.err != nil {
			return nil, pending.err
		}
		return pending.response, nil
	}
}

// call issues a request and unmarshals the response body into out, which
// may be nil for commands whose body is ignored.
func (c *Client) call(ctx context.Context, command string, args, out any) error {
	resp, err := c.sendRequest(ctx, command, args)
	if err != nil {
		return err
	}
	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("unmarshal %s response: %w", command, err)
		}
	}
	return nil
}

// Event handler setters.

// OnInitialized sets the handler for the initialized event.
func (c *Client) OnInitialized(handler func()) {
	c.handlerMu.Lock()
	c.handlers.onInitialized = handler
	c.handlerMu.Unlock()
}

// OnStopped sets the handler for the stopped event.
func (c *Client) OnStopped(handler func(StoppedEventBody)) {
	c.handlerMu.Lock()
	c.handlers.onStopped = handler
	c.handlerMu.Unlock()
}

// OnContinued sets the handler for the continued event.
func (c *Client) OnContinued(handler func(ContinuedEventBody)) {
	c.handlerMu.Lock()
	c.handlers.onContinued = handler
	c.handlerMu.Unlock()
}

// OnExited sets the handler for the exited event.
func (c *Client) OnExited(handler func(ExitedEventBody)) {
	c.handlerMu.Lock()
	c.handlers.onExited = handler
	c.handlerMu.Unlock()
}

// OnTerminated sets the handler for the terminated event.
func (c *Client) OnTerminated(handler func(TerminatedEventBody)) {
	c.handlerMu.Lock()
	c.handlers.onTerminated = handler
	c.handlerMu.Unlock()
}

// OnThread sets the handler for the thread event.
func (c *Client) OnThread(handler func(ThreadEventBody)) {
	c.handlerMu.Lock()
	c.handlers.onThread = handler
	c.handlerMu.Unlock()
}

// OnOutput sets the handler for the output event.
func (c *Client) OnOutput(handler func(OutputEventBody)) {
	c.handlerMu.Lock()
	c.handlers.onOutput = handler
	c.handlerMu.Unlock()
}

// OnBreakpoint sets the handler for the breakpoint event.
func (c *Client) OnBreakpoint(handler func(BreakpointEventBody)) {
	c.handlerMu.Lock()
	c.handlers.onBreakpoint = handler
	c.handlerMu.Unlock()
}

// OnEvent sets a handler invoked for every event, including ones the
// client does not recognize.
func (c *Client) OnEvent(handler func(Event)) {
	c.handlerMu.Lock()
	c.handlers.onAny = handler
	c.handlerMu.Unlock()
}

// Request methods. Response bodies are decoded per command.

// Initialize performs the capability handshake.
func (c *Client) Initialize(ctx context.Context, args InitializeRequestArguments) (*Capabilities, error) {
	var caps Capabilities
	if err := c.call(ctx, "initialize", args, &caps); err != nil {
		return nil, err
	}
	return &caps, nil
}

// ConfigurationDone signals the end of the configuration sequence.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	return c.call(ctx, "configurationDone", nil, nil)
}

// Launch starts the debuggee with adapter-specific arguments.
func (c *Client) Launch(ctx context.Context, args any) error {
	return c.call(ctx, "launch", args, nil)
}

// Attach attaches to a running debuggee.
func (c *Client) Attach(ctx context.Context, args any) error {
	return c.call(ctx, "attach", args, nil)
}

// Disconnect ends the session, optionally terminating the debuggee.
func (c *Client) Disconnect(ctx context.Context, args DisconnectArguments) error {
	return c.call(ctx, "disconnect", args, nil)
}

// Terminate asks the adapter to terminate the debuggee gracefully.
func (c *Client) Terminate(ctx context.Context, args TerminateArguments) error {
	return c.call(ctx, "terminate", args, nil)
}

// Restart restarts the session.
func (c *Client) Restart(ctx context.Context, args RestartArguments) error {
	return c.call(ctx, "restart", args, nil)
}

// SetBreakpoints replaces the breakpoint set for a source file.
func (c *Client) SetBreakpoints(ctx context.Context, args SetBreakpointsArguments) ([]Breakpoint, error) {
	var body SetBreakpointsResponseBody
	if err := c.call(ctx, "setBreakpoints", args, &body); err != nil {
		return nil, err
	}
	return body.Breakpoints, nil
}

// SetFunctionBreakpoints replaces the function breakpoint set.
func (c *Client) SetFunctionBreakpoints(ctx context.Context, args SetFunctionBreakpointsArguments) ([]Breakpoint, error) {
	var body SetBreakpointsResponseBody
	if err := c.call(ctx, "setFunctionBreakpoints", args, &body); err != nil {
		return nil, err
	}
	return body.Breakpoints, nil
}

// SetExceptionBreakpoints replaces the exception filter set.
func (c *Client) SetExceptionBreakpoints(ctx context.Context, args SetExceptionBreakpointsArguments) error {
	return c.call(ctx, "setExceptionBreakpoints", args, nil)
}

// Continue resumes execution of a thread.
func (c *Client) Continue(ctx context.Context, args ContinueArguments) (*ContinueResponseBody, error) {
	var body ContinueResponseBody
	if err := c.call(ctx, "continue", args, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Pause suspends execution of a thread.
func (c *Client) Pause(ctx context.Context, args PauseArguments) error {
	return c.call(ctx, "pause", args, nil)
}

// Next steps over the current line.
func (c *Client) Next(ctx context.Context, args NextArguments) error {
	return c.call(ctx, "next", args, nil)
}

// StepIn steps into the current call.
func (c *Client) StepIn(ctx context.Context, args StepInArguments) error {
	return c.call(ctx, "stepIn", args, nil)
}

// StepOut steps out of the current frame.
func (c *Client) StepOut(ctx context.Context, args StepOutArguments) error {
	return c.call(ctx, "stepOut", args, nil)
}

// StepBack steps backwards; only valid if the adapter advertises
// supportsStepBack.
func (c *Client) StepBack(ctx context.Context, args StepBackArguments) error {
	return c.call(ctx, "stepBack", args, nil)
}

// Threads lists the debuggee's threads.
func (c *Client) Threads(ctx context.Context) ([]Thread, error) {
	var body ThreadsResponseBody
	if err := c.call(ctx, "threads", nil, &body); err != nil {
		return nil, err
	}
	return body.Threads, nil
}

// StackTrace fetches the call stack of a paused thread.
func (c *Client) StackTrace(ctx context.Context, args StackTraceArguments) (*StackTraceResponseBody, error) {
	var body StackTraceResponseBody
	if err := c.call(ctx, "stackTrace", args, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Scopes fetches the variable scopes of a stack frame.
func (c *Client) Scopes(ctx context.Context, args ScopesArguments) ([]Scope, error) {
	var body ScopesResponseBody
	if err := c.call(ctx, "scopes", args, &body); err != nil {
		return nil, err
	}
	return body.Scopes, nil
}

// Variables fetches the children of a variable container handle.
func (c *Client) Variables(ctx context.Context, args VariablesArguments) ([]Variable, error) {
	var body VariablesResponseBody
	if err := c.call(ctx, "variables", args, &body); err != nil {
		return nil, err
	}
	return body.Variables, nil
}

// SetVariable assigns a new value to a variable.
func (c *Client) SetVariable(ctx context.Context, args SetVariableArguments) (*SetVariableResponseBody, error) {
	var body SetVariableResponseBody
	if err := c.call(ctx, "setVariable", args, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Evaluate evaluates an expression in an optional frame context.
func (c *Client) Evaluate(ctx context.Context, args EvaluateArguments) (*EvaluateResponseBody, error) {
	var body EvaluateResponseBody
	if err := c.call(ctx, "evaluate", args, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// SetExpression assigns a new value to an assignable expression.
func (c *Client) SetExpression(ctx context.Context, args SetExpressionArguments) (*SetExpressionResponseBody, error) {
	var body SetExpressionResponseBody
	if err := c.call(ctx, "setExpression", args, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// ExceptionInfo fetches details about the exception that stopped a thread.
func (c *Client) ExceptionInfo(ctx context.Context, args ExceptionInfoArguments) (*ExceptionInfoResponseBody, error) {
	var body ExceptionInfoResponseBody
	if err := c.call(ctx, "exceptionInfo", args, &body); err != nil {
		return nil, err
	}
	return &body, nil
}
