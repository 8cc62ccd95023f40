package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// LoopbackHandler overrides the synthesized response for one command. It
// receives the request arguments and returns the response body, or a
// non-empty failure message to produce a success:false response.
type LoopbackHandler func(args gjson.Result) (body json.RawMessage, errMsg string)

// Loopback is a simulated adapter transport for environments without a live
// backend. Every send is answered after a short fixed delay with a plausible
// success response for the command; arbitrary events can be injected
// manually and individual commands can be overridden per test.
type Loopback struct {
	delay time.Duration

	mu        sync.Mutex
	connected bool
	closing   bool
	seq       int
	handlers  map[string]LoopbackHandler
	commands  []string

	onMessage func(*Message)
	onError   func(error)
	onClose   func(error)
}

// NewLoopback creates a loopback transport with a 10ms response delay.
func NewLoopback() *Loopback {
	return &Loopback{
		delay:    10 * time.Millisecond,
		handlers: make(map[string]LoopbackHandler),
	}
}

// Handle overrides the synthesized response for a command.
func (l *Loopback) Handle(command string, fn LoopbackHandler) {
	l.mu.Lock()
	l.handlers[command] = fn
	l.mu.Unlock()
}

// Commands returns the commands received so far, in order.
func (l *Loopback) Commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.commands...)
}

// OnMessage registers the received-message handler.
func (l *Loopback) OnMessage(fn func(*Message)) {
	l.mu.Lock()
	l.onMessage = fn
	l.mu.Unlock()
}

// OnError registers the transport-error handler.
func (l *Loopback) OnError(fn func(error)) {
	l.mu.Lock()
	l.onError = fn
	l.mu.Unlock()
}

// OnClose registers the closed handler.
func (l *Loopback) OnClose(fn func(error)) {
	l.mu.Lock()
	l.onClose = fn
	l.mu.Unlock()
}

// Connect marks the loopback live.
func (l *Loopback) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closing {
		return ErrClosed
	}
	l.connected = true
	return nil
}

// Disconnect shuts the loopback down.
func (l *Loopback) Disconnect() error {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return nil
	}
	l.closing = true
	l.connected = false
	onClose := l.onClose
	l.mu.Unlock()

	if onClose != nil {
		onClose(nil)
	}
	return nil
}

// Connected reports whether the loopback is live.
func (l *Loopback) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Send accepts a request and schedules a synthesized response.
func (l *Loopback) Send(msg *Message) error {
	command := gjson.GetBytes(msg.Content, "command").String()
	requestSeq := int(gjson.GetBytes(msg.Content, "seq").Int())
	args := gjson.GetBytes(msg.Content, "arguments")

	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return ErrClosed
	}
	if !l.connected {
		l.mu.Unlock()
		return ErrNotConnected
	}
	l.commands = append(l.commands, command)
	override := l.handlers[command]
	l.mu.Unlock()

	go func() {
		time.Sleep(l.delay)

		var body json.RawMessage
		var errMsg string
		if override != nil {
			body, errMsg = override(args)
		} else {
			body = synthesizeBody(command, args)
		}

		l.deliverResponse(requestSeq, command, body, errMsg)
	}()

	return nil
}

// InjectEvent delivers an arbitrary event to subscribers.
func (l *Loopback) InjectEvent(event string, body any) error {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return ErrClosed
	}
	l.seq++
	seq := l.seq
	handler := l.onMessage
	l.mu.Unlock()

	content, err := sjson.SetBytes([]byte(`{"type":"event"}`), "seq", seq)
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}
	content, _ = sjson.SetBytes(content, "event", event)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal event body: %w", err)
		}
		content, _ = sjson.SetRawBytes(content, "body", raw)
	}

	if handler != nil {
		handler(newMessage(content))
	}
	return nil
}

// deliverResponse assembles and delivers a response envelope.
func (l *Loopback) deliverResponse(requestSeq int, command string, body json.RawMessage, errMsg string) {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return
	}
	l.seq++
	seq := l.seq
	handler := l.onMessage
	l.mu.Unlock()

	content, _ := sjson.SetBytes([]byte(`{"type":"response"}`), "seq", seq)
	content, _ = sjson.SetBytes(content, "request_seq", requestSeq)
	content, _ = sjson.SetBytes(content, "command", command)
	if errMsg != "" {
		content, _ = sjson.SetBytes(content, "success", false)
		content, _ = sjson.SetBytes(content, "message", errMsg)
	} else {
		content, _ = sjson.SetBytes(content, "success", true)
		if len(body) > 0 {
			content, _ = sjson.SetRawBytes(content, "body", body)
		}
	}

	if handler != nil {
		handler(newMessage(content))
	}
}

// loopbackCapabilities is the capability set the loopback advertises.
var loopbackCapabilities = Capabilities{
	SupportsConfigurationDoneRequest:  true,
	SupportsFunctionBreakpoints:       true,
	SupportsConditionalBreakpoints:    true,
	SupportsHitConditionalBreakpoints: true,
	SupportsEvaluateForHovers:         true,
	SupportsSetVariable:               true,
	SupportsLogPoints:                 true,
	SupportsTerminateRequest:          true,
	SupportTerminateDebuggee:          true,
	SupportsSteppingGranularity:       true,
	SupportsExceptionInfoRequest:      true,
}

// synthesizeBody fabricates a plausible success body for a command.
func synthesizeBody(command string, args gjson.Result) json.RawMessage {
	switch command {
	case "initialize":
		body, _ := json.Marshal(loopbackCapabilities)
		return body

	case "threads":
		body, _ := json.Marshal(ThreadsResponseBody{
			Threads: []Thread{{ID: 1, Name: "main"}},
		})
		return body

	case "stackTrace":
		body, _ := json.Marshal(StackTraceResponseBody{
			StackFrames: []StackFrame{
				{
					ID:     1000,
					Name:   "main",
					Source: &Source{Name: "main", Path: "main"},
					Line:   1,
					Column: 1,
				},
			},
			TotalFrames: 1,
		})
		return body

	case "scopes":
		body, _ := json.Marshal(ScopesResponseBody{
			Scopes: []Scope{
				{Name: "Locals", VariablesReference: 100, Expensive: false},
			},
		})
		return body

	case "variables":
		body, _ := json.Marshal(VariablesResponseBody{
			Variables: []Variable{
				{Name: "answer", Value: "42", Type: "int"},
			},
		})
		return body

	case "setBreakpoints":
		// Verify every requested line.
		body := []byte(`{"breakpoints":[]}`)
		args.Get("breakpoints").ForEach(func(i, bp gjson.Result) bool {
			entry, _ := sjson.SetBytes([]byte(`{"verified":true}`), "id", i.Int()+1)
			entry, _ = sjson.SetBytes(entry, "line", bp.Get("line").Int())
			body, _ = sjson.SetRawBytes(body, "breakpoints.-1", entry)
			return true
		})
		return body

	case "setFunctionBreakpoints":
		body := []byte(`{"breakpoints":[]}`)
		args.Get("breakpoints").ForEach(func(i, bp gjson.Result) bool {
			entry, _ := sjson.SetBytes([]byte(`{"verified":true}`), "id", i.Int()+1)
			body, _ = sjson.SetRawBytes(body, "breakpoints.-1", entry)
			return true
		})
		return body

	case "continue":
		return json.RawMessage(`{"allThreadsContinued":true}`)

	case "evaluate":
		body, _ := sjson.SetBytes([]byte(`{"variablesReference":0}`), "result",
			args.Get("expression").String())
		return body

	default:
		return json.RawMessage(`{}`)
	}
}
