package dap

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func newLoopbackClient(t *testing.T) (*Loopback, *Client) {
	t.Helper()
	loopback := NewLoopback()
	client := NewClient(loopback)
	if err := loopback.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return loopback, client
}

func TestLoopbackInitializeCapabilities(t *testing.T) {
	_, client := newLoopbackClient(t)

	caps, err := client.Initialize(context.Background(), InitializeRequestArguments{
		AdapterID: "mock",
	})
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if !caps.SupportsConfigurationDoneRequest {
		t.Error("loopback should advertise configurationDone")
	}
	if !caps.SupportsTerminateRequest {
		t.Error("loopback should advertise terminate")
	}
}

func TestLoopbackVerifiesRequestedBreakpoints(t *testing.T) {
	_, client := newLoopbackClient(t)

	result, err := client.SetBreakpoints(context.Background(), SetBreakpointsArguments{
		Source: Source{Path: "main.go"},
		Breakpoints: []SourceBreakpoint{
			{Line: 10}, {Line: 20}, {Line: 30},
		},
	})
	if err != nil {
		t.Fatalf("setBreakpoints failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("breakpoints = %d, want 3", len(result))
	}
	for i, bp := range result {
		if !bp.Verified {
			t.Errorf("breakpoint %d not verified", i)
		}
	}
	if result[1].Line != 20 {
		t.Errorf("line = %d, want 20", result[1].Line)
	}
}

func TestLoopbackHandlerOverride(t *testing.T) {
	loopback, client := newLoopbackClient(t)

	loopback.Handle("evaluate", func(args gjson.Result) (json.RawMessage, string) {
		return nil, "symbol not found: " + args.Get("expression").String()
	})

	_, err := client.Evaluate(context.Background(), EvaluateArguments{Expression: "bogus"})
	if err == nil || err.Error() != "evaluate: symbol not found: bogus" {
		t.Fatalf("error = %v, want overridden failure message", err)
	}
}

func TestLoopbackInjectEvent(t *testing.T) {
	loopback, client := newLoopbackClient(t)

	received := make(chan StoppedEventBody, 1)
	client.OnStopped(func(body StoppedEventBody) { received <- body })

	err := loopback.InjectEvent("stopped", StoppedEventBody{
		Reason:   "breakpoint",
		ThreadID: 1,
	})
	if err != nil {
		t.Fatalf("inject failed: %v", err)
	}

	select {
	case body := <-received:
		if body.Reason != "breakpoint" || body.ThreadID != 1 {
			t.Errorf("body = %+v, want breakpoint stop on thread 1", body)
		}
	case <-time.After(time.Second):
		t.Fatal("injected event never delivered")
	}
}

func TestLoopbackRecordsCommands(t *testing.T) {
	_, client := newLoopbackClient(t)

	ctx := context.Background()
	if _, err := client.Initialize(ctx, InitializeRequestArguments{AdapterID: "mock"}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if _, err := client.Threads(ctx); err != nil {
		t.Fatalf("threads failed: %v", err)
	}

	commands := client.Transport().(*Loopback).Commands()
	if len(commands) != 2 || commands[0] != "initialize" || commands[1] != "threads" {
		t.Errorf("commands = %v, want [initialize threads]", commands)
	}
}

func TestLoopbackSendAfterDisconnect(t *testing.T) {
	loopback, _ := newLoopbackClient(t)

	if err := loopback.Disconnect(); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	err := loopback.Send(newMessage([]byte(`{"seq":1,"type":"request","command":"threads"}`)))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("send after disconnect = %v, want ErrClosed", err)
	}
}
