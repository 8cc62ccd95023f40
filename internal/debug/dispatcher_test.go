package debug

import (
	"testing"

	"go.uber.org/zap"
)

func TestDispatcherSubscribeAndPublish(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var got []Event
	d.Subscribe(func(evt Event) { got = append(got, evt) })

	d.Publish(Stopped{SessionID: "s1", ThreadID: 1, Reason: "breakpoint"})
	d.Publish(Continued{SessionID: "s1", ThreadID: 1})

	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].Kind() != "stopped" || got[1].Kind() != "continued" {
		t.Errorf("kinds = %q, %q", got[0].Kind(), got[1].Kind())
	}
}

func TestDispatcherUnsubscribe(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	count := 0
	unsubscribe := d.Subscribe(func(Event) { count++ })

	d.Publish(Terminated{SessionID: "s1"})
	unsubscribe()
	d.Publish(Terminated{SessionID: "s1"})
	unsubscribe() // idempotent

	if count != 1 {
		t.Errorf("deliveries = %d, want 1", count)
	}
}

func TestDispatcherPanickingSubscriberIsolated(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	d.Subscribe(func(Event) { panic("boom") })
	delivered := false
	d.Subscribe(func(Event) { delivered = true })

	d.Publish(Exited{SessionID: "s1", ExitCode: 0})

	if !delivered {
		t.Error("panic in one subscriber must not starve the others")
	}
}

func TestDispatcherDeliversInSubscriptionOrder(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		d.Subscribe(func(Event) { order = append(order, i) })
	}

	d.Publish(Terminated{SessionID: "s1"})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}
