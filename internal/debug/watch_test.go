package debug

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/pulseide/debugkit/internal/dap"
)

func TestWatchesAddRemoveUpdate(t *testing.T) {
	w := NewWatches()

	first := w.Add("count")
	second := w.Add("items[0]")
	if first.ID >= second.ID {
		t.Errorf("ids = %d, %d, want increasing", first.ID, second.ID)
	}

	all := w.All()
	if len(all) != 2 || all[0].ID != first.ID || all[1].ID != second.ID {
		t.Fatalf("all = %v, want both watches in id order", all)
	}

	if err := w.Update(second.ID, "items[1]"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	updated, ok := w.Get(second.ID)
	if !ok || updated.Expression != "items[1]" {
		t.Errorf("watch = %+v, want rewritten expression", updated)
	}

	if err := w.Remove(first.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := w.Remove(first.ID); !errors.Is(err, ErrWatchNotFound) {
		t.Errorf("remove again = %v, want ErrWatchNotFound", err)
	}
	if err := w.Update(99, "x"); !errors.Is(err, ErrWatchNotFound) {
		t.Errorf("update unknown = %v, want ErrWatchNotFound", err)
	}
}

func TestWatchesRefreshRecordsResults(t *testing.T) {
	var contexts []string
	_, session := newLoopbackSession(t, func(l *dap.Loopback) {
		l.Handle("evaluate", func(args gjson.Result) (json.RawMessage, string) {
			contexts = append(contexts, args.Get("context").String())
			body, _ := json.Marshal(dap.EvaluateResponseBody{
				Result: strings.ToUpper(args.Get("expression").String()),
				Type:   "string",
			})
			return body, ""
		})
	})
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	w := NewWatches()
	w.Add("alpha")
	w.Add("beta")

	w.Refresh(context.Background(), session, 0)

	all := w.All()
	if all[0].Value != "ALPHA" || all[1].Value != "BETA" {
		t.Errorf("values = %q, %q, want evaluated results", all[0].Value, all[1].Value)
	}
	if all[0].Type != "string" {
		t.Errorf("type = %q, want string", all[0].Type)
	}
	for _, c := range contexts {
		if c != "watch" {
			t.Errorf("evaluate context = %q, want watch", c)
		}
	}
}

func TestWatchesRefreshRecordsFailures(t *testing.T) {
	_, session := newLoopbackSession(t, func(l *dap.Loopback) {
		l.Handle("evaluate", func(args gjson.Result) (json.RawMessage, string) {
			expr := args.Get("expression").String()
			if expr == "boom" {
				return nil, "symbol not found: boom"
			}
			body, _ := json.Marshal(dap.EvaluateResponseBody{Result: "ok"})
			return body, ""
		})
	})
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	w := NewWatches()
	good := w.Add("fine")
	bad := w.Add("boom")

	w.Refresh(context.Background(), session, 0)

	got, _ := w.Get(good.ID)
	if got.Value != "ok" || got.EvalError != "" {
		t.Errorf("good watch = %+v, want value without error", got)
	}
	got, _ = w.Get(bad.ID)
	if got.EvalError == "" || got.Value != "" {
		t.Errorf("bad watch = %+v, want recorded failure and no value", got)
	}

	// A later successful refresh clears the failure.
	if err := w.Update(bad.ID, "fine"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	w.Refresh(context.Background(), session, 0)
	got, _ = w.Get(bad.ID)
	if got.Value != "ok" || got.EvalError != "" {
		t.Errorf("rewritten watch = %+v, want recovered value", got)
	}
}
