package dap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeTransport records sends and lets tests deliver messages by hand.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	sent      []*Message
	sendErr   error

	onMessage func(*Message)
	onError   func(error)
	onClose   func(error)
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	f.connected = false
	onClose := f.onClose
	f.mu.Unlock()
	if onClose != nil {
		onClose(nil)
	}
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Send(msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) OnMessage(fn func(*Message)) {
	f.mu.Lock()
	f.onMessage = fn
	f.mu.Unlock()
}

func (f *fakeTransport) OnError(fn func(error)) {
	f.mu.Lock()
	f.onError = fn
	f.mu.Unlock()
}

func (f *fakeTransport) OnClose(fn func(error)) {
	f.mu.Lock()
	f.onClose = fn
	f.mu.Unlock()
}

func (f *fakeTransport) sentRequests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, 0, len(f.sent))
	for _, msg := range f.sent {
		var req Request
		if err := json.Unmarshal(msg.Content, &req); err == nil {
			out = append(out, req)
		}
	}
	return out
}

// deliver pushes raw JSON into the client as a received message.
func (f *fakeTransport) deliver(content string) {
	f.mu.Lock()
	handler := f.onMessage
	f.mu.Unlock()
	if handler != nil {
		handler(newMessage([]byte(content)))
	}
}

func (f *fakeTransport) respondSuccess(requestSeq int, command, body string) {
	f.deliver(fmt.Sprintf(
		`{"seq":100,"type":"response","request_seq":%d,"success":true,"command":%q,"body":%s}`,
		requestSeq, command, body))
}

func (f *fakeTransport) respondFailure(requestSeq int, command, message string) {
	f.deliver(fmt.Sprintf(
		`{"seq":100,"type":"response","request_seq":%d,"success":false,"command":%q,"message":%q}`,
		requestSeq, command, message))
}

func (f *fakeTransport) waitForRequests(t *testing.T, n int) []Request {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		reqs := f.sentRequests()
		if len(reqs) >= n {
			return reqs
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d requests, have %d", n, len(f.sentRequests()))
	return nil
}

func TestClientResolvesBySequence(t *testing.T) {
	transport := &fakeTransport{connected: true}
	client := NewClient(transport)

	done := make(chan []Thread, 1)
	errCh := make(chan error, 1)
	go func() {
		threads, err := client.Threads(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		done <- threads
	}()

	reqs := transport.waitForRequests(t, 1)
	if reqs[0].Command != "threads" {
		t.Fatalf("command = %q, want threads", reqs[0].Command)
	}

	transport.respondSuccess(reqs[0].Seq, "threads", `{"threads":[{"id":7,"name":"worker"}]}`)

	select {
	case threads := <-done:
		if len(threads) != 1 || threads[0].ID != 7 {
			t.Errorf("threads = %+v, want one thread with id 7", threads)
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(time.Second):
		t.Fatal("request never resolved")
	}
}

func TestClientDuplicateResponseIsNoOp(t *testing.T) {
	transport := &fakeTransport{connected: true}
	client := NewClient(transport)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Threads(context.Background())
		errCh <- err
	}()

	reqs := transport.waitForRequests(t, 1)
	transport.respondSuccess(reqs[0].Seq, "threads", `{"threads":[]}`)
	// The duplicate must be discarded without disturbing anything.
	transport.respondFailure(reqs[0].Seq, "threads", "duplicate")

	if err := <-errCh; err != nil {
		t.Fatalf("first response should win, got error: %v", err)
	}
}

func TestClientUnmatchedResponseIgnored(t *testing.T) {
	transport := &fakeTransport{connected: true}
	client := NewClient(transport)

	// No pending entry for seq 999.
	transport.respondSuccess(999, "threads", `{"threads":[]}`)

	// The client must still work afterwards.
	errCh := make(chan error, 1)
	go func() {
		err := client.ConfigurationDone(context.Background())
		errCh <- err
	}()
	reqs := transport.waitForRequests(t, 1)
	transport.respondSuccess(reqs[0].Seq, "configurationDone", `{}`)
	if err := <-errCh; err != nil {
		t.Fatalf("configurationDone failed: %v", err)
	}
}

func TestClientTimeoutRejects(t *testing.T) {
	transport := &fakeTransport{connected: true}
	client := NewClient(transport, WithRequestTimeout(30*time.Millisecond))

	_, err := client.Threads(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}

	// A late response after the timeout must be discarded without effect.
	reqs := transport.sentRequests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	transport.respondSuccess(reqs[0].Seq, "threads", `{"threads":[]}`)
}

func TestClientFailureCarriesAdapterMessage(t *testing.T) {
	transport := &fakeTransport{connected: true}
	client := NewClient(transport)

	errCh := make(chan error, 1)
	go func() {
		err := client.Pause(context.Background(), PauseArguments{ThreadID: 1})
		errCh <- err
	}()

	reqs := transport.waitForRequests(t, 1)
	transport.respondFailure(reqs[0].Seq, "pause", "thread is not running")

	err := <-errCh
	if err == nil {
		t.Fatal("expected request failure")
	}
	if !strings.Contains(err.Error(), "thread is not running") {
		t.Errorf("error = %v, want adapter message included", err)
	}
}

func TestClientSequencesStrictlyIncrease(t *testing.T) {
	transport := &fakeTransport{connected: true}
	client := NewClient(transport, WithRequestTimeout(20*time.Millisecond))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Expected to time out; only the sent seqs matter here.
			client.ConfigurationDone(context.Background()) //nolint:errcheck
		}()
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, req := range transport.sentRequests() {
		if req.Seq <= 0 {
			t.Errorf("seq %d is not positive", req.Seq)
		}
		if seen[req.Seq] {
			t.Errorf("seq %d assigned twice", req.Seq)
		}
		seen[req.Seq] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 distinct seqs, got %d", len(seen))
	}
}

func TestClientContextCancellation(t *testing.T) {
	transport := &fakeTransport{connected: true}
	client := NewClient(transport)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Threads(ctx)
		errCh <- err
	}()

	transport.waitForRequests(t, 1)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestClientTransportCloseFailsPending(t *testing.T) {
	transport := &fakeTransport{connected: true}
	client := NewClient(transport)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Threads(context.Background())
		errCh <- err
	}()

	transport.waitForRequests(t, 1)
	transport.Disconnect() //nolint:errcheck

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("pending request should fail on transport close")
		}
	case <-time.After(time.Second):
		t.Fatal("pending request not failed on transport close")
	}
}

func TestClientEventDispatch(t *testing.T) {
	transport := &fakeTransport{connected: true}
	client := NewClient(transport)

	var mu sync.Mutex
	var stopped []StoppedEventBody
	var generic []string
	client.OnStopped(func(body StoppedEventBody) {
		mu.Lock()
		stopped = append(stopped, body)
		mu.Unlock()
	})
	client.OnEvent(func(evt Event) {
		mu.Lock()
		generic = append(generic, evt.Event)
		mu.Unlock()
	})

	transport.deliver(`{"seq":1,"type":"event","event":"stopped","body":{"reason":"breakpoint","threadId":3}}`)
	transport.deliver(`{"seq":2,"type":"event","event":"customTelemetry","body":{"x":1}}`)

	mu.Lock()
	defer mu.Unlock()
	if len(stopped) != 1 || stopped[0].ThreadID != 3 || stopped[0].Reason != "breakpoint" {
		t.Errorf("stopped = %+v, want one breakpoint stop on thread 3", stopped)
	}
	if len(generic) != 2 {
		t.Errorf("generic events = %v, want both events passed through", generic)
	}
}
