package debug

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher fans session events out to subscribers. Subscribers are
// invoked synchronously in subscription order; a panicking subscriber is
// logged and does not disturb the others.
type Dispatcher struct {
	logger *zap.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// NewDispatcher creates an event dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger: logger,
		subs:   make(map[int]func(Event)),
	}
}

// Subscribe registers a handler for all events and returns its
// unsubscribe function. The unsubscribe function is idempotent.
func (d *Dispatcher) Subscribe(fn func(Event)) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// Publish delivers an event to every subscriber.
func (d *Dispatcher) Publish(evt Event) {
	d.mu.RLock()
	ids := make([]int, 0, len(d.subs))
	for id := range d.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, d.subs[id])
	}
	d.mu.RUnlock()

	for _, fn := range handlers {
		d.deliver(fn, evt)
	}
}

func (d *Dispatcher) deliver(fn func(Event), evt Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event subscriber panicked",
				zap.String("kind", evt.Kind()),
				zap.Any("panic", r))
		}
	}()
	fn(evt)
}
