// Package bus implements the serialized event loop at the heart of the
// runtime. All cross-component communication rides on typed envelopes pushed
// through a single FIFO queue with a single consumer goroutine, which makes
// event dispatch the one serialization point in the process: no two handlers
// ever run concurrently, and handlers can mutate engine state without locks.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ferretbot/ferretbot/internal/logging"
)

// ErrStopped is returned by Emit and EmitAsync when the bus loop has shut
// down before the event could be dispatched.
var ErrStopped = errors.New("bus: stopped")

// Option configures a Bus.
type Option func(*Bus)

// WithLogger overrides the default component logger.
func WithLogger(logger *log.Logger) Option {
	return func(b *Bus) { b.log = logger }
}

// subscription pairs a handler with the type it was registered for. The id
// orders handlers within a type and identifies them for unsubscription.
type subscription struct {
	id      uint64
	handler Handler
}

// pending is a queued envelope. done is non-nil for blocking emits and is
// closed once every handler has run (or the bus stopped, in which case err
// is set first).
type pending struct {
	ev   *Event
	done chan struct{}
	err  error
}

// Bus is the single-consumer event queue. Producers enqueue from any
// goroutine; Run dispatches strictly in enqueue order, awaiting each handler
// before the next. The queue is unbounded so handlers can append new events
// without risking deadlock against a full buffer.
type Bus struct {
	log *log.Logger

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []*pending
	subs       map[string][]subscription
	nextSubID  uint64
	stopped    bool
	dispatched uint64
}

// New creates a Bus. Run must be started before blocking emits will return.
func New(opts ...Option) *Bus {
	b := &Bus{
		log:  logging.New("bus"),
		subs: make(map[string][]subscription),
	}
	b.cond = sync.NewCond(&b.mu)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for the given event type (or Wildcard for
// all types) and returns a function that removes the registration. For each
// dispatched event, type-specific handlers run before wildcard handlers, in
// registration order within each group.
func (b *Bus) Subscribe(eventType string, handler Handler) func() {
	if eventType == "" || handler == nil {
		panic("bus: Subscribe requires an event type and a handler")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	id := b.nextSubID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[eventType]
		for i, s := range list {
			if s.id == id {
				b.subs[eventType] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Emit normalizes the envelope, appends it to the queue tail, and blocks
// until every handler for it has finished (or ctx is done). An empty Type is
// rejected.
//
// Emit must not be called from inside a handler: the loop is busy awaiting
// that handler, so waiting on a later queue position deadlocks. Handlers
// append follow-up events with EmitAsync instead.
func (b *Bus) Emit(ctx context.Context, ev Event) error {
	p, err := b.enqueue(ev, true)
	if err != nil {
		return err
	}

	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EmitAsync normalizes the envelope and appends it to the queue tail without
// waiting for dispatch. This is the emit form handlers use: follow-up events
// land behind everything already queued, never ahead of it.
func (b *Bus) EmitAsync(ev Event) error {
	_, err := b.enqueue(ev, false)
	return err
}

func (b *Bus) enqueue(ev Event, trackDone bool) (*pending, error) {
	if ev.Type == "" {
		return nil, fmt.Errorf("bus: event type is required")
	}
	ev.normalize()

	p := &pending{ev: &ev}
	if trackDone {
		p.done = make(chan struct{})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil, ErrStopped
	}
	b.queue = append(b.queue, p)
	b.cond.Signal()
	return p, nil
}

// QueueDepth reports the number of events waiting behind the one currently
// being dispatched.
func (b *Bus) QueueDepth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Dispatched reports the total number of events dispatched since start.
func (b *Bus) Dispatched() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dispatched
}

// Run is the consumer loop. It dequeues events in FIFO order and invokes the
// handlers subscribed at dequeue time, each awaited in turn. Handler errors
// and panics are logged and never poison the queue. Run returns nil once ctx
// is done; emitters still waiting on queued events receive ErrStopped.
func (b *Bus) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.stopped = true
		b.cond.Broadcast()
		b.mu.Unlock()
	}()

	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.stopped {
			b.cond.Wait()
		}
		if b.stopped {
			rest := b.queue
			b.queue = nil
			b.mu.Unlock()
			for _, p := range rest {
				if p.done != nil {
					p.err = ErrStopped
					close(p.done)
				}
			}
			b.log.Debug("bus stopped", "undispatched", len(rest))
			return nil
		}

		p := b.queue[0]
		b.queue = b.queue[1:]
		handlers := b.handlersFor(p.ev.Type)
		b.dispatched++
		depth := len(b.queue)
		b.mu.Unlock()

		b.log.Debug("dispatch", "type", p.ev.Type, "handlers", len(handlers), "depth", depth)

		for _, s := range handlers {
			b.invoke(ctx, s, p.ev)
		}
		if p.done != nil {
			close(p.done)
		}
	}
}

// handlersFor snapshots the handler list for one dispatch: type-specific
// first, wildcard after. Callers must hold b.mu.
func (b *Bus) handlersFor(eventType string) []subscription {
	typed := b.subs[eventType]
	wild := b.subs[Wildcard]
	out := make([]subscription, 0, len(typed)+len(wild))
	out = append(out, typed...)
	out = append(out, wild...)
	return out
}

// invoke runs one handler, containing errors and panics.
func (b *Bus) invoke(ctx context.Context, s subscription, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panicked", "type", ev.Type, "panic", r)
		}
	}()

	if err := s.handler(ctx, ev); err != nil {
		b.log.Error("handler failed", "type", ev.Type, "err", err)
	}
}
