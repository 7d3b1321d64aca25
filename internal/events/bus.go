package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// ErrNoPayload is returned when an event is published without a body.
var ErrNoPayload = errors.New("event has no payload")

// Handler consumes one event. A returned error is recorded as a fault and
// never reaches the publisher.
type Handler func(ctx context.Context, ev Event) error

// Observer receives bus counters. monitoring.Metrics implements it.
type Observer interface {
	EventPublished(kind Kind)
	SubscriberFault(kind Kind, subscriber string)
}

// Fault describes a handler that errored or panicked.
type Fault struct {
	Subscriber string    `json:"subscriber"`
	EventID    string    `json:"event_id"`
	Kind       Kind      `json:"kind"`
	Err        string    `json:"error"`
	Panicked   bool      `json:"panicked"`
	At         time.Time `json:"at"`
}

// Subscription is the handle returned by Subscribe. The zero value is valid
// and unsubscribing it is a no-op.
type Subscription struct {
	sub *subscriber
}

type subscriber struct {
	name    string
	handler Handler
	active  atomic.Bool
}

type pending struct {
	ctx      context.Context
	ev       Event
	audience []*subscriber
}

// Bus is the in-process governance event bus.
//
// Publish appends the event, together with the subscribers registered at
// that instant, to a FIFO queue. If nobody is draining, the publishing
// goroutine drains the queue; otherwise it returns and the active drainer
// delivers the event after the ones ahead of it. Delivery therefore never
// recurses and every subscriber sees events in publish order.
//
// The draining publisher also delivers events other goroutines queue while
// it runs. Without a drain limit a steady stream of publishes can hold it
// indefinitely; WithDrainLimit bounds that by passing the rest of the queue
// to a new goroutine. There is only ever one drainer, so order is kept.
type Bus struct {
	mu         sync.Mutex
	subs       []*subscriber
	queue      []pending
	draining   bool
	closed     bool
	drainLimit int

	faultMu  sync.Mutex
	faults   []Fault
	faultCap int

	observer Observer
}

// Option configures a Bus.
type Option func(*Bus)

// WithObserver reports publish and fault counts to o.
func WithObserver(o Observer) Option {
	return func(b *Bus) { b.observer = o }
}

// WithFaultCapacity bounds the fault ring. Values below 1 keep the default.
func WithFaultCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.faultCap = n
		}
	}
}

// WithDrainLimit caps how many events one publishing goroutine delivers
// before the remaining queue is handed to a new goroutine. 0 means no cap.
func WithDrainLimit(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.drainLimit = n
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{faultCap: 64}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler. name labels faults and metrics.
func (b *Bus) Subscribe(name string, handler Handler) Subscription {
	s := &subscriber{name: name, handler: handler}
	s.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	slog.Debug("[EventBus] subscribed", "subscriber", name)
	return Subscription{sub: s}
}

// Unsubscribe removes the subscription. Events still queued are skipped for
// it. Calling it more than once is harmless.
func (b *Bus) Unsubscribe(sub Subscription) {
	s := sub.sub
	if s == nil || !s.active.Swap(false) {
		return
	}
	b.mu.Lock()
	for i, existing := range b.subs {
		if existing == s {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	slog.Debug("[EventBus] unsubscribed", "subscriber", s.name)
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish queues ev for delivery. Subscriber faults are isolated; the only
// errors are a closed bus or an event without payload.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.Payload == nil {
		return ErrNoPayload
	}
	if ev.Kind == "" {
		ev.Kind = ev.Payload.Kind()
	}
	if ev.Kind != ev.Payload.Kind() {
		return fmt.Errorf("event kind %s does not match payload %s", ev.Kind, ev.Payload.Kind())
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	audience := make([]*subscriber, len(b.subs))
	copy(audience, b.subs)
	b.queue = append(b.queue, pending{ctx: ctx, ev: ev, audience: audience})
	if b.draining {
		b.mu.Unlock()
		return nil
	}
	b.draining = true
	b.mu.Unlock()

	b.drain()
	return nil
}

// Emit wraps payload in a new event and publishes it.
func (b *Bus) Emit(ctx context.Context, scope string, payload Payload) error {
	return b.Publish(ctx, New(scope, payload))
}

// Close rejects further publishes and drops all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, s := range b.subs {
		s.active.Store(false)
	}
	b.subs = nil
}

// Faults returns the most recent handler faults, oldest first.
func (b *Bus) Faults() []Fault {
	b.faultMu.Lock()
	defer b.faultMu.Unlock()
	out := make([]Fault, len(b.faults))
	copy(out, b.faults)
	return out
}

func (b *Bus) drain() {
	for delivered := 0; ; delivered++ {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.mu.Unlock()
			return
		}
		if b.drainLimit > 0 && delivered >= b.drainLimit {
			// draining stays set; the new goroutine owns the queue now
			b.mu.Unlock()
			go b.drain()
			return
		}
		next := b.queue[0]
		b.queue[0] = pending{}
		b.queue = b.queue[1:]
		b.mu.Unlock()

		if b.observer != nil {
			b.observer.EventPublished(next.ev.Kind)
		}
		for _, s := range next.audience {
			if !s.active.Load() {
				continue
			}
			b.invoke(next.ctx, s, next.ev)
		}
	}
}

func (b *Bus) invoke(ctx context.Context, s *subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.recordFault(s, ev, fmt.Sprintf("panic: %v", r), true)
		}
	}()
	if err := s.handler(ctx, ev); err != nil {
		b.recordFault(s, ev, err.Error(), false)
	}
}

func (b *Bus) recordFault(s *subscriber, ev Event, msg string, panicked bool) {
	slog.Warn("[EventBus] subscriber fault",
		"subscriber", s.name,
		"event_id", ev.ID,
		"kind", ev.Kind,
		"panicked", panicked,
		"error", msg,
	)
	if b.observer != nil {
		b.observer.SubscriberFault(ev.Kind, s.name)
	}

	b.faultMu.Lock()
	defer b.faultMu.Unlock()
	b.faults = append(b.faults, Fault{
		Subscriber: s.name,
		EventID:    ev.ID,
		Kind:       ev.Kind,
		Err:        msg,
		Panicked:   panicked,
		At:         time.Now().UTC(),
	})
	if over := len(b.faults) - b.faultCap; over > 0 {
		b.faults = append(b.faults[:0:0], b.faults[over:]...)
	}
}

// OnKinds wraps h so it only sees the listed kinds.
func OnKinds(h Handler, kinds ...Kind) Handler {
	set := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(ctx context.Context, ev Event) error {
		if _, ok := set[ev.Kind]; !ok {
			return nil
		}
		return h(ctx, ev)
	}
}
