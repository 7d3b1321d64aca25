package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ocx/econcore/internal/events"
)

// ErrQueueFull is returned by Handle when deliveries are dropped.
var ErrQueueFull = errors.New("webhook queue full")

const (
	HeaderEventKind = "X-Econ-Event-Kind"
	HeaderEventID   = "X-Econ-Event-ID"
	HeaderAttempt   = "X-Econ-Delivery-Attempt"
	HeaderSignature = "X-Econ-Signature"
)

// Dispatcher is a bus subscriber that POSTs each event to the matching
// subscriptions from a worker pool. Delivery is at-most MaxAttempts per
// subscription; the bus never waits on the network.
type Dispatcher struct {
	registry    *Registry
	client      *http.Client
	queue       chan deliveryJob
	workers     int
	maxAttempts int
	backoff     func(attempt int) time.Duration

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

type deliveryJob struct {
	sub     Subscription
	event   events.Event
	payload []byte
}

type Option func(*Dispatcher)

func WithWorkers(n int) Option { return func(d *Dispatcher) { d.workers = n } }

func WithHTTPClient(c *http.Client) Option { return func(d *Dispatcher) { d.client = c } }

func WithMaxAttempts(n int) Option { return func(d *Dispatcher) { d.maxAttempts = n } }

// WithBackoff sets the wait before retry number attempt (starting at 1).
func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(d *Dispatcher) { d.backoff = f }
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queue = make(chan deliveryJob, n) }
}

func NewDispatcher(registry *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		client:      &http.Client{Timeout: 10 * time.Second},
		workers:     4,
		maxAttempts: 3,
		backoff:     func(attempt int) time.Duration { return time.Duration(attempt*attempt) * time.Second },
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.queue == nil {
		d.queue = make(chan deliveryJob, 1000)
	}
	if d.workers <= 0 {
		d.workers = 1
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = 1
	}
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Handle is a bus Handler.
func (d *Dispatcher) Handle(_ context.Context, ev events.Event) error {
	subs := d.registry.Subscribers(ev)
	if len(subs) == 0 {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case d.queue <- deliveryJob{sub: sub, event: ev, payload: payload}:
		default:
			dropped++
			slog.Warn("[Webhooks] queue full, dropping delivery", "event_id", ev.ID, "webhook", sub.ID)
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d deliveries of %s dropped", ErrQueueFull, dropped, ev.ID)
	}
	return nil
}

// Close stops accepting events, abandons pending retries and waits for the
// workers to drain the queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	close(d.stop)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job deliveryJob) {
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		err := d.post(job, attempt)
		if err == nil {
			d.registry.MarkDelivered(job.sub.ID)
			slog.Debug("[Webhooks] delivered", "event_id", job.event.ID, "kind", job.event.Kind, "webhook", job.sub.ID)
			return
		}
		slog.Warn("[Webhooks] delivery failed", "webhook", job.sub.ID, "attempt", attempt, "error", err)
		if attempt == d.maxAttempts {
			break
		}
		select {
		case <-time.After(d.backoff(attempt)):
		case <-d.stop:
			d.registry.MarkFailed(job.sub.ID)
			return
		}
	}
	d.registry.MarkFailed(job.sub.ID)
}

func (d *Dispatcher) post(job deliveryJob, attempt int) error {
	req, err := http.NewRequest("POST", job.sub.URL, bytes.NewReader(job.payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventKind, string(job.event.Kind))
	req.Header.Set(HeaderEventID, job.event.ID)
	req.Header.Set(HeaderAttempt, strconv.Itoa(attempt))
	if job.sub.Secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+SignPayload(job.payload, job.sub.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
