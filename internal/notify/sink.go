// Package notify turns governance events into a bounded notification feed
// and a short-lived toast queue.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/econcore/internal/clock"
	"github.com/ocx/econcore/internal/events"
)

// ErrNotFound is returned for an unknown notification id.
var ErrNotFound = errors.New("notification not found")

// Level classifies a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

func parseLevel(s string) Level {
	switch l := Level(s); l {
	case LevelInfo, LevelWarning, LevelError, LevelSuccess:
		return l
	}
	return LevelInfo
}

// Notification is a rendered event. Read only ever goes false to true.
type Notification struct {
	ID        string      `json:"id"`
	Level     Level       `json:"type"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Read      bool        `json:"read"`
	Target    string      `json:"view_target,omitempty"`
	EventKind events.Kind `json:"event_kind"`
	EventID   string      `json:"event_id"`
	Timestamp time.Time   `json:"timestamp"`
}

// Defaults.
const (
	DefaultHistoryCap = 50
	DefaultToastCap   = 3
	DefaultToastTTL   = 5 * time.Second
)

// Publisher is the bus surface used to announce a purge.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Observer receives feed counters.
type Observer interface {
	NotificationAdded(level string)
	ToastsActive(n int)
}

// Config bounds the feed.
type Config struct {
	HistoryCap int
	ToastCap   int
	ToastTTL   time.Duration
	Scope      string
}

func (c Config) withDefaults() Config {
	if c.HistoryCap <= 0 {
		c.HistoryCap = DefaultHistoryCap
	}
	if c.ToastCap <= 0 {
		c.ToastCap = DefaultToastCap
	}
	if c.ToastTTL <= 0 {
		c.ToastTTL = DefaultToastTTL
	}
	return c
}

type toast struct {
	n     Notification
	timer clock.Timer
}

// Sink is a bus subscriber holding the notification history (newest first,
// capped) and the toast queue (newest first, capped, each toast expiring
// after the TTL).
type Sink struct {
	cfg       Config
	templates map[events.Kind]compiled
	clock     clock.Clock
	bus       Publisher
	observer  Observer

	mu      sync.Mutex
	history []Notification
	toasts  []toast
}

// Option configures a Sink.
type Option func(*Sink)

func WithClock(c clock.Clock) Option { return func(s *Sink) { s.clock = c } }

func WithObserver(o Observer) Option { return func(s *Sink) { s.observer = o } }

// NewSink compiles templates. Every event kind must be mapped.
func NewSink(templates Templates, bus Publisher, cfg Config, opts ...Option) (*Sink, error) {
	compiledTemplates, err := compile(templates)
	if err != nil {
		return nil, err
	}
	s := &Sink{
		cfg:       cfg.withDefaults(),
		templates: compiledTemplates,
		clock:     clock.Real{},
		bus:       bus,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handle is a bus Handler. A payload the template cannot render still
// produces a generic notification; the render error is returned so the bus
// records it as a fault.
func (s *Sink) Handle(_ context.Context, ev events.Event) error {
	n, renderErr := s.render(ev)
	s.add(n)
	if renderErr != nil {
		return fmt.Errorf("render %s: %w", ev.Kind, renderErr)
	}
	return nil
}

func (s *Sink) render(ev events.Event) (Notification, error) {
	level, title := fallbackFor(ev.Payload)
	n := Notification{
		ID:        "notif_" + uuid.New().String(),
		Level:     level,
		Title:     title,
		Message:   string(ev.Kind),
		EventKind: ev.Kind,
		EventID:   ev.ID,
		Timestamp: s.clock.Now().UTC(),
	}
	tpl, ok := s.templates[ev.Kind]
	if !ok || ev.Payload == nil {
		return n, fmt.Errorf("no template or payload for %q", ev.Kind)
	}
	n.Target = tpl.target

	data := ev.Body()
	renderedLevel, err := execute(tpl.level, data)
	if err != nil {
		return n, err
	}
	renderedTitle, err := execute(tpl.title, data)
	if err != nil {
		return n, err
	}
	message, err := execute(tpl.message, data)
	if err != nil {
		return n, err
	}
	n.Level, n.Title, n.Message = parseLevel(renderedLevel), renderedTitle, message
	return n, nil
}

func (s *Sink) add(n Notification) {
	s.mu.Lock()
	s.history = prepend(s.history, n, s.cfg.HistoryCap)

	id := n.ID
	t := toast{n: n, timer: s.clock.AfterFunc(s.cfg.ToastTTL, func() { s.DismissToast(id) })}
	s.toasts = append([]toast{t}, s.toasts...)
	for len(s.toasts) > s.cfg.ToastCap {
		last := s.toasts[len(s.toasts)-1]
		last.timer.Stop()
		s.toasts = s.toasts[:len(s.toasts)-1]
	}
	active := len(s.toasts)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.NotificationAdded(string(n.Level))
		s.observer.ToastsActive(active)
	}
}

func prepend(list []Notification, n Notification, limit int) []Notification {
	out := make([]Notification, 0, min(len(list)+1, limit))
	out = append(out, n)
	for _, existing := range list {
		if len(out) == limit {
			break
		}
		out = append(out, existing)
	}
	return out
}

// DismissToast removes a toast and cancels its timer. Unknown ids are
// ignored, which also covers a timer racing a manual dismissal.
func (s *Sink) DismissToast(id string) bool {
	s.mu.Lock()
	removed := false
	for i, t := range s.toasts {
		if t.n.ID == id {
			t.timer.Stop()
			s.toasts = append(s.toasts[:i:i], s.toasts[i+1:]...)
			removed = true
			break
		}
	}
	active := len(s.toasts)
	s.mu.Unlock()

	if removed && s.observer != nil {
		s.observer.ToastsActive(active)
	}
	return removed
}

// MarkRead flags a notification as read. It reports whether anything
// changed; marking a read notification again changes nothing and emits
// nothing.
func (s *Sink) MarkRead(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.history {
		if s.history[i].ID != id {
			continue
		}
		if s.history[i].Read {
			return false, nil
		}
		s.history[i].Read = true
		for j := range s.toasts {
			if s.toasts[j].n.ID == id {
				s.toasts[j].n.Read = true
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// MarkAllRead flags every notification read and returns how many changed.
func (s *Sink) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for i := range s.history {
		if !s.history[i].Read {
			s.history[i].Read = true
			changed++
		}
	}
	for j := range s.toasts {
		s.toasts[j].n.Read = true
	}
	return changed
}

// ClearAll empties the history and publishes NOTIFICATIONS_CLEARED, which
// the sink itself renders as the first entry of the fresh feed. Toasts are
// left to expire.
func (s *Sink) ClearAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	cleared := len(s.history)
	s.history = nil
	s.mu.Unlock()

	slog.Info("[Notify] feed purged", "cleared", cleared)
	ev := events.New(s.cfg.Scope, events.NotificationsCleared{Cleared: cleared, ClearedAt: s.clock.Now().UTC()})
	if err := s.bus.Publish(ctx, ev); err != nil {
		return cleared, fmt.Errorf("publish purge: %w", err)
	}
	return cleared, nil
}

// History returns the feed, newest first.
func (s *Sink) History() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryByKind returns the feed entries produced by kind, newest first.
func (s *Sink) HistoryByKind(kind events.Kind) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notification
	for _, n := range s.history {
		if n.EventKind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Toasts returns the visible toasts, newest first.
func (s *Sink) Toasts() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.toasts))
	for i, t := range s.toasts {
		out[i] = t.n
	}
	return out
}

func (s *Sink) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.history {
		if !h.Read {
			n++
		}
	}
	return n
}
