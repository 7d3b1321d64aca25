// Package webhooks delivers bus events to external HTTP subscribers.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/econcore/internal/events"
)

// MaxFailures disables a subscription after that many failed deliveries
// in a row.
const MaxFailures = 10

var ErrNotFound = errors.New("webhook not found")

// Subscription is a registered webhook. An empty Kinds list receives every
// kind; an empty Scope receives every scope.
type Subscription struct {
	ID        string        `json:"id" yaml:"id"`
	URL       string        `json:"url" yaml:"url"`
	Kinds     []events.Kind `json:"kinds" yaml:"kinds"`
	Secret    string        `json:"secret,omitempty" yaml:"secret"`
	Scope     string        `json:"scope,omitempty" yaml:"scope"`
	Active    bool          `json:"active" yaml:"-"`
	CreatedAt time.Time     `json:"created_at" yaml:"-"`
	FailCount int           `json:"fail_count" yaml:"-"`
}

func (s *Subscription) wants(ev events.Event) bool {
	if s.Scope != "" && s.Scope != ev.Scope {
		return false
	}
	if len(s.Kinds) == 0 {
		return true
	}
	for _, k := range s.Kinds {
		if k == ev.Kind {
			return true
		}
	}
	return false
}

// Registry stores webhook subscriptions.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string]*Subscription
}

func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string]*Subscription)}
}

// Register validates and stores sub, assigning an id when missing.
func (r *Registry) Register(sub Subscription) (Subscription, error) {
	if sub.URL == "" {
		return Subscription{}, fmt.Errorf("webhook URL is required")
	}
	for _, k := range sub.Kinds {
		if !k.Valid() {
			return Subscription{}, fmt.Errorf("%w: %s", events.ErrUnknownKind, k)
		}
	}
	if sub.ID == "" {
		sub.ID = "wh_" + uuid.New().String()
	}
	sub.Active = true
	sub.CreatedAt = time.Now().UTC()
	sub.FailCount = 0

	r.mu.Lock()
	r.hooks[sub.ID] = &sub
	r.mu.Unlock()

	slog.Info("[Webhooks] registered", "id", sub.ID, "url", sub.URL, "kinds", len(sub.Kinds))
	return sub, nil
}

func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hooks[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.hooks, id)
	slog.Info("[Webhooks] unregistered", "id", id)
	return nil
}

// Subscribers returns copies of the active subscriptions that want ev.
func (r *Registry) Subscribers(ev events.Event) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Subscription
	for _, sub := range r.hooks {
		if sub.Active && sub.wants(ev) {
			out = append(out, *sub)
		}
	}
	return out
}

// List returns every subscription ordered by creation time. Secrets are
// redacted.
func (r *Registry) List() []Subscription {
	r.mu.RLock()
	out := make([]Subscription, 0, len(r.hooks))
	for _, sub := range r.hooks {
		cp := *sub
		if cp.Secret != "" {
			cp.Secret = "***"
		}
		out = append(out, cp)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// MarkFailed counts a failed delivery and disables the subscription after
// MaxFailures.
func (r *Registry) MarkFailed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.hooks[id]
	if !ok {
		return
	}
	sub.FailCount++
	if sub.FailCount >= MaxFailures && sub.Active {
		sub.Active = false
		slog.Warn("[Webhooks] disabled after repeated failures", "id", id, "failures", sub.FailCount)
	}
}

// MarkDelivered resets the failure streak.
func (r *Registry) MarkDelivered(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.hooks[id]; ok {
		sub.FailCount = 0
	}
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
