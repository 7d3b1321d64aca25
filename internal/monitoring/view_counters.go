package monitoring

import (
	"context"
	"sync"

	"github.com/ocx/econcore/internal/events"
)

// ViewCounters counts unseen events per dashboard view. It subscribes to
// the bus; a view's counter resets when the view is opened.
type ViewCounters struct {
	targets map[events.Kind]string

	mu     sync.Mutex
	counts map[string]int
}

// NewViewCounters maps each kind to the view it belongs to. Kinds without a
// view are not counted.
func NewViewCounters(targets map[events.Kind]string) *ViewCounters {
	t := make(map[events.Kind]string, len(targets))
	for k, v := range targets {
		if v != "" {
			t[k] = v
		}
	}
	return &ViewCounters{targets: t, counts: make(map[string]int)}
}

// Handle is a bus Handler.
func (v *ViewCounters) Handle(_ context.Context, ev events.Event) error {
	view, ok := v.targets[ev.Kind]
	if !ok {
		return nil
	}
	v.mu.Lock()
	v.counts[view]++
	v.mu.Unlock()
	return nil
}

// Counts returns a copy of the per-view counters.
func (v *ViewCounters) Counts() map[string]int {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]int, len(v.counts))
	for k, n := range v.counts {
		out[k] = n
	}
	return out
}

// Reset zeroes one view and returns its previous count.
func (v *ViewCounters) Reset(view string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := v.counts[view]
	delete(v.counts, view)
	return n
}
