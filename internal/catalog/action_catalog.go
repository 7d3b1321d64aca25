package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/ocx/econcore/internal/core"
)

// ActionSource returns the action definitions planners may chain.
type ActionSource interface {
	FetchActions(ctx context.Context) ([]core.ActionCandidate, error)
}

// ActionCatalog is the set of candidate actions offered to the plan composer.
type ActionCatalog struct {
	mu      sync.RWMutex
	actions []core.ActionCandidate
}

func NewActionCatalog(actions ...core.ActionCandidate) *ActionCatalog {
	c := &ActionCatalog{}
	c.Replace(actions)
	return c
}

func FetchActions(ctx context.Context, src ActionSource) ([]core.ActionCandidate, error) {
	actions, err := src.FetchActions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch actions: %w", err)
	}
	return actions, nil
}

// Load swaps in the actions from src, keeping the old set on failure.
func (c *ActionCatalog) Load(ctx context.Context, src ActionSource) error {
	actions, err := FetchActions(ctx, src)
	if err != nil {
		return err
	}
	c.Replace(actions)
	return nil
}

func (c *ActionCatalog) Replace(actions []core.ActionCandidate) {
	next := make([]core.ActionCandidate, len(actions))
	copy(next, actions)
	c.mu.Lock()
	c.actions = next
	c.mu.Unlock()
}

// All returns a copy of the catalog in load order.
func (c *ActionCatalog) All() []core.ActionCandidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.ActionCandidate, len(c.actions))
	copy(out, c.actions)
	return out
}

// Category filters the catalog by category.
func (c *ActionCatalog) Category(category string) []core.ActionCandidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []core.ActionCandidate
	for _, a := range c.actions {
		if a.Category == category {
			out = append(out, a)
		}
	}
	return out
}
