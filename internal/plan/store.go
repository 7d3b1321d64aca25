package plan

import (
	"sync"

	"github.com/ocx/econcore/internal/core"
)

// Store holds the current plan reference per plan id. Putting a revision
// swaps the reference; holders of the previous pointer keep seeing the old
// plan unchanged.
type Store struct {
	mu    sync.RWMutex
	plans map[string]*core.AgentPlan
	order []string // most recently put first
}

func NewStore() *Store {
	return &Store{plans: make(map[string]*core.AgentPlan)}
}

// Put installs plan as the current revision and returns the one it replaced.
func (s *Store) Put(plan *core.AgentPlan) (previous *core.AgentPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous = s.plans[plan.ID()]
	s.plans[plan.ID()] = plan
	for i, id := range s.order {
		if id == plan.ID() {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append([]string{plan.ID()}, s.order...)
	return previous
}

func (s *Store) Get(id string) (*core.AgentPlan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	return p, ok
}

// Latest returns the most recently put plan.
func (s *Store) Latest() (*core.AgentPlan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return nil, false
	}
	return s.plans[s.order[0]], true
}

// List returns current plans, most recently put first.
func (s *Store) List() []*core.AgentPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.AgentPlan, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.plans[id])
	}
	return out
}
