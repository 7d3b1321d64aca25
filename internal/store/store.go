// Package store persists policies and utility profiles saved through the
// API. Saves are create-or-replace; a record without an id gets a UUID.
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ocx/econcore/internal/core"
)

// RecordStore is the persistence collaborator. The returned record is the
// stored one and callers apply it without waiting for durability.
type RecordStore interface {
	SavePolicy(ctx context.Context, p core.Policy) (core.Policy, error)
	SaveProfile(ctx context.Context, u core.UtilityProfile) (core.UtilityProfile, error)
}

func assignPolicyID(p core.Policy) core.Policy {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return p
}

func assignProfileID(u core.UtilityProfile) core.UtilityProfile {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return u
}

// MemoryStore keeps records for the life of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]core.Policy
	profiles map[string]core.UtilityProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies: make(map[string]core.Policy),
		profiles: make(map[string]core.UtilityProfile),
	}
}

func (s *MemoryStore) SavePolicy(ctx context.Context, p core.Policy) (core.Policy, error) {
	if err := ctx.Err(); err != nil {
		return core.Policy{}, err
	}
	p = assignPolicyID(p)
	s.mu.Lock()
	s.policies[p.ID] = p
	s.mu.Unlock()
	return p, nil
}

func (s *MemoryStore) SaveProfile(ctx context.Context, u core.UtilityProfile) (core.UtilityProfile, error) {
	if err := ctx.Err(); err != nil {
		return core.UtilityProfile{}, err
	}
	u = assignProfileID(u)
	s.mu.Lock()
	s.profiles[u.ID] = u
	s.mu.Unlock()
	return u, nil
}

func (s *MemoryStore) Policy(id string) (core.Policy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	return p, ok
}

func (s *MemoryStore) Profile(id string) (core.UtilityProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.profiles[id]
	return u, ok
}
