package catalog

import (
	"fmt"
	"sync"
	"time"

	"github.com/ocx/econcore/internal/core"
)

// PolicyVersion is one recorded revision of a policy.
type PolicyVersion struct {
	Version   int         `json:"version"`
	Policy    core.Policy `json:"policy"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// PolicyVersionStore keeps the revision history per policy id. Consecutive
// identical revisions are collapsed.
type PolicyVersionStore struct {
	mu       sync.RWMutex
	versions map[string][]PolicyVersion
}

func NewPolicyVersionStore() *PolicyVersionStore {
	return &PolicyVersionStore{versions: make(map[string][]PolicyVersion)}
}

// Push records p as the latest revision and returns it.
func (s *PolicyVersionStore) Push(p core.Policy, reason string) PolicyVersion {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.versions[p.ID]
	if n := len(history); n > 0 && history[n-1].Policy == p {
		return history[n-1]
	}
	v := PolicyVersion{
		Version:   len(history) + 1,
		Policy:    p,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	s.versions[p.ID] = append(history, v)
	return v
}

// Get returns a specific revision.
func (s *PolicyVersionStore) Get(id string, version int) (PolicyVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.versions[id]
	if !ok || len(history) == 0 {
		return PolicyVersion{}, fmt.Errorf("no versions for policy %s: %w", id, ErrNotFound)
	}
	if version < 1 || version > len(history) {
		return PolicyVersion{}, fmt.Errorf("invalid version %d for policy %s (range: 1-%d)", version, id, len(history))
	}
	return history[version-1], nil
}

// GetHistory returns all revisions of a policy.
func (s *PolicyVersionStore) GetHistory(id string) []PolicyVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PolicyVersion, len(s.versions[id]))
	copy(out, s.versions[id])
	return out
}
