package datasource

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/ocx/econcore/internal/core"
)

// Snapshot is the on-disk fixture layout.
type Snapshot struct {
	Policies []core.Policy          `yaml:"policies"`
	Profiles []core.UtilityProfile  `yaml:"profiles"`
	Actions  []core.ActionCandidate `yaml:"actions"`
}

// FixtureSource serves a YAML snapshot. Policies and profiles are filtered
// to the configured scope, so a scope only ever sees its own rows. Rows with
// an empty scope are shared.
type FixtureSource struct {
	snapshot Snapshot
	scope    string
}

// LoadFixture reads a snapshot file.
func LoadFixture(path, scope string) (*FixtureSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var snap Snapshot
	if err := yaml.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return NewFixtureSource(snap, scope), nil
}

func NewFixtureSource(snap Snapshot, scope string) *FixtureSource {
	return &FixtureSource{snapshot: snap, scope: scope}
}

func (s *FixtureSource) visible(scope string) bool {
	return scope == "" || scope == s.scope
}

func (s *FixtureSource) FetchPolicies(ctx context.Context, domain core.Domain) ([]core.Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []core.Policy
	for _, p := range s.snapshot.Policies {
		if p.Domain == domain && s.visible(p.Scope) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *FixtureSource) FetchProfiles(ctx context.Context) ([]core.UtilityProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []core.UtilityProfile
	for _, p := range s.snapshot.Profiles {
		if s.visible(p.Scope) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *FixtureSource) FetchActions(ctx context.Context) ([]core.ActionCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]core.ActionCandidate, len(s.snapshot.Actions))
	copy(out, s.snapshot.Actions)
	return out, nil
}
