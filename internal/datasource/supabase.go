package datasource

import (
	"context"
	"fmt"
	"sort"

	supabase "github.com/supabase-community/supabase-go"

	"github.com/ocx/econcore/internal/core"
)

// SupabaseSource reads the catalog tables through PostgREST. Row-level
// security on the project applies; the org_id filter narrows the result to
// the configured scope as well.
type SupabaseSource struct {
	client *supabase.Client
	scope  string
}

// NewSupabaseSource connects with the service key.
func NewSupabaseSource(url, key, scope string) (*SupabaseSource, error) {
	if url == "" || key == "" {
		return nil, fmt.Errorf("supabase url and service key must be set")
	}
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &SupabaseSource{client: client, scope: scope}, nil
}

func (s *SupabaseSource) FetchPolicies(ctx context.Context, domain core.Domain) ([]core.Policy, error) {
	var rows []policyRow
	_, err := s.client.From(TablePolicies).
		Select("*", "", false).
		Eq("domain", string(domain)).
		Eq("org_id", s.scope).
		ExecuteTo(&rows)
	if err != nil {
		return nil, &QueryError{Backend: "supabase", Table: TablePolicies, Err: err}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })

	out := make([]core.Policy, len(rows))
	for i, r := range rows {
		out[i] = r.policy()
	}
	return out, nil
}

func (s *SupabaseSource) FetchProfiles(ctx context.Context) ([]core.UtilityProfile, error) {
	var rows []profileRow
	_, err := s.client.From(TableProfiles).
		Select("*", "", false).
		Eq("org_id", s.scope).
		ExecuteTo(&rows)
	if err != nil {
		return nil, &QueryError{Backend: "supabase", Table: TableProfiles, Err: err}
	}
	out := make([]core.UtilityProfile, len(rows))
	for i, r := range rows {
		out[i] = r.profile()
	}
	return out, nil
}

func (s *SupabaseSource) FetchActions(ctx context.Context) ([]core.ActionCandidate, error) {
	var actions []core.ActionCandidate
	_, err := s.client.From(TableActions).
		Select("*", "", false).
		ExecuteTo(&actions)
	if err != nil {
		return nil, &QueryError{Backend: "supabase", Table: TableActions, Err: err}
	}
	return actions, nil
}
