// Package datasource supplies the catalogs with policies, utility profiles
// and action definitions from a YAML fixture, Supabase or Postgres.
package datasource

import (
	"context"
	"fmt"

	"github.com/ocx/econcore/internal/core"
)

// Source is everything the catalogs load from.
type Source interface {
	FetchPolicies(ctx context.Context, domain core.Domain) ([]core.Policy, error)
	FetchProfiles(ctx context.Context) ([]core.UtilityProfile, error)
	FetchActions(ctx context.Context) ([]core.ActionCandidate, error)
}

// Tables shared by the Supabase and Postgres sources.
const (
	TablePolicies = "policies"
	TableProfiles = "utility_profiles"
	TableActions  = "action_definitions"
)

// policyRow is a policies table row. org_id carries the scope and position
// the catalog order.
type policyRow struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Domain          string  `json:"domain"`
	MatchKey        string  `json:"match_key"`
	Threshold       float64 `json:"threshold"`
	Action          string  `json:"action"`
	Status          string  `json:"status"`
	OrgID           string  `json:"org_id"`
	Position        int     `json:"position"`
	PreferredTarget *string `json:"preferred_target"`
	FallbackTarget  *string `json:"fallback_target"`
}

func (r policyRow) policy() core.Policy {
	return core.Policy{
		ID:              r.ID,
		Name:            r.Name,
		Domain:          core.Domain(r.Domain),
		MatchKey:        r.MatchKey,
		Threshold:       r.Threshold,
		Action:          core.EnforcementDecision(r.Action),
		Status:          core.PolicyStatus(r.Status),
		Scope:           r.OrgID,
		PreferredTarget: deref(r.PreferredTarget),
		FallbackTarget:  deref(r.FallbackTarget),
	}
}

type profileRow struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ValueWeight float64 `json:"value_weight"`
	CostWeight  float64 `json:"cost_weight"`
	RiskWeight  float64 `json:"risk_weight"`
	Status      string  `json:"status"`
	OrgID       string  `json:"org_id"`
}

func (r profileRow) profile() core.UtilityProfile {
	return core.UtilityProfile{
		ID:      r.ID,
		Name:    r.Name,
		Weights: core.UtilityWeights{Value: r.ValueWeight, Cost: r.CostWeight, Risk: r.RiskWeight},
		Status:  core.PolicyStatus(r.Status),
		Scope:   r.OrgID,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// QueryError wraps a failed read from a backing store.
type QueryError struct {
	Backend string
	Table   string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: query %s: %v", e.Backend, e.Table, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
