package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/ocx/econcore/internal/core"
)

const (
	upsertPolicy = `
		INSERT INTO policies (id, name, domain, match_key, threshold, action, status, org_id, preferred_target, fallback_target)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''))
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			domain = EXCLUDED.domain,
			match_key = EXCLUDED.match_key,
			threshold = EXCLUDED.threshold,
			action = EXCLUDED.action,
			status = EXCLUDED.status,
			preferred_target = EXCLUDED.preferred_target,
			fallback_target = EXCLUDED.fallback_target
	`
	upsertProfile = `
		INSERT INTO utility_profiles (id, name, value_weight, cost_weight, risk_weight, status, org_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			value_weight = EXCLUDED.value_weight,
			cost_weight = EXCLUDED.cost_weight,
			risk_weight = EXCLUDED.risk_weight,
			status = EXCLUDED.status
	`
)

// PostgresStore upserts into the same tables the Postgres data source reads.
type PostgresStore struct {
	db    *sql.DB
	scope string
}

func NewPostgresStore(db *sql.DB, scope string) *PostgresStore {
	return &PostgresStore{db: db, scope: scope}
}

func (s *PostgresStore) SavePolicy(ctx context.Context, p core.Policy) (core.Policy, error) {
	p = assignPolicyID(p)
	if p.Scope == "" {
		p.Scope = s.scope
	}
	_, err := s.db.ExecContext(ctx, upsertPolicy,
		p.ID, p.Name, string(p.Domain), p.MatchKey, p.Threshold, string(p.Action), string(p.Status), p.Scope,
		p.PreferredTarget, p.FallbackTarget)
	if err != nil {
		return core.Policy{}, fmt.Errorf("failed to persist policy: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, u core.UtilityProfile) (core.UtilityProfile, error) {
	u = assignProfileID(u)
	if u.Scope == "" {
		u.Scope = s.scope
	}
	_, err := s.db.ExecContext(ctx, upsertProfile,
		u.ID, u.Name, u.Weights.Value, u.Weights.Cost, u.Weights.Risk, string(u.Status), u.Scope)
	if err != nil {
		return core.UtilityProfile{}, fmt.Errorf("failed to persist profile: %w", err)
	}
	return u, nil
}
