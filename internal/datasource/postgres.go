package datasource

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/ocx/econcore/internal/core"
)

const (
	selectPolicies = `SELECT id, name, domain, match_key, threshold, action, status, org_id,
		COALESCE(preferred_target, ''), COALESCE(fallback_target, '')
		FROM policies WHERE domain = $1 AND org_id = $2 ORDER BY position, id`
	selectProfiles = `SELECT id, name, value_weight, cost_weight, risk_weight, status, org_id
		FROM utility_profiles WHERE org_id = $1 ORDER BY id`
	selectActions = `SELECT id, name, base_cost, base_value, base_risk, category
		FROM action_definitions ORDER BY id`
)

// PostgresSource reads the catalog tables directly.
type PostgresSource struct {
	db    *sql.DB
	scope string
}

func NewPostgresSource(db *sql.DB, scope string) *PostgresSource {
	return &PostgresSource{db: db, scope: scope}
}

// OpenPostgres opens a lib/pq pool and checks connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (s *PostgresSource) FetchPolicies(ctx context.Context, domain core.Domain) ([]core.Policy, error) {
	rows, err := s.db.QueryContext(ctx, selectPolicies, string(domain), s.scope)
	if err != nil {
		return nil, &QueryError{Backend: "postgres", Table: TablePolicies, Err: err}
	}
	defer rows.Close()

	var out []core.Policy
	for rows.Next() {
		var p core.Policy
		var d, action, status string
		if err := rows.Scan(&p.ID, &p.Name, &d, &p.MatchKey, &p.Threshold, &action, &status, &p.Scope,
			&p.PreferredTarget, &p.FallbackTarget); err != nil {
			return nil, &QueryError{Backend: "postgres", Table: TablePolicies, Err: err}
		}
		p.Domain, p.Action, p.Status = core.Domain(d), core.EnforcementDecision(action), core.PolicyStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Backend: "postgres", Table: TablePolicies, Err: err}
	}
	return out, nil
}

func (s *PostgresSource) FetchProfiles(ctx context.Context) ([]core.UtilityProfile, error) {
	rows, err := s.db.QueryContext(ctx, selectProfiles, s.scope)
	if err != nil {
		return nil, &QueryError{Backend: "postgres", Table: TableProfiles, Err: err}
	}
	defer rows.Close()

	var out []core.UtilityProfile
	for rows.Next() {
		var r profileRow
		if err := rows.Scan(&r.ID, &r.Name, &r.ValueWeight, &r.CostWeight, &r.RiskWeight, &r.Status, &r.OrgID); err != nil {
			return nil, &QueryError{Backend: "postgres", Table: TableProfiles, Err: err}
		}
		out = append(out, r.profile())
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Backend: "postgres", Table: TableProfiles, Err: err}
	}
	return out, nil
}

func (s *PostgresSource) FetchActions(ctx context.Context) ([]core.ActionCandidate, error) {
	rows, err := s.db.QueryContext(ctx, selectActions)
	if err != nil {
		return nil, &QueryError{Backend: "postgres", Table: TableActions, Err: err}
	}
	defer rows.Close()

	var out []core.ActionCandidate
	for rows.Next() {
		var a core.ActionCandidate
		if err := rows.Scan(&a.ID, &a.Name, &a.BaseCost, &a.BaseValue, &a.BaseRisk, &a.Category); err != nil {
			return nil, &QueryError{Backend: "postgres", Table: TableActions, Err: err}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Backend: "postgres", Table: TableActions, Err: err}
	}
	return out, nil
}
