package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/econcore/internal/advisor"
	"github.com/ocx/econcore/internal/catalog"
	"github.com/ocx/econcore/internal/clock"
	"github.com/ocx/econcore/internal/core"
	"github.com/ocx/econcore/internal/datasource"
	"github.com/ocx/econcore/internal/events"
	"github.com/ocx/econcore/internal/monitoring"
	"github.com/ocx/econcore/internal/plan"
	"github.com/ocx/econcore/internal/store"
)

const scope = "org_enterprise_01"

func newSession(t *testing.T, deps Deps) *Session {
	t.Helper()
	if deps.Source == nil {
		src, err := datasource.LoadFixture("../../configs/fixture.yaml", scope)
		require.NoError(t, err)
		deps.Source = src
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	}
	s, err := New(Config{Scope: scope, DefaultProfileID: "esm_1", Seed: 42}, deps)
	require.NoError(t, err)
	require.NoError(t, s.Reload(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func TestSession_DecideFeedsAuditAndNotifications(t *testing.T) {
	s := newSession(t, Deps{Metrics: monitoring.NewMetrics(prometheus.NewRegistry())})
	ctx := context.Background()

	decision, entry, err := s.Decide(ctx, core.DomainThrottling, "budget_proximity", 96.4)
	require.NoError(t, err)
	assert.Equal(t, core.DecisionThrottle, decision)
	assert.Equal(t, "tp_2", entry.PolicyID)

	got, err := s.Audit().Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.Decision, got.Decision)

	history := s.Feed().History()
	require.Len(t, history, 1)
	assert.Equal(t, "Policy THROTTLE", history[0].Title)
	assert.Equal(t, 1, s.Counters().Counts()["governance"])
}

func TestSession_DecideRejectsUnknownDomain(t *testing.T) {
	s := newSession(t, Deps{})
	_, _, err := s.Decide(context.Background(), core.Domain("weather"), "x", 1)
	var invalid *ValidationError
	assert.ErrorAs(t, err, &invalid)
	assert.Zero(t, s.Audit().Len())
}

func TestSession_DecideRoute(t *testing.T) {
	s := newSession(t, Deps{})
	d := s.DecideRoute(context.Background(), "reasoning")
	assert.Equal(t, "gemini-3-pro", d.ChosenTarget)
	assert.Equal(t, "rp_1", d.PolicyID)
}

func TestSession_ScoreAgentAction(t *testing.T) {
	s := newSession(t, Deps{})
	var scored []events.Event
	s.Bus().Subscribe("spy", events.OnKinds(func(_ context.Context, ev events.Event) error {
		scored = append(scored, ev)
		return nil
	}, events.KindDecisionScore))

	score, err := s.ScoreAgentAction(context.Background(), core.AgentAction{AgentID: "agent_qa_01", Type: "Deep Reasoning", EV: 92, EC: 15, Risk: 5})
	require.NoError(t, err)
	assert.InDelta(t, 50.2, score.Score, 1e-9)
	assert.Equal(t, "esm_1", score.ProfileID)
	require.Len(t, scored, 1)
	assert.Equal(t, scope, scored[0].Scope)
}

func TestSession_RouteWorkflowPicksHighestROI(t *testing.T) {
	s := newSession(t, Deps{})
	route, ranked, err := s.RouteWorkflow(context.Background(), "support", 1.0)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "path_lite", route.ChosenPathID)
	assert.True(t, ranked[0].Chosen)
	assert.InDelta(t, 0.115, route.SavingsVsStandard, 1e-9)
	assert.InDelta(t, 99.2857, route.ProjectedMargin, 1e-3)

	_, _, err = s.RouteWorkflow(context.Background(), "support", -1)
	assert.Error(t, err)
}

func TestSession_ComposeAndRevisePlan(t *testing.T) {
	s := newSession(t, Deps{})
	ctx := context.Background()

	p, err := s.ComposePlan(ctx, "Audit the codebase", "euf_2", s.DefaultStepCount())
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, "euf_2", p.ProfileID())
	assert.Equal(t, scope, p.Scope())

	revised, err := s.RevisePlan(ctx, p.ID(), "", "euf_1")
	require.NoError(t, err)
	assert.Equal(t, p.ID(), revised.ID())
	assert.Equal(t, "euf_1", revised.ProfileID())
	current, _ := s.Plans().Get(p.ID())
	assert.Same(t, revised, current)

	_, err = s.RevisePlan(ctx, "missing", "", "")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestSession_ComposeFallsBackToFirstActiveProfile(t *testing.T) {
	s := newSession(t, Deps{})
	p, err := s.ComposePlan(context.Background(), "g", "euf_3", 2)
	require.NoError(t, err)
	assert.Equal(t, "euf_1", p.ProfileID())
}

func TestSession_ComposeRejectsZeroSteps(t *testing.T) {
	s := newSession(t, Deps{})
	_, err := s.ComposePlan(context.Background(), "g", "", 0)
	var invalid *plan.InvalidStepCountError
	assert.ErrorAs(t, err, &invalid)
}

func TestSession_EmptyActionsReportedBeforeMissingProfile(t *testing.T) {
	s := newSession(t, Deps{Source: datasource.NewFixtureSource(datasource.Snapshot{}, scope)})
	_, err := s.ComposePlan(context.Background(), "g", "", 1)
	var noActions *plan.NoActionsError
	assert.ErrorAs(t, err, &noActions)
}

func TestSession_NoProfiles(t *testing.T) {
	src := datasource.NewFixtureSource(datasource.Snapshot{
		Actions: []core.ActionCandidate{{ID: "act_1", Name: "Fast Inference", BaseCost: 0.005, BaseValue: 45, BaseRisk: 1}},
	}, scope)
	s := newSession(t, Deps{Source: src})
	_, err := s.ComposePlan(context.Background(), "g", "", 1)
	assert.ErrorIs(t, err, ErrNoProfile)
	_, err = s.ScoreAgentAction(context.Background(), core.AgentAction{})
	assert.ErrorIs(t, err, ErrNoProfile)
}

func TestSession_SavePolicyAppliesOptimistically(t *testing.T) {
	records := store.NewMemoryStore()
	s := newSession(t, Deps{Store: records})
	ctx := context.Background()

	saved, err := s.SavePolicy(ctx, core.Policy{
		Name: "Search cap", Domain: core.DomainGuardrail, MatchKey: "web_search",
		Threshold: 0.5, Action: core.DecisionWarn,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, core.StatusActive, saved.Status)
	assert.Equal(t, scope, saved.Scope)

	_, ok := records.Policy(saved.ID)
	assert.True(t, ok)

	decision, _, err := s.Decide(ctx, core.DomainGuardrail, "web_search", 0.7)
	require.NoError(t, err)
	assert.Equal(t, core.DecisionWarn, decision)

	_, err = s.SavePolicy(ctx, core.Policy{Name: "bad", Domain: "nope", Action: core.DecisionWarn})
	var invalid *catalog.InvalidPolicyError
	assert.ErrorAs(t, err, &invalid)
}

func TestSession_StatusAndRollback(t *testing.T) {
	s := newSession(t, Deps{})
	ctx := context.Background()

	_, err := s.SetPolicyStatus(ctx, "tp_2", core.StatusDisabled)
	require.NoError(t, err)
	decision, entry, _ := s.Decide(ctx, core.DomainThrottling, "budget_proximity", 99)
	assert.Equal(t, core.DecisionThrottle, decision)
	assert.Equal(t, "tp_1", entry.PolicyID)

	history := s.Policies().History("tp_2")
	require.Len(t, history, 2)
	restored, err := s.RollbackPolicy(ctx, "tp_2", history[0].Version)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, restored.Status)
}

func TestSession_SaveProfileRejectsNegativeWeights(t *testing.T) {
	s := newSession(t, Deps{})
	_, err := s.SaveProfile(context.Background(), core.UtilityProfile{Name: "x", Weights: core.UtilityWeights{Cost: -1}})
	var invalid *ValidationError
	assert.ErrorAs(t, err, &invalid)

	saved, err := s.SaveProfile(context.Background(), core.UtilityProfile{Name: "Lean", Weights: core.UtilityWeights{Cost: 1}})
	require.NoError(t, err)
	_, ok := s.Profiles().Lookup(saved.ID)
	assert.True(t, ok)
}

func TestSession_Ingest(t *testing.T) {
	s := newSession(t, Deps{})
	ev, err := s.Ingest(context.Background(), events.KindMarketUpdate, []byte(`{"service_name":"Vector Index","units":3}`))
	require.NoError(t, err)
	assert.Equal(t, events.KindMarketUpdate, ev.Kind)

	market := s.Feed().HistoryByKind(events.KindMarketUpdate)
	require.Len(t, market, 1)
	assert.Contains(t, market[0].Message, "Vector Index")

	_, err = s.Ingest(context.Background(), events.KindPlanUpdate, []byte(`{}`))
	assert.ErrorIs(t, err, events.ErrNotIngestible)
}

type cannedGenerator struct{ err error }

func (g cannedGenerator) Generate(context.Context, string) (string, error) {
	return "Margins hold. Costs are front-loaded.", g.err
}

func TestSession_AnalyzePlan(t *testing.T) {
	s := newSession(t, Deps{Advisor: advisor.New(cannedGenerator{})})
	p, err := s.ComposePlan(context.Background(), "g", "", 1)
	require.NoError(t, err)

	text, err := s.AnalyzePlan(context.Background(), p.ID())
	require.NoError(t, err)
	assert.Equal(t, "Margins hold. Costs are front-loaded.", text)

	disabled := newSession(t, Deps{})
	p, err = disabled.ComposePlan(context.Background(), "g", "", 1)
	require.NoError(t, err)
	_, err = disabled.AnalyzePlan(context.Background(), p.ID())
	assert.True(t, errors.Is(err, advisor.ErrDisabled))
}

type failingSource struct{ datasource.Source }

func (failingSource) FetchPolicies(context.Context, core.Domain) ([]core.Policy, error) {
	return nil, errors.New("db down")
}

func (failingSource) FetchProfiles(context.Context) ([]core.UtilityProfile, error) {
	return nil, nil
}

func (failingSource) FetchActions(context.Context) ([]core.ActionCandidate, error) {
	return nil, nil
}

func TestSession_ReloadReportsFailure(t *testing.T) {
	s, err := New(Config{Scope: scope}, Deps{Source: failingSource{}})
	require.NoError(t, err)
	assert.ErrorContains(t, s.Reload(context.Background()), "db down")
	assert.Zero(t, s.Policies().Len())
}

// degradingSource serves the fixture until broken is set, then returns a
// single budget policy and fails the action fetch.
type degradingSource struct {
	datasource.Source
	broken bool
}

func (d *degradingSource) FetchPolicies(ctx context.Context, domain core.Domain) ([]core.Policy, error) {
	if !d.broken {
		return d.Source.FetchPolicies(ctx, domain)
	}
	if domain != core.DomainBudget {
		return nil, nil
	}
	return []core.Policy{{
		ID: "bp_only", Domain: core.DomainBudget, MatchKey: "org",
		Threshold: 1, Action: core.DecisionBlock, Status: core.StatusActive, Scope: scope,
	}}, nil
}

func (d *degradingSource) FetchActions(ctx context.Context) ([]core.ActionCandidate, error) {
	if d.broken {
		return nil, errors.New("actions backend down")
	}
	return d.Source.FetchActions(ctx)
}

func TestSession_FailedReloadKeepsEveryCatalog(t *testing.T) {
	fixture, err := datasource.LoadFixture("../../configs/fixture.yaml", scope)
	require.NoError(t, err)
	src := &degradingSource{Source: fixture}
	s := newSession(t, Deps{Source: src})

	policies := s.Policies().All()
	profiles := s.Profiles().All()
	actions := s.Actions().All()
	require.NotEmpty(t, policies)

	src.broken = true
	assert.ErrorContains(t, s.Reload(context.Background()), "actions backend down")

	assert.Equal(t, policies, s.Policies().All())
	assert.Equal(t, profiles, s.Profiles().All())
	assert.Equal(t, actions, s.Actions().All())
	_, ok := s.Policies().Get("bp_only")
	assert.False(t, ok)
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}
