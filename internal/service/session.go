// Package service assembles the decision core for one scope: catalogs,
// event bus, notification feed, audit trail, planner and routers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"

	"github.com/ocx/econcore/internal/advisor"
	"github.com/ocx/econcore/internal/audit"
	"github.com/ocx/econcore/internal/catalog"
	"github.com/ocx/econcore/internal/clock"
	"github.com/ocx/econcore/internal/core"
	"github.com/ocx/econcore/internal/datasource"
	"github.com/ocx/econcore/internal/economics"
	"github.com/ocx/econcore/internal/events"
	"github.com/ocx/econcore/internal/governance"
	"github.com/ocx/econcore/internal/monitoring"
	"github.com/ocx/econcore/internal/notify"
	"github.com/ocx/econcore/internal/plan"
	"github.com/ocx/econcore/internal/store"
)

var (
	// ErrNoProfile is returned when no active utility profile exists.
	ErrNoProfile = errors.New("no active utility profile")
	// ErrPlanNotFound is returned for an unknown plan id.
	ErrPlanNotFound = errors.New("plan not found")
)

// ValidationError rejects a request before anything is evaluated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Config sizes the session.
type Config struct {
	Scope            string
	DefaultStepCount int
	DefaultProfileID string
	// Seed fixes the plan sampler; 0 seeds from the clock.
	Seed          int64
	Feed          notify.Config
	Templates     notify.Templates
	AuditCapacity int
	FaultCapacity int
	DrainLimit    int
}

// Deps are the collaborators a session is built from. Only Source is
// required.
type Deps struct {
	Source  datasource.Source
	Store   store.RecordStore
	Metrics *monitoring.Metrics
	Clock   clock.Clock
	Advisor *advisor.Advisor
}

// Session owns every stateful component of the core. Nothing in it is
// package-global; two sessions never share state.
type Session struct {
	cfg     Config
	source  datasource.Source
	records store.RecordStore
	advisor *advisor.Advisor
	clock   clock.Clock
	scorer  economics.Scorer

	policies *catalog.PolicyCatalog
	profiles *catalog.ProfileCatalog
	actions  *catalog.ActionCatalog

	bus      *events.Bus
	feed     *notify.Sink
	audit    *audit.Recorder
	counters *monitoring.ViewCounters
	plans    *plan.Store

	pipeline *governance.Pipeline
	router   *governance.Router
	composer *plan.Composer
}

// New wires a session and subscribes the feed, audit recorder and view
// counters to its bus. Catalogs start empty until Reload.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("session: data source is required")
	}
	if cfg.DefaultStepCount < 1 {
		cfg.DefaultStepCount = 3
	}
	if cfg.Templates == nil {
		cfg.Templates = notify.DefaultTemplates()
	}
	if cfg.Feed.Scope == "" {
		cfg.Feed.Scope = cfg.Scope
	}
	c := deps.Clock
	if c == nil {
		c = clock.Real{}
	}
	records := deps.Store
	if records == nil {
		records = store.NewMemoryStore()
	}

	var busOpts []events.Option
	pipeOpts := []governance.Option{governance.WithClock(c), governance.WithScope(cfg.Scope)}
	planOpts := []plan.Option{plan.WithClock(c)}
	feedOpts := []notify.Option{notify.WithClock(c)}
	if deps.Metrics != nil {
		busOpts = append(busOpts, events.WithObserver(deps.Metrics))
		pipeOpts = append(pipeOpts, governance.WithObserver(deps.Metrics))
		planOpts = append(planOpts, plan.WithObserver(deps.Metrics))
		feedOpts = append(feedOpts, notify.WithObserver(deps.Metrics))
	}
	if cfg.FaultCapacity > 0 {
		busOpts = append(busOpts, events.WithFaultCapacity(cfg.FaultCapacity))
	}
	if cfg.DrainLimit > 0 {
		busOpts = append(busOpts, events.WithDrainLimit(cfg.DrainLimit))
	}
	bus := events.NewBus(busOpts...)

	feed, err := notify.NewSink(cfg.Templates, bus, cfg.Feed, feedOpts...)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	policies, err := catalog.NewPolicyCatalog()
	if err != nil {
		return nil, err
	}
	profiles, err := catalog.NewProfileCatalog()
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = c.Now().UnixNano()
	}
	resolver := governance.NewResolver(policies)

	s := &Session{
		cfg:      cfg,
		source:   deps.Source,
		records:  records,
		advisor:  deps.Advisor,
		clock:    c,
		scorer:   economics.NewDecisionScorer(),
		policies: policies,
		profiles: profiles,
		actions:  catalog.NewActionCatalog(),
		bus:      bus,
		feed:     feed,
		audit:    audit.NewRecorder(cfg.AuditCapacity),
		counters: monitoring.NewViewCounters(cfg.Templates.Targets()),
		plans:    plan.NewStore(),
		pipeline: governance.NewPipeline(resolver, bus, pipeOpts...),
		router:   governance.NewRouter(resolver, bus, c),
		composer: plan.NewComposer(rand.NewSource(seed), bus, planOpts...),
	}

	bus.Subscribe("notify", feed.Handle)
	bus.Subscribe("audit", events.OnKinds(s.audit.Handle, events.KindEnforcementDecision))
	bus.Subscribe("view-counters", s.counters.Handle)
	return s, nil
}

// Reload fetches every catalog from the data source and swaps them only
// when all fetches succeed. On failure nothing changes and the joined
// per-catalog errors are returned.
func (s *Session) Reload(ctx context.Context) error {
	policies, perr := catalog.FetchPolicies(ctx, s.source)
	profiles, uerr := catalog.FetchProfiles(ctx, s.source)
	actions, aerr := catalog.FetchActions(ctx, s.source)
	if err := errors.Join(perr, uerr, aerr); err != nil {
		slog.Warn("[Session] reload failed, keeping previous catalogs", "scope", s.cfg.Scope, "error", err)
		return err
	}

	if err := s.policies.Replace(policies); err != nil {
		return err
	}
	if err := s.profiles.Replace(profiles); err != nil {
		return err
	}
	s.actions.Replace(actions)
	slog.Info("[Session] catalogs loaded",
		"scope", s.cfg.Scope,
		"policies", s.policies.Len(),
		"profiles", len(s.profiles.All()),
		"actions", len(s.actions.All()),
	)
	return nil
}

func (s *Session) DefaultStepCount() int              { return s.cfg.DefaultStepCount }
func (s *Session) Scope() string                      { return s.cfg.Scope }
func (s *Session) Bus() *events.Bus                   { return s.bus }
func (s *Session) Feed() *notify.Sink                 { return s.feed }
func (s *Session) Audit() *audit.Recorder             { return s.audit }
func (s *Session) Counters() *monitoring.ViewCounters { return s.counters }
func (s *Session) Plans() *plan.Store                 { return s.plans }
func (s *Session) Policies() *catalog.PolicyCatalog   { return s.policies }
func (s *Session) Profiles() *catalog.ProfileCatalog  { return s.profiles }
func (s *Session) Actions() *catalog.ActionCatalog    { return s.actions }

// Close stops accepting events.
func (s *Session) Close() { s.bus.Close() }

// Decide runs the enforcement pipeline.
func (s *Session) Decide(ctx context.Context, domain core.Domain, matchKey string, metric float64) (core.EnforcementDecision, core.AuditLogEntry, error) {
	if !domain.Valid() {
		return "", core.AuditLogEntry{}, &ValidationError{Field: "domain", Reason: fmt.Sprintf("unknown domain %q", domain)}
	}
	decision, entry := s.pipeline.Decide(ctx, domain, matchKey, metric)
	return decision, entry, nil
}

// DecideRoute picks a model target for taskType.
func (s *Session) DecideRoute(ctx context.Context, taskType string) core.RoutingDecision {
	return s.router.DecideRoute(ctx, taskType)
}

// ScoreAgentAction scores an EV/EC/Risk triple under the scoring profile
// and publishes DECISION_SCORE.
func (s *Session) ScoreAgentAction(ctx context.Context, action core.AgentAction) (core.DecisionScore, error) {
	profile, ok := s.profiles.Lookup(s.cfg.DefaultProfileID)
	if !ok {
		return core.DecisionScore{}, ErrNoProfile
	}
	score := core.DecisionScore{
		ID:        uuid.New().String(),
		Timestamp: s.clock.Now().UTC(),
		AgentID:   action.AgentID,
		Action:    action.Type,
		Score:     s.scorer.ScoreTriple(action.EV, action.EC, action.Risk, profile.Weights),
		EV:        action.EV,
		EC:        action.EC,
		Risk:      action.Risk,
		ProfileID: profile.ID,
		Context:   action.Context,
	}
	if err := s.bus.Emit(ctx, s.cfg.Scope, events.DecisionScored{Score: score}); err != nil {
		return score, err
	}
	return score, nil
}

// RouteWorkflow ranks the reference paths for a task by net ROI, picks the
// best and publishes WORKFLOW_ROUTE.
func (s *Session) RouteWorkflow(ctx context.Context, taskType string, potentialValue float64) (core.WorkflowRoute, []core.WorkflowPath, error) {
	if potentialValue < 0 {
		return core.WorkflowRoute{}, nil, &ValidationError{Field: "potential_value", Reason: "must be non-negative"}
	}
	standard := economics.StandardPaths(potentialValue)
	ranked := economics.RankPaths(standard)
	chosen := ranked[0]

	route := core.WorkflowRoute{
		ID:                uuid.New().String(),
		Timestamp:         s.clock.Now().UTC(),
		TaskType:          taskType,
		ChosenPathID:      chosen.ID,
		SavingsVsStandard: standard[0].ProjectedCost - chosen.ProjectedCost,
		Rationale:         fmt.Sprintf("%s ranked first at %.0f%% net ROI.", chosen.Name, chosen.NetROI),
	}
	if chosen.ProjectedValue > 0 {
		route.ProjectedMargin = (chosen.ProjectedValue - chosen.ProjectedCost) / chosen.ProjectedValue * 100
	}
	if err := s.bus.Emit(ctx, s.cfg.Scope, events.WorkflowRouted{Route: route}); err != nil {
		return route, ranked, err
	}
	return route, ranked, nil
}

// ComposePlan draws stepCount actions from the action catalog and scores
// them with the named profile or the first active one. stepCount must be at
// least 1; callers without one pass DefaultStepCount. An empty action
// catalog is reported before a missing profile.
func (s *Session) ComposePlan(ctx context.Context, goal, profileID string, stepCount int) (*core.AgentPlan, error) {
	actions := s.actions.All()
	if len(actions) == 0 {
		return nil, &plan.NoActionsError{Goal: goal}
	}
	profile, ok := s.profiles.Lookup(profileID)
	if !ok {
		return nil, ErrNoProfile
	}
	p, err := s.composer.Compose(ctx, plan.Request{
		Goal:      goal,
		Weights:   profile.Weights,
		Actions:   actions,
		StepCount: stepCount,
		ProfileID: profile.ID,
		Scope:     s.cfg.Scope,
	})
	if err != nil {
		return nil, err
	}
	s.plans.Put(p)
	return p, nil
}

// RevisePlan rescores an existing plan under another profile and swaps it
// into the plan store.
func (s *Session) RevisePlan(ctx context.Context, planID, goal, profileID string) (*core.AgentPlan, error) {
	prev, ok := s.plans.Get(planID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", planID, ErrPlanNotFound)
	}
	profile, ok := s.profiles.Lookup(profileID)
	if !ok {
		return nil, ErrNoProfile
	}
	next, err := s.composer.Revise(ctx, prev, goal, profile.Weights, profile.ID)
	if err != nil {
		return nil, err
	}
	s.plans.Put(next)
	return next, nil
}

// AnalyzePlan asks the advisor about a stored plan.
func (s *Session) AnalyzePlan(ctx context.Context, planID string) (string, error) {
	p, ok := s.plans.Get(planID)
	if !ok {
		return "", fmt.Errorf("%s: %w", planID, ErrPlanNotFound)
	}
	return s.advisor.AnalyzePlan(ctx, p)
}

// SavePolicy validates p, persists it and applies the stored record to the
// catalog without waiting for the store to confirm durability elsewhere.
func (s *Session) SavePolicy(ctx context.Context, p core.Policy) (core.Policy, error) {
	if p.Scope == "" {
		p.Scope = s.cfg.Scope
	}
	if p.Status == "" {
		p.Status = core.StatusActive
	}
	candidate := p
	if candidate.ID == "" {
		candidate.ID = "pending"
	}
	if err := catalog.Validate(candidate); err != nil {
		return core.Policy{}, err
	}
	saved, err := s.records.SavePolicy(ctx, p)
	if err != nil {
		return core.Policy{}, fmt.Errorf("save policy: %w", err)
	}
	if err := s.policies.Upsert(saved); err != nil {
		return core.Policy{}, err
	}
	slog.Info("[Session] policy saved", "policy_id", saved.ID, "domain", saved.Domain)
	return saved, nil
}

// SetPolicyStatus changes a policy's lifecycle state and persists it.
func (s *Session) SetPolicyStatus(ctx context.Context, id string, status core.PolicyStatus) (core.Policy, error) {
	updated, err := s.policies.SetStatus(id, status)
	if err != nil {
		return core.Policy{}, err
	}
	if _, err := s.records.SavePolicy(ctx, updated); err != nil {
		slog.Warn("[Session] status change not persisted", "policy_id", id, "error", err)
	}
	return updated, nil
}

// RollbackPolicy restores a recorded revision of a policy.
func (s *Session) RollbackPolicy(ctx context.Context, id string, version int) (core.Policy, error) {
	restored, err := s.policies.Rollback(id, version)
	if err != nil {
		return core.Policy{}, err
	}
	if _, err := s.records.SavePolicy(ctx, restored); err != nil {
		slog.Warn("[Session] rollback not persisted", "policy_id", id, "error", err)
	}
	return restored, nil
}

// SaveProfile persists a utility profile and applies it to the catalog.
func (s *Session) SaveProfile(ctx context.Context, u core.UtilityProfile) (core.UtilityProfile, error) {
	if u.Scope == "" {
		u.Scope = s.cfg.Scope
	}
	if u.Status == "" {
		u.Status = core.StatusActive
	}
	if !u.Weights.Valid() {
		return core.UtilityProfile{}, &ValidationError{Field: "weights", Reason: "must be finite and non-negative"}
	}
	saved, err := s.records.SaveProfile(ctx, u)
	if err != nil {
		return core.UtilityProfile{}, fmt.Errorf("save profile: %w", err)
	}
	if err := s.profiles.Upsert(saved); err != nil {
		return core.UtilityProfile{}, err
	}
	return saved, nil
}

// Ingest decodes an externally produced payload of kind and publishes it.
func (s *Session) Ingest(ctx context.Context, kind events.Kind, data []byte) (events.Event, error) {
	payload, err := events.DecodePayload(kind, data)
	if err != nil {
		return events.Event{}, err
	}
	ev := events.New(s.cfg.Scope, payload)
	if err := s.bus.Publish(ctx, ev); err != nil {
		return events.Event{}, err
	}
	return ev, nil
}
