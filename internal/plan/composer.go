// Package plan composes immutable multi-step agent plans from scored actions.
package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ocx/econcore/internal/clock"
	"github.com/ocx/econcore/internal/core"
	"github.com/ocx/econcore/internal/economics"
	"github.com/ocx/econcore/internal/events"
)

const tracerName = "econcore/plan"

// ErrNoActions is matched by NoActionsError via errors.Is.
var ErrNoActions = errors.New("no actions available")

// NoActionsError is returned when the action catalog is empty.
type NoActionsError struct {
	Goal string
}

func (e *NoActionsError) Error() string {
	return fmt.Sprintf("cannot compose plan %q: %v", e.Goal, ErrNoActions)
}

func (e *NoActionsError) Is(target error) bool { return target == ErrNoActions }

// InvalidStepCountError is returned for a step count below one.
type InvalidStepCountError struct {
	StepCount int
}

func (e *InvalidStepCountError) Error() string {
	return fmt.Sprintf("step count must be at least 1, got %d", e.StepCount)
}

// Publisher is the bus surface the composer emits on.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// PlanObserver counts composed plans.
type PlanObserver interface {
	PlanComposed(revised bool)
}

// Composer builds plans by sampling the action catalog and scoring each
// step with plan scales. Each step is drawn independently, so a candidate
// may appear more than once in a plan.
type Composer struct {
	scorer   economics.Scorer
	bus      Publisher
	clock    clock.Clock
	observer PlanObserver
	tracer   trace.Tracer

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Composer.
type Option func(*Composer)

func WithClock(c clock.Clock) Option { return func(p *Composer) { p.clock = c } }

func WithObserver(o PlanObserver) Option { return func(p *Composer) { p.observer = o } }

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Composer) { p.tracer = tp.Tracer(tracerName) }
}

// NewComposer returns a composer drawing from src. Pass a seeded source for
// reproducible plans.
func NewComposer(src rand.Source, bus Publisher, opts ...Option) *Composer {
	c := &Composer{
		scorer: economics.NewPlanScorer(),
		bus:    bus,
		clock:  clock.Real{},
		tracer: otel.Tracer(tracerName),
		rng:    rand.New(src),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes a plan to compose.
type Request struct {
	Goal      string
	Weights   core.UtilityWeights
	Actions   []core.ActionCandidate
	StepCount int
	ProfileID string
	Scope     string
}

// Compose draws req.StepCount actions, scores them and publishes the plan
// as PLAN_UPDATE.
func (c *Composer) Compose(ctx context.Context, req Request) (*core.AgentPlan, error) {
	ctx, span := c.tracer.Start(ctx, "Composer.Compose")
	defer span.End()
	span.SetAttributes(attribute.Int("step_count", req.StepCount), attribute.Int("actions", len(req.Actions)))

	if len(req.Actions) == 0 {
		return nil, &NoActionsError{Goal: req.Goal}
	}
	if req.StepCount < 1 {
		return nil, &InvalidStepCountError{StepCount: req.StepCount}
	}

	picked := make([]core.ActionCandidate, req.StepCount)
	c.mu.Lock()
	for i := range picked {
		picked[i] = req.Actions[c.rng.Intn(len(req.Actions))]
	}
	c.mu.Unlock()

	plan := c.assemble(uuid.New().String(), req, picked)
	span.SetAttributes(attribute.String("plan_id", plan.ID()))
	c.publish(ctx, plan, false)
	return plan, nil
}

// Revise rescores the steps of prev under new weights and returns a new
// plan with the same id. prev is left untouched.
func (c *Composer) Revise(ctx context.Context, prev *core.AgentPlan, goal string, weights core.UtilityWeights, profileID string) (*core.AgentPlan, error) {
	ctx, span := c.tracer.Start(ctx, "Composer.Revise")
	defer span.End()

	if prev == nil || prev.Len() == 0 {
		return nil, &NoActionsError{Goal: goal}
	}
	if goal == "" {
		goal = prev.Goal()
	}
	req := Request{
		Goal:      goal,
		Weights:   weights,
		StepCount: prev.Len(),
		ProfileID: profileID,
		Scope:     prev.Scope(),
	}
	plan := c.assemble(prev.ID(), req, prev.Candidates())
	c.publish(ctx, plan, true)
	return plan, nil
}

func (c *Composer) assemble(id string, req Request, picked []core.ActionCandidate) *core.AgentPlan {
	steps := make([]core.ScoredAction, len(picked))
	var totalCost, totalValue, totalScore float64
	for i, a := range picked {
		steps[i] = c.scorer.Score(a, req.Weights)
		totalCost += a.BaseCost
		totalValue += a.BaseValue
		totalScore += steps[i].Score
	}
	return core.NewAgentPlan(core.PlanSpec{
		ID:             id,
		Goal:           req.Goal,
		Steps:          steps,
		TotalCost:      totalCost,
		TotalValue:     totalValue,
		OverallUtility: int(math.Floor(totalScore / float64(len(steps)))),
		Weights:        req.Weights,
		ProfileID:      req.ProfileID,
		Scope:          req.Scope,
		CreatedAt:      c.clock.Now().UTC(),
	})
}

func (c *Composer) publish(ctx context.Context, plan *core.AgentPlan, revised bool) {
	if c.observer != nil {
		c.observer.PlanComposed(revised)
	}
	slog.Info("[Planner] plan composed",
		"plan_id", plan.ID(),
		"steps", plan.Len(),
		"overall_utility", plan.OverallUtility(),
		"revised", revised,
	)
	if err := c.bus.Publish(ctx, events.New(plan.Scope(), events.PlanUpdated{Plan: plan})); err != nil {
		slog.Warn("[Planner] plan event not published", "plan_id", plan.ID(), "error", err)
	}
}
