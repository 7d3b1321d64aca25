package plan

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ocx/econcore/internal/clock"
	"github.com/ocx/econcore/internal/core"
	"github.com/ocx/econcore/internal/events"
)

func fiveActions() []core.ActionCandidate {
	return []core.ActionCandidate{
		{ID: "act_1", Name: "Deep Reasoning (Pro)", BaseCost: 0.08, BaseValue: 85, BaseRisk: 2, Category: "Compute"},
		{ID: "act_2", Name: "Fast Inference (Flash)", BaseCost: 0.005, BaseValue: 45, BaseRisk: 1, Category: "Compute"},
		{ID: "act_3", Name: "Web Search Tool", BaseCost: 0.02, BaseValue: 40, BaseRisk: 3, Category: "Tool"},
		{ID: "act_4", Name: "Vector Retrieval", BaseCost: 0.01, BaseValue: 60, BaseRisk: 1, Category: "Storage"},
		{ID: "act_5", Name: "Human Review", BaseCost: 1.5, BaseValue: 95, BaseRisk: 1, Category: "Human"},
	}
}

func newComposer(t *testing.T, seed int64) (*Composer, *[]events.Event) {
	t.Helper()
	bus := events.NewBus()
	var got []events.Event
	bus.Subscribe("capture", func(_ context.Context, ev events.Event) error {
		got = append(got, ev)
		return nil
	})
	return NewComposer(rand.NewSource(seed), bus, WithClock(clock.NewFake(time.Unix(0, 0)))), &got
}

func TestCompose_TotalsMatchSteps(t *testing.T) {
	c, got := newComposer(t, 42)
	weights := core.UtilityWeights{Value: 0.8, Cost: 0.1, Risk: 0.1}

	plan, err := c.Compose(context.Background(), Request{Goal: "Summarize filings", Weights: weights, Actions: fiveActions(), StepCount: 3})
	require.NoError(t, err)
	require.Equal(t, 3, plan.Len())

	var cost, value, score float64
	for _, s := range plan.Steps() {
		cost += s.BaseCost
		value += s.BaseValue
		score += s.Score
		assert.GreaterOrEqual(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 100.0)
	}
	assert.InDelta(t, cost, plan.TotalCost(), 1e-9)
	assert.InDelta(t, value, plan.TotalValue(), 1e-9)
	assert.Equal(t, int(math.Floor(score/3)), plan.OverallUtility())
	assert.Equal(t, weights, plan.Weights())

	require.Len(t, *got, 1)
	assert.Equal(t, events.KindPlanUpdate, (*got)[0].Kind)
	assert.Same(t, plan, (*got)[0].Payload.(events.PlanUpdated).Plan)
}

func TestCompose_SameSeedSamePlan(t *testing.T) {
	a, _ := newComposer(t, 7)
	b, _ := newComposer(t, 7)
	req := Request{Goal: "g", Weights: core.UtilityWeights{Value: 1}, Actions: fiveActions(), StepCount: 4}

	p1, err := a.Compose(context.Background(), req)
	require.NoError(t, err)
	p2, err := b.Compose(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, p1.Candidates(), p2.Candidates())
}

func TestCompose_EmptyCatalog(t *testing.T) {
	c, got := newComposer(t, 1)
	plan, err := c.Compose(context.Background(), Request{Goal: "g", StepCount: 3})

	assert.Nil(t, plan)
	assert.ErrorIs(t, err, ErrNoActions)
	var noActions *NoActionsError
	assert.ErrorAs(t, err, &noActions)
	assert.Empty(t, *got)
}

func TestCompose_InvalidStepCount(t *testing.T) {
	c, _ := newComposer(t, 1)
	for _, n := range []int{0, -2} {
		_, err := c.Compose(context.Background(), Request{Actions: fiveActions(), StepCount: n})
		var invalid *InvalidStepCountError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, n, invalid.StepCount)
	}
}

func TestCompose_SingleActionRepeats(t *testing.T) {
	c, _ := newComposer(t, 3)
	only := fiveActions()[:1]
	plan, err := c.Compose(context.Background(), Request{Weights: core.UtilityWeights{Value: 1}, Actions: only, StepCount: 3})
	require.NoError(t, err)
	for _, s := range plan.Steps() {
		assert.Equal(t, "act_1", s.ID)
	}
}

func TestRevise_LeavesPreviousPlanUntouched(t *testing.T) {
	c, got := newComposer(t, 11)
	store := NewStore()

	original, err := c.Compose(context.Background(), Request{
		Goal: "Draft report", Weights: core.UtilityWeights{Value: 0.8, Cost: 0.1, Risk: 0.1},
		Actions: fiveActions(), StepCount: 3,
	})
	require.NoError(t, err)
	store.Put(original)
	held := original
	beforeSteps := held.Steps()
	beforeUtility := held.OverallUtility()

	revised, err := c.Revise(context.Background(), original, "", core.UtilityWeights{Value: 0.2, Cost: 0.7, Risk: 0.1}, "efficiency")
	require.NoError(t, err)
	prev := store.Put(revised)

	assert.Same(t, original, prev)
	assert.NotSame(t, original, revised)
	assert.Equal(t, original.ID(), revised.ID())
	assert.Equal(t, "Draft report", revised.Goal())
	assert.Equal(t, original.Candidates(), revised.Candidates())
	assert.Equal(t, "efficiency", revised.ProfileID())

	assert.Equal(t, beforeSteps, held.Steps())
	assert.Equal(t, beforeUtility, held.OverallUtility())

	current, ok := store.Get(original.ID())
	require.True(t, ok)
	assert.Same(t, revised, current)
	assert.Len(t, *got, 2)
}

func TestAgentPlan_StepsAreCopies(t *testing.T) {
	c, _ := newComposer(t, 5)
	plan, err := c.Compose(context.Background(), Request{Weights: core.UtilityWeights{Value: 1}, Actions: fiveActions(), StepCount: 2})
	require.NoError(t, err)

	steps := plan.Steps()
	steps[0].Score = -1
	steps[0].Name = "tampered"

	assert.NotEqual(t, "tampered", plan.Steps()[0].Name)
	assert.GreaterOrEqual(t, plan.Steps()[0].Score, 0.0)
}

func TestStore_LatestAndList(t *testing.T) {
	c, _ := newComposer(t, 9)
	store := NewStore()
	_, ok := store.Latest()
	assert.False(t, ok)

	req := Request{Weights: core.UtilityWeights{Value: 1}, Actions: fiveActions(), StepCount: 1}
	a, _ := c.Compose(context.Background(), req)
	b, _ := c.Compose(context.Background(), req)
	store.Put(a)
	store.Put(b)

	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Same(t, b, latest)

	store.Put(a)
	list := store.List()
	require.Len(t, list, 2)
	assert.Same(t, a, list[0])
	assert.Same(t, b, list[1])
}

func TestCompose_RecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	c := NewComposer(rand.NewSource(1), events.NewBus(), WithTracerProvider(tp))

	plan, err := c.Compose(context.Background(), Request{Goal: "g", Actions: fiveActions(), StepCount: 2})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "Composer.Compose", spans[0].Name())
	var planID string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "plan_id" {
			planID = kv.Value.AsString()
		}
	}
	assert.Equal(t, plan.ID(), planID)
}
