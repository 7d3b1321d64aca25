package events

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/econcore/internal/core"
)

// kindCollector records which visit method was dispatched.
type kindCollector struct{ seen []Kind }

func (c *kindCollector) VisitEnforcementDecided(p EnforcementDecided) { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitBudgetUpdated(p BudgetUpdated)           { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitGuardrailViolated(p GuardrailViolated)   { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitRoutingDecided(p RoutingDecided)         { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitCostPressureRaised(p CostPressureRaised) { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitDecisionScored(p DecisionScored)         { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitPlanUpdated(p PlanUpdated)               { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitWorkflowRouted(p WorkflowRouted)         { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitThrottlingDirected(p ThrottlingDirected) { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitNegotiationUpdated(p NegotiationUpdated) { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitOptimizationApplied(p OptimizationApplied) {
	c.seen = append(c.seen, p.Kind())
}
func (c *kindCollector) VisitStrategyAdjusted(p StrategyAdjusted)     { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitPricingRecommended(p PricingRecommended) { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitMarketUpdated(p MarketUpdated)           { c.seen = append(c.seen, p.Kind()) }
func (c *kindCollector) VisitNotificationsCleared(p NotificationsCleared) {
	c.seen = append(c.seen, p.Kind())
}

func allPayloads() []Payload {
	return []Payload{
		EnforcementDecided{},
		BudgetUpdated{},
		GuardrailViolated{},
		RoutingDecided{},
		CostPressureRaised{},
		DecisionScored{},
		PlanUpdated{},
		WorkflowRouted{},
		ThrottlingDirected{},
		NegotiationUpdated{},
		OptimizationApplied{},
		StrategyAdjusted{},
		PricingRecommended{},
		MarketUpdated{},
		NotificationsCleared{},
	}
}

func TestPayloads_CoverEveryKindAndDispatch(t *testing.T) {
	c := &kindCollector{}
	for _, p := range allPayloads() {
		p.Accept(c)
	}
	assert.Equal(t, Kinds(), c.seen)
}

func TestKind_Valid(t *testing.T) {
	assert.True(t, KindMarketUpdate.Valid())
	assert.False(t, Kind("SOMETHING_ELSE").Valid())
}

func TestEvent_MarshalInlinesPayload(t *testing.T) {
	ev := New("tenant-a", EnforcementDecided{Entry: core.AuditLogEntry{
		ID:          "log_1",
		MetricValue: math.Inf(1),
		Decision:    core.DecisionThrottle,
	}})

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ENFORCEMENT_DECISION", decoded["kind"])
	assert.Equal(t, "tenant-a", decoded["scope"])
	payload := decoded["payload"].(map[string]any)
	assert.Equal(t, "log_1", payload["id"])
	assert.Nil(t, payload["metric_value"])
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload(KindPricingRecommendation, []byte(`{"service_name":"Inference API","current_price":0.02,"recommended_price":0.025}`))
	require.NoError(t, err)
	rec, ok := p.(PricingRecommended)
	require.True(t, ok)
	assert.Equal(t, "Inference API", rec.Recommendation.ServiceName)
	assert.Equal(t, 0.025, rec.Recommendation.RecommendedPrice)

	_, err = DecodePayload(KindPlanUpdate, []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotIngestible)

	_, err = DecodePayload(Kind("NOPE"), []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = DecodePayload(KindMarketUpdate, []byte(`{not json`))
	assert.Error(t, err)
}

func TestDecodePayload_EveryKindHandled(t *testing.T) {
	for _, k := range Kinds() {
		p, err := DecodePayload(k, []byte(`{}`))
		if errors.Is(err, ErrNotIngestible) {
			continue
		}
		require.NoError(t, err, k)
		assert.Equal(t, k, p.Kind())
	}
}

// ============================================================================
// FORWARDERS
// ============================================================================

type fakeChannel struct {
	channel string
	message []byte
	err     error
}

func (f *fakeChannel) Publish(_ context.Context, channel string, message []byte) error {
	f.channel, f.message = channel, message
	return f.err
}

func TestRedisForwarder_PublishesPerKindChannel(t *testing.T) {
	ch := &fakeChannel{}
	fwd := NewRedisForwarder(ch, "")
	ev := budgetEvent("monthly")

	require.NoError(t, fwd.Handle(context.Background(), ev))
	assert.Equal(t, "econ:events:BUDGET_UPDATE", ch.channel)
	assert.Contains(t, string(ch.message), `"monthly"`)

	ch.err = errors.New("down")
	assert.Error(t, fwd.Handle(context.Background(), ev))
}

type fakeTopic struct {
	attrs       map[string]string
	orderingKey string
	closed      bool
}

func (f *fakeTopic) Publish(_ context.Context, _ []byte, attrs map[string]string, orderingKey string) error {
	f.attrs, f.orderingKey = attrs, orderingKey
	return nil
}

func (f *fakeTopic) Close() error { f.closed = true; return nil }

func TestPubSubForwarder_SetsAttributesAndOrderingKey(t *testing.T) {
	topic := &fakeTopic{}
	fwd := NewPubSubForwarder(topic)
	bus := NewBus()
	bus.Subscribe("pubsub", fwd.Handle)

	ev := budgetEvent("monthly")
	require.NoError(t, bus.Publish(context.Background(), ev))

	assert.Equal(t, "BUDGET_UPDATE", topic.attrs["kind"])
	assert.Equal(t, ev.ID, topic.attrs["event_id"])
	assert.Equal(t, "tenant-a", topic.orderingKey)
	assert.Empty(t, bus.Faults())

	require.NoError(t, fwd.Close())
	assert.True(t, topic.closed)
}
