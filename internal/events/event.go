package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/econcore/internal/core"
)

// Kind discriminates governance event payloads.
type Kind string

const (
	KindEnforcementDecision   Kind = "ENFORCEMENT_DECISION"
	KindBudgetUpdate          Kind = "BUDGET_UPDATE"
	KindGuardrailViolation    Kind = "GUARDRAIL_VIOLATION"
	KindRoutingDecision       Kind = "ROUTING_DECISION"
	KindCostPressureSignal    Kind = "COST_PRESSURE_SIGNAL"
	KindDecisionScore         Kind = "DECISION_SCORE"
	KindPlanUpdate            Kind = "PLAN_UPDATE"
	KindWorkflowRoute         Kind = "WORKFLOW_ROUTE"
	KindThrottlingDirective   Kind = "THROTTLING_DIRECTIVE"
	KindNegotiationUpdate     Kind = "NEGOTIATION_UPDATE"
	KindOptimizationEvent     Kind = "OPTIMIZATION_EVENT"
	KindStrategyAdjustment    Kind = "STRATEGY_ADJUSTMENT"
	KindPricingRecommendation Kind = "PRICING_RECOMMENDATION"
	KindMarketUpdate          Kind = "MARKET_UPDATE"
	KindNotificationsCleared  Kind = "NOTIFICATIONS_CLEARED"
)

// Kinds returns every payload kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindEnforcementDecision,
		KindBudgetUpdate,
		KindGuardrailViolation,
		KindRoutingDecision,
		KindCostPressureSignal,
		KindDecisionScore,
		KindPlanUpdate,
		KindWorkflowRoute,
		KindThrottlingDirective,
		KindNegotiationUpdate,
		KindOptimizationEvent,
		KindStrategyAdjustment,
		KindPricingRecommendation,
		KindMarketUpdate,
		KindNotificationsCleared,
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Event is an immutable governance broadcast.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Scope     string    `json:"scope"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"-"`
}

// New wraps payload in an Event with a fresh identity.
func New(scope string, payload Payload) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      payload.Kind(),
		Scope:     scope,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// MarshalJSON emits the envelope with the payload body inline.
func (e Event) MarshalJSON() ([]byte, error) {
	type envelope struct {
		ID        string    `json:"id"`
		Kind      Kind      `json:"kind"`
		Scope     string    `json:"scope"`
		Timestamp time.Time `json:"timestamp"`
		Payload   any       `json:"payload"`
	}
	return json.Marshal(envelope{ID: e.ID, Kind: e.Kind, Scope: e.Scope, Timestamp: e.Timestamp, Payload: e.Body()})
}

// Body returns the value the payload carries, e.g. the core.AuditLogEntry of
// an ENFORCEMENT_DECISION. It is nil when the event has no payload.
func (e Event) Body() any {
	if e.Payload == nil {
		return nil
	}
	var b bodyOf
	e.Payload.Accept(&b)
	return b.v
}

// bodyOf extracts the value each payload carries.
type bodyOf struct{ v any }

func (b *bodyOf) VisitEnforcementDecided(p EnforcementDecided)     { b.v = p.Entry }
func (b *bodyOf) VisitBudgetUpdated(p BudgetUpdated)               { b.v = p.Counter }
func (b *bodyOf) VisitGuardrailViolated(p GuardrailViolated)       { b.v = p.Violation }
func (b *bodyOf) VisitRoutingDecided(p RoutingDecided)             { b.v = p.Decision }
func (b *bodyOf) VisitCostPressureRaised(p CostPressureRaised)     { b.v = p.Signal }
func (b *bodyOf) VisitDecisionScored(p DecisionScored)             { b.v = p.Score }
func (b *bodyOf) VisitPlanUpdated(p PlanUpdated)                   { b.v = p.Plan }
func (b *bodyOf) VisitWorkflowRouted(p WorkflowRouted)             { b.v = p.Route }
func (b *bodyOf) VisitThrottlingDirected(p ThrottlingDirected)     { b.v = p.Status }
func (b *bodyOf) VisitNegotiationUpdated(p NegotiationUpdated)     { b.v = p.Proposal }
func (b *bodyOf) VisitOptimizationApplied(p OptimizationApplied)   { b.v = p.Policy }
func (b *bodyOf) VisitStrategyAdjusted(p StrategyAdjusted)         { b.v = p.Adjustment }
func (b *bodyOf) VisitPricingRecommended(p PricingRecommended)     { b.v = p.Recommendation }
func (b *bodyOf) VisitMarketUpdated(p MarketUpdated)               { b.v = p.Transaction }
func (b *bodyOf) VisitNotificationsCleared(p NotificationsCleared) { b.v = p }


// ===== PAYLOADS =====

// Payload is the closed set of event bodies. Every implementation has a
// Visitor method, so consumers dispatching through Accept see them all.
type Payload interface {
	Kind() Kind
	Accept(v Visitor)
}

// Visitor has one method per payload kind. Adding a kind adds a method
// here, so every consumer stops compiling until it handles it.
type Visitor interface {
	VisitEnforcementDecided(EnforcementDecided)
	VisitBudgetUpdated(BudgetUpdated)
	VisitGuardrailViolated(GuardrailViolated)
	VisitRoutingDecided(RoutingDecided)
	VisitCostPressureRaised(CostPressureRaised)
	VisitDecisionScored(DecisionScored)
	VisitPlanUpdated(PlanUpdated)
	VisitWorkflowRouted(WorkflowRouted)
	VisitThrottlingDirected(ThrottlingDirected)
	VisitNegotiationUpdated(NegotiationUpdated)
	VisitOptimizationApplied(OptimizationApplied)
	VisitStrategyAdjusted(StrategyAdjusted)
	VisitPricingRecommended(PricingRecommended)
	VisitMarketUpdated(MarketUpdated)
	VisitNotificationsCleared(NotificationsCleared)
}

type EnforcementDecided struct{ Entry core.AuditLogEntry }

func (EnforcementDecided) Kind() Kind         { return KindEnforcementDecision }
func (p EnforcementDecided) Accept(v Visitor) { v.VisitEnforcementDecided(p) }

type BudgetUpdated struct{ Counter core.BudgetCounter }

func (BudgetUpdated) Kind() Kind         { return KindBudgetUpdate }
func (p BudgetUpdated) Accept(v Visitor) { v.VisitBudgetUpdated(p) }

type GuardrailViolated struct{ Violation core.PolicyViolation }

func (GuardrailViolated) Kind() Kind         { return KindGuardrailViolation }
func (p GuardrailViolated) Accept(v Visitor) { v.VisitGuardrailViolated(p) }

type RoutingDecided struct{ Decision core.RoutingDecision }

func (RoutingDecided) Kind() Kind         { return KindRoutingDecision }
func (p RoutingDecided) Accept(v Visitor) { v.VisitRoutingDecided(p) }

type CostPressureRaised struct{ Signal core.CostPressureSignal }

func (CostPressureRaised) Kind() Kind         { return KindCostPressureSignal }
func (p CostPressureRaised) Accept(v Visitor) { v.VisitCostPressureRaised(p) }

type DecisionScored struct{ Score core.DecisionScore }

func (DecisionScored) Kind() Kind         { return KindDecisionScore }
func (p DecisionScored) Accept(v Visitor) { v.VisitDecisionScored(p) }

// PlanUpdated carries the current plan reference. Plans are immutable so
// sharing the pointer is safe.
type PlanUpdated struct{ Plan *core.AgentPlan }

func (PlanUpdated) Kind() Kind         { return KindPlanUpdate }
func (p PlanUpdated) Accept(v Visitor) { v.VisitPlanUpdated(p) }

type WorkflowRouted struct{ Route core.WorkflowRoute }

func (WorkflowRouted) Kind() Kind         { return KindWorkflowRoute }
func (p WorkflowRouted) Accept(v Visitor) { v.VisitWorkflowRouted(p) }

type ThrottlingDirected struct{ Status core.ThrottlingStatus }

func (ThrottlingDirected) Kind() Kind         { return KindThrottlingDirective }
func (p ThrottlingDirected) Accept(v Visitor) { v.VisitThrottlingDirected(p) }

type NegotiationUpdated struct{ Proposal core.AgentProposal }

func (NegotiationUpdated) Kind() Kind         { return KindNegotiationUpdate }
func (p NegotiationUpdated) Accept(v Visitor) { v.VisitNegotiationUpdated(p) }

type OptimizationApplied struct{ Policy core.AdaptivePolicy }

func (OptimizationApplied) Kind() Kind         { return KindOptimizationEvent }
func (p OptimizationApplied) Accept(v Visitor) { v.VisitOptimizationApplied(p) }

type StrategyAdjusted struct{ Adjustment core.StrategyAdjustment }

func (StrategyAdjusted) Kind() Kind         { return KindStrategyAdjustment }
func (p StrategyAdjusted) Accept(v Visitor) { v.VisitStrategyAdjusted(p) }

type PricingRecommended struct{ Recommendation core.PricingRecommendation }

func (PricingRecommended) Kind() Kind         { return KindPricingRecommendation }
func (p PricingRecommended) Accept(v Visitor) { v.VisitPricingRecommended(p) }

type MarketUpdated struct{ Transaction core.MarketTransaction }

func (MarketUpdated) Kind() Kind         { return KindMarketUpdate }
func (p MarketUpdated) Accept(v Visitor) { v.VisitMarketUpdated(p) }

// NotificationsCleared is emitted once after the feed history is purged.
type NotificationsCleared struct {
	Cleared   int       `json:"cleared"`
	ClearedAt time.Time `json:"cleared_at"`
}

func (NotificationsCleared) Kind() Kind         { return KindNotificationsCleared }
func (p NotificationsCleared) Accept(v Visitor) { v.VisitNotificationsCleared(p) }
