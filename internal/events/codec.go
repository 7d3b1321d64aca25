package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownKind is returned when a kind has no payload decoder.
var ErrUnknownKind = errors.New("unknown event kind")

// ErrNotIngestible marks kinds that only the core itself may emit.
var ErrNotIngestible = errors.New("event kind is produced internally")

// DecodePayload parses a JSON body into the payload for kind. Kinds whose
// payload is derived by the core (plans, enforcement decisions, feed purges)
// are rejected with ErrNotIngestible.
func DecodePayload(kind Kind, data []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch kind {
	case KindBudgetUpdate:
		var v BudgetUpdated
		err = json.Unmarshal(data, &v.Counter)
		p = v
	case KindGuardrailViolation:
		var v GuardrailViolated
		err = json.Unmarshal(data, &v.Violation)
		p = v
	case KindRoutingDecision:
		var v RoutingDecided
		err = json.Unmarshal(data, &v.Decision)
		p = v
	case KindCostPressureSignal:
		var v CostPressureRaised
		err = json.Unmarshal(data, &v.Signal)
		p = v
	case KindDecisionScore:
		var v DecisionScored
		err = json.Unmarshal(data, &v.Score)
		p = v
	case KindWorkflowRoute:
		var v WorkflowRouted
		err = json.Unmarshal(data, &v.Route)
		p = v
	case KindThrottlingDirective:
		var v ThrottlingDirected
		err = json.Unmarshal(data, &v.Status)
		p = v
	case KindNegotiationUpdate:
		var v NegotiationUpdated
		err = json.Unmarshal(data, &v.Proposal)
		p = v
	case KindOptimizationEvent:
		var v OptimizationApplied
		err = json.Unmarshal(data, &v.Policy)
		p = v
	case KindStrategyAdjustment:
		var v StrategyAdjusted
		err = json.Unmarshal(data, &v.Adjustment)
		p = v
	case KindPricingRecommendation:
		var v PricingRecommended
		err = json.Unmarshal(data, &v.Recommendation)
		p = v
	case KindMarketUpdate:
		var v MarketUpdated
		err = json.Unmarshal(data, &v.Transaction)
		p = v
	case KindEnforcementDecision, KindPlanUpdate, KindNotificationsCleared:
		return nil, fmt.Errorf("%s: %w", kind, ErrNotIngestible)
	default:
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}
