package core

import (
	"encoding/json"
	"math"
	"time"
)

// Domain names a policy family. Every domain shares the same resolution
// and enforcement pipeline.
type Domain string

const (
	DomainRouting     Domain = "routing"
	DomainThrottling  Domain = "throttling"
	DomainGuardrail   Domain = "guardrail"
	DomainBudget      Domain = "budget"
	DomainROI         Domain = "roi"
	DomainPricing     Domain = "pricing"
	DomainNegotiation Domain = "negotiation"
)

// Domains lists every known policy domain in display order.
func Domains() []Domain {
	return []Domain{
		DomainRouting, DomainThrottling, DomainGuardrail, DomainBudget,
		DomainROI, DomainPricing, DomainNegotiation,
	}
}

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	for _, known := range Domains() {
		if d == known {
			return true
		}
	}
	return false
}

// PolicyStatus is the lifecycle state of a policy. Only active policies
// take part in resolution.
type PolicyStatus string

const (
	StatusActive   PolicyStatus = "active"
	StatusDraft    PolicyStatus = "draft"
	StatusDisabled PolicyStatus = "disabled"
)

// Valid reports whether s is a known status.
func (s PolicyStatus) Valid() bool {
	switch s {
	case StatusActive, StatusDraft, StatusDisabled:
		return true
	}
	return false
}

// EnforcementDecision is the categorical outcome of evaluating a metric.
type EnforcementDecision string

const (
	DecisionAllow    EnforcementDecision = "ALLOW"
	DecisionWarn     EnforcementDecision = "WARN"
	DecisionBlock    EnforcementDecision = "BLOCK"
	DecisionThrottle EnforcementDecision = "THROTTLE"
	DecisionRoute    EnforcementDecision = "ROUTE"
)

// Valid reports whether d is one of the five enforcement outcomes.
func (d EnforcementDecision) Valid() bool {
	switch d {
	case DecisionAllow, DecisionWarn, DecisionBlock, DecisionThrottle, DecisionRoute:
		return true
	}
	return false
}

// Policy maps a domain + match key + threshold to an enforcement action.
type Policy struct {
	ID        string              `json:"id" yaml:"id"`
	Name      string              `json:"name" yaml:"name"`
	Domain    Domain              `json:"domain" yaml:"domain"`
	MatchKey  string              `json:"match_key" yaml:"match_key"`
	Threshold float64             `json:"threshold" yaml:"threshold"`
	Action    EnforcementDecision `json:"action" yaml:"action"`
	Status    PolicyStatus        `json:"status" yaml:"status"`
	Scope     string              `json:"scope" yaml:"scope"`

	// Routing targets, only meaningful for the routing domain.
	PreferredTarget string `json:"preferred_target,omitempty" yaml:"preferred_target,omitempty"`
	FallbackTarget  string `json:"fallback_target,omitempty" yaml:"fallback_target,omitempty"`
}

// UtilityWeights are the three non-negative scoring weights. They are not
// required to sum to 1.
type UtilityWeights struct {
	Value float64 `json:"value_weight" yaml:"value_weight"`
	Cost  float64 `json:"cost_weight" yaml:"cost_weight"`
	Risk  float64 `json:"risk_weight" yaml:"risk_weight"`
}

// Valid reports whether every weight is finite and non-negative.
func (w UtilityWeights) Valid() bool {
	for _, v := range []float64{w.Value, w.Cost, w.Risk} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// UtilityProfile is a named, stored set of weights.
type UtilityProfile struct {
	ID      string         `json:"id" yaml:"id"`
	Name    string         `json:"name" yaml:"name"`
	Weights UtilityWeights `json:"weights" yaml:"weights"`
	Status  PolicyStatus   `json:"status" yaml:"status"`
	Scope   string         `json:"scope" yaml:"scope"`
}

// ActionCandidate is an action a planner may chain into a plan.
type ActionCandidate struct {
	ID        string  `json:"id" yaml:"id"`
	Name      string  `json:"name" yaml:"name"`
	BaseCost  float64 `json:"base_cost" yaml:"base_cost"`
	BaseValue float64 `json:"base_value" yaml:"base_value"`
	BaseRisk  float64 `json:"base_risk" yaml:"base_risk"`
	Category  string  `json:"category" yaml:"category"`
}

// ScoredAction is a candidate plus its clamped utility score.
type ScoredAction struct {
	ActionCandidate
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// Diagnostic flags recorded on audit entries.
const (
	DiagNoPolicy        = "NO_POLICY"
	DiagNonFiniteMetric = "NON_FINITE_METRIC"
)

// AuditLogEntry records one enforcement evaluation. Entries are values and
// are never modified after the pipeline builds them.
type AuditLogEntry struct {
	ID          string              `json:"id"`
	Timestamp   time.Time           `json:"timestamp"`
	PolicyID    string              `json:"policy_id"`
	PolicyName  string              `json:"policy_name"`
	Domain      Domain              `json:"domain"`
	MatchKey    string              `json:"match_key"`
	MetricValue float64             `json:"metric_value"`
	Threshold   float64             `json:"threshold"`
	Decision    EnforcementDecision `json:"decision"`
	Scope       string              `json:"scope"`
	Latency     time.Duration       `json:"latency_ns"`
	Diagnostics []string            `json:"diagnostics,omitempty"`
}

// HasDiagnostic reports whether flag was recorded on the entry.
func (e AuditLogEntry) HasDiagnostic(flag string) bool {
	for _, d := range e.Diagnostics {
		if d == flag {
			return true
		}
	}
	return false
}

// MarshalJSON encodes a non-finite metric as null, which encoding/json
// cannot represent otherwise.
func (e AuditLogEntry) MarshalJSON() ([]byte, error) {
	type plain AuditLogEntry
	out := struct {
		plain
		MetricValue *float64 `json:"metric_value"`
	}{plain: plain(e)}
	if !math.IsInf(e.MetricValue, 0) && !math.IsNaN(e.MetricValue) {
		v := e.MetricValue
		out.MetricValue = &v
	}
	return json.Marshal(out)
}
