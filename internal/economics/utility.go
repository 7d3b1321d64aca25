// Package economics provides the utility scoring function shared by the
// enforcement pipeline, the plan composer and agent action scoring.
package economics

import (
	"math"

	"github.com/ocx/econcore/internal/core"
)

// ============================================================================
// SCALES
// ============================================================================

// Scales bring cost and risk onto a numeric range comparable to value.
// They are explicit multipliers; no unit conversion happens anywhere else.
type Scales struct {
	Cost float64
	Risk float64
}

const (
	// PlanCostScale turns a per-call dollar cost (e.g. 0.08) into value points.
	PlanCostScale = 100.0
	// PlanRiskScale turns an ordinal risk level (1-5) into value points.
	PlanRiskScale = 10.0
)

var (
	// PlanScales is used when scoring action candidates for plans.
	PlanScales = Scales{Cost: PlanCostScale, Risk: PlanRiskScale}
	// DecisionScales is used for agent EV/EC/Risk triples, which already
	// share a unit.
	DecisionScales = Scales{Cost: 1, Risk: 1}
)

const (
	MinScore = 0.0
	MaxScore = 100.0
)

// ============================================================================
// SCORING
// ============================================================================

// Raw computes value*wv - cost*costScale*wc - risk*riskScale*wr without
// clamping. Each non-finite term contributes zero.
func Raw(value, cost, risk float64, w core.UtilityWeights, s Scales) float64 {
	return finite(value*w.Value) - finite(cost*s.Cost*w.Cost) - finite(risk*s.Risk*w.Risk)
}

// Clamp bounds a score to [MinScore, MaxScore]. NaN maps to MinScore.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// Score evaluates a candidate under the weights and scales. It is pure:
// identical inputs always produce identical output.
func Score(c core.ActionCandidate, w core.UtilityWeights, s Scales) core.ScoredAction {
	return core.ScoredAction{
		ActionCandidate: c,
		Score:           Clamp(Raw(c.BaseValue, c.BaseCost, c.BaseRisk, w, s)),
		Rationale:       rationale(c, w),
	}
}

// Scorer binds a set of scales so callers do not repeat them.
type Scorer struct {
	Scales Scales
}

// NewPlanScorer returns a scorer using PlanScales.
func NewPlanScorer() Scorer { return Scorer{Scales: PlanScales} }

// NewDecisionScorer returns a scorer using DecisionScales.
func NewDecisionScorer() Scorer { return Scorer{Scales: DecisionScales} }

func (s Scorer) Score(c core.ActionCandidate, w core.UtilityWeights) core.ScoredAction {
	return Score(c, w, s.Scales)
}

// ScoreTriple scores a bare EV/EC/Risk triple.
func (s Scorer) ScoreTriple(ev, ec, risk float64, w core.UtilityWeights) float64 {
	return Clamp(Raw(ev, ec, risk, w, s.Scales))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// rationale names the weight that dominates the profile.
func rationale(c core.ActionCandidate, w core.UtilityWeights) string {
	switch {
	case w.Cost >= w.Value && w.Cost >= w.Risk:
		return "Cost-weighted selection: " + c.Name + " kept spend low for the objective."
	case w.Risk >= w.Value && w.Risk >= w.Cost:
		return "Risk-averse selection: " + c.Name + " limits exposure for the objective."
	default:
		return "Optimal value/cost ratio for current objective."
	}
}
