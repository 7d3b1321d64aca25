package economics

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ocx/econcore/internal/core"
)

// Property: score == clamp(v*wv - c*100*wc - r*10*wr, 0, 100) for all inputs.
func TestScoreMatchesFormula(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("score equals the clamped weighted formula", prop.ForAll(
		func(value, cost, risk, wv, wc, wr float64) bool {
			w := core.UtilityWeights{Value: wv, Cost: wc, Risk: wr}
			got := Score(core.ActionCandidate{BaseValue: value, BaseCost: cost, BaseRisk: risk}, w, PlanScales).Score
			want := math.Max(0, math.Min(100, value*wv-cost*PlanCostScale*wc-risk*PlanRiskScale*wr))
			return math.Abs(got-want) < 1e-9
		},
		gen.Float64Range(0, 500),
		gen.Float64Range(0, 5),
		gen.Float64Range(0, 5),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.Property("score is always within [0,100]", prop.ForAll(
		func(value, cost, risk float64) bool {
			s := Score(core.ActionCandidate{BaseValue: value, BaseCost: cost, BaseRisk: risk},
				core.UtilityWeights{Value: 1, Cost: 1, Risk: 1}, PlanScales).Score
			return s >= MinScore && s <= MaxScore
		},
		gen.Float64(),
		gen.Float64(),
		gen.Float64(),
	))

	properties.TestingRun(t)
}
