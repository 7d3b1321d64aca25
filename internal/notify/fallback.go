package notify

import (
	"github.com/ocx/econcore/internal/core"
	"github.com/ocx/econcore/internal/events"
)

// fallback picks the level and title used when a template cannot render.
// It implements events.Visitor, so a new payload kind must be given one
// here before the package builds.
type fallback struct {
	level Level
	title string
}

var _ events.Visitor = (*fallback)(nil)

func fallbackFor(p events.Payload) (Level, string) {
	f := fallback{level: LevelInfo, title: "Update"}
	if p != nil {
		p.Accept(&f)
	}
	return f.level, f.title
}

func (f *fallback) VisitEnforcementDecided(p events.EnforcementDecided) {
	f.title = "Policy Decision"
	switch p.Entry.Decision {
	case core.DecisionAllow, "":
		f.level = LevelInfo
	case core.DecisionWarn:
		f.level = LevelWarning
	default:
		f.level = LevelError
	}
}

func (f *fallback) VisitBudgetUpdated(p events.BudgetUpdated) {
	f.title = "Budget Update"
	if p.Counter.Percentage >= 90 {
		f.level = LevelWarning
	}
}

func (f *fallback) VisitGuardrailViolated(events.GuardrailViolated) {
	f.level, f.title = LevelError, "Policy Violation"
}

func (f *fallback) VisitRoutingDecided(events.RoutingDecided) { f.title = "Model Routed" }

func (f *fallback) VisitCostPressureRaised(events.CostPressureRaised) {
	f.level, f.title = LevelWarning, "Pressure Spike"
}

func (f *fallback) VisitDecisionScored(events.DecisionScored)             { f.title = "Action Scored" }
func (f *fallback) VisitPlanUpdated(events.PlanUpdated)                   { f.title = "Plan Updated" }
func (f *fallback) VisitWorkflowRouted(events.WorkflowRouted)             { f.title = "Workflow Routed" }
func (f *fallback) VisitThrottlingDirected(events.ThrottlingDirected)     { f.title = "Velocity Directive" }
func (f *fallback) VisitNegotiationUpdated(events.NegotiationUpdated)     { f.title = "Negotiation Move" }
func (f *fallback) VisitOptimizationApplied(events.OptimizationApplied)   { f.title = "Optimizer Update" }
func (f *fallback) VisitStrategyAdjusted(events.StrategyAdjusted)         { f.title = "Strategy Applied" }
func (f *fallback) VisitPricingRecommended(events.PricingRecommended)     { f.title = "Pricing Recommendation" }
func (f *fallback) VisitMarketUpdated(events.MarketUpdated)               { f.title = "Market Activity" }
func (f *fallback) VisitNotificationsCleared(events.NotificationsCleared) { f.title = "Feed Purged" }
