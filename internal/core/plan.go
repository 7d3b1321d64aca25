package core

import (
	"encoding/json"
	"time"
)

// AgentPlan is an ordered, immutable sequence of scored steps. The fields
// are unexported so a plan handed to one holder can never change under
// another; revising a plan builds a new one.
type AgentPlan struct {
	id             string
	goal           string
	steps          []ScoredAction
	totalCost      float64
	totalValue     float64
	overallUtility int
	weights        UtilityWeights
	profileID      string
	scope          string
	createdAt      time.Time
}

// PlanSpec carries the fields used to build an AgentPlan.
type PlanSpec struct {
	ID             string
	Goal           string
	Steps          []ScoredAction
	TotalCost      float64
	TotalValue     float64
	OverallUtility int
	Weights        UtilityWeights
	ProfileID      string
	Scope          string
	CreatedAt      time.Time
}

// NewAgentPlan freezes spec into a plan. Steps are copied.
func NewAgentPlan(spec PlanSpec) *AgentPlan {
	steps := make([]ScoredAction, len(spec.Steps))
	copy(steps, spec.Steps)
	return &AgentPlan{
		id:             spec.ID,
		goal:           spec.Goal,
		steps:          steps,
		totalCost:      spec.TotalCost,
		totalValue:     spec.TotalValue,
		overallUtility: spec.OverallUtility,
		weights:        spec.Weights,
		profileID:      spec.ProfileID,
		scope:          spec.Scope,
		createdAt:      spec.CreatedAt,
	}
}

func (p *AgentPlan) ID() string              { return p.id }
func (p *AgentPlan) Goal() string            { return p.goal }
func (p *AgentPlan) TotalCost() float64      { return p.totalCost }
func (p *AgentPlan) TotalValue() float64     { return p.totalValue }
func (p *AgentPlan) OverallUtility() int     { return p.overallUtility }
func (p *AgentPlan) Weights() UtilityWeights { return p.weights }
func (p *AgentPlan) ProfileID() string       { return p.profileID }
func (p *AgentPlan) Scope() string           { return p.scope }
func (p *AgentPlan) CreatedAt() time.Time    { return p.createdAt }
func (p *AgentPlan) Len() int                { return len(p.steps) }

// Steps returns a copy of the steps in execution order.
func (p *AgentPlan) Steps() []ScoredAction {
	out := make([]ScoredAction, len(p.steps))
	copy(out, p.steps)
	return out
}

// Candidates returns the unscored candidates behind each step, in order.
func (p *AgentPlan) Candidates() []ActionCandidate {
	out := make([]ActionCandidate, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.ActionCandidate
	}
	return out
}

func (p *AgentPlan) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID             string         `json:"id"`
		Goal           string         `json:"goal"`
		Steps          []ScoredAction `json:"steps"`
		TotalCost      float64        `json:"total_cost"`
		TotalValue     float64        `json:"total_value"`
		OverallUtility int            `json:"overall_utility"`
		Weights        UtilityWeights `json:"weights"`
		ProfileID      string         `json:"profile_id,omitempty"`
		Scope          string         `json:"scope"`
		CreatedAt      time.Time      `json:"created_at"`
	}{
		ID:             p.id,
		Goal:           p.goal,
		Steps:          p.steps,
		TotalCost:      p.totalCost,
		TotalValue:     p.totalValue,
		OverallUtility: p.overallUtility,
		Weights:        p.weights,
		ProfileID:      p.profileID,
		Scope:          p.scope,
		CreatedAt:      p.createdAt,
	})
}
