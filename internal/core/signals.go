package core

import "time"

// The types below are the payload entities carried by governance events
// that the decision core forwards but does not compute itself.

// BudgetCounter is a live spend counter against a limit.
type BudgetCounter struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CurrentSpent float64   `json:"current_spent"`
	Limit        float64   `json:"limit"`
	Percentage   float64   `json:"percentage"`
	LastUpdated  time.Time `json:"last_updated"`
}

// PolicyViolation records a guardrail that stopped or redirected an action.
type PolicyViolation struct {
	ID              string    `json:"id"`
	PolicyID        string    `json:"policy_id"`
	PolicyName      string    `json:"policy_name"`
	AgentID         string    `json:"agent_id"`
	WorkflowID      string    `json:"workflow_id"`
	AttemptedAction string    `json:"attempted_action"`
	Outcome         string    `json:"actual_outcome"` // blocked | throttled | redirected
	CostSaved       float64   `json:"cost_saved"`
	Reason          string    `json:"reason"`
	Timestamp       time.Time `json:"timestamp"`
}

// RoutingDecision records which model a task was routed to.
type RoutingDecision struct {
	ID             string        `json:"id"`
	Timestamp      time.Time     `json:"timestamp"`
	TaskType       string        `json:"task_type"`
	PolicyID       string        `json:"policy_id"`
	ChosenTarget   string        `json:"chosen_target"`
	FallbackTarget string        `json:"fallback_target"`
	Reasoning      string        `json:"reasoning"`
	Latency        time.Duration `json:"latency_ns"`
	Status         string        `json:"status"` // success | fallback_used
	Diagnostics    []string      `json:"diagnostics,omitempty"`
}

// Severity ranks a cost pressure signal.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// CostPressureSignal is raised when a cost rule crosses its threshold.
type CostPressureSignal struct {
	ID           string    `json:"id"`
	RuleID       string    `json:"rule_id"`
	RuleName     string    `json:"rule_name"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	AffectedMAS  string    `json:"affected_mas_id"`
	CurrentValue float64   `json:"current_value"`
	Timestamp    time.Time `json:"timestamp"`
}

// AgentAction is the EV/EC/Risk triple an agent submits for scoring.
type AgentAction struct {
	AgentID string  `json:"agent_id"`
	Type    string  `json:"type"`
	EV      float64 `json:"ev"`
	EC      float64 `json:"ec"`
	Risk    float64 `json:"risk"`
	Context string  `json:"context,omitempty"`
}

// DecisionScore is the scored outcome of an AgentAction.
type DecisionScore struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	Action    string    `json:"action_type"`
	Score     float64   `json:"score"`
	EV        float64   `json:"ev"`
	EC        float64   `json:"ec"`
	Risk      float64   `json:"risk"`
	ProfileID string    `json:"profile_id"`
	Context   string    `json:"context,omitempty"`
}

// WorkflowPath is one candidate execution path for a workflow.
type WorkflowPath struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Steps          []string `json:"steps"`
	ProjectedCost  float64  `json:"projected_cost"`
	ProjectedValue float64  `json:"projected_value"`
	NetROI         float64  `json:"net_roi"`
	Confidence     float64  `json:"confidence_score"`
	Chosen         bool     `json:"is_chosen"`
}

// WorkflowRoute records the path chosen for a workflow task.
type WorkflowRoute struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	TaskType          string    `json:"task_type"`
	ChosenPathID      string    `json:"chosen_path_id"`
	ProjectedMargin   float64   `json:"projected_margin"`
	SavingsVsStandard float64   `json:"savings_vs_standard"`
	Rationale         string    `json:"rationale"`
}

// ThrottlingStatus is the current velocity directive for a multi-agent system.
type ThrottlingStatus struct {
	MASID            string    `json:"mas_id"`
	MASName          string    `json:"mas_name"`
	CurrentVelocity  float64   `json:"current_velocity"`
	Status           string    `json:"status"` // normal | throttled | paused | adapting
	ActiveDirectives []string  `json:"active_directives"`
	LastUpdated      time.Time `json:"last_updated"`
}

// AgentProposal is a single move in a negotiation session.
type AgentProposal struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	AgentID       string    `json:"agent_id"`
	AgentName     string    `json:"agent_name"`
	Type          string    `json:"type"` // offer | counter | accept | reject
	BidValue      float64   `json:"bid_value"`
	OfferedCost   float64   `json:"offered_cost"`
	EconomicScore float64   `json:"economic_score"`
	Rationale     string    `json:"rationale"`
	Timestamp     time.Time `json:"timestamp"`
}

// AdaptivePolicy is a change proposed or applied by a learning optimizer.
type AdaptivePolicy struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	TargetFeature  string    `json:"target_feature"`
	Change         string    `json:"change_description"`
	Confidence     float64   `json:"confidence_score"`
	Status         string    `json:"status"` // proposed | live | rolled_back
	ImplementedAt  time.Time `json:"implemented_at"`
	ExpectedUplift float64   `json:"expected_uplift"`
}

// StrategyAdjustment is a margin strategy applied to a multi-agent system.
type StrategyAdjustment struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	StrategyName   string    `json:"strategy_name"`
	Rationale      string    `json:"rationale"`
	ExpectedUplift float64   `json:"expected_uplift"`
	Status         string    `json:"status"` // applied | testing | reverted
	AffectedMAS    string    `json:"affected_mas"`
}

// PricingRecommendation is a suggested price change for a service.
type PricingRecommendation struct {
	ID                   string    `json:"id"`
	Timestamp            time.Time `json:"timestamp"`
	ServiceName          string    `json:"service_name"`
	CurrentPrice         float64   `json:"current_price"`
	RecommendedPrice     float64   `json:"recommended_price"`
	Rationale            string    `json:"rationale"`
	ExpectedRevenueDelta float64   `json:"expected_revenue_delta"`
	Confidence           float64   `json:"confidence_score"`
	Status               string    `json:"status"`
}

// MarketTransaction is a completed marketplace purchase.
type MarketTransaction struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ServiceID    string    `json:"service_id"`
	ServiceName  string    `json:"service_name"`
	ConsumerName string    `json:"consumer_name"`
	Units        int       `json:"units"`
	TotalCost    float64   `json:"total_cost"`
	MarginEarned float64   `json:"margin_earned"`
	Status       string    `json:"status"`
}
