package notify

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/ocx/econcore/internal/events"
)

// Template describes how one event kind becomes a notification. Level,
// Title and Message are text/template sources executed against the event
// payload body (e.g. core.PolicyViolation for GUARDRAIL_VIOLATION).
type Template struct {
	Level   string `json:"level" yaml:"level"`
	Title   string `json:"title" yaml:"title"`
	Message string `json:"message" yaml:"message"`
	Target  string `json:"target" yaml:"target"`
}

// Templates maps every event kind to its template.
type Templates map[events.Kind]Template

// UnmappedKindError lists event kinds without a template.
type UnmappedKindError struct {
	Kinds []events.Kind
}

func (e *UnmappedKindError) Error() string {
	names := make([]string, len(e.Kinds))
	for i, k := range e.Kinds {
		names[i] = string(k)
	}
	return "no notification template for " + strings.Join(names, ", ")
}

// TemplateError reports a template that failed to parse.
type TemplateError struct {
	Kind  events.Kind
	Field string
	Err   error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("notification template %s.%s: %v", e.Kind, e.Field, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// DefaultTemplates returns the built-in mapping for every kind.
func DefaultTemplates() Templates {
	return Templates{
		events.KindEnforcementDecision: {
			Level:   `{{if eq (print .Decision) "ALLOW"}}info{{else if eq (print .Decision) "WARN"}}warning{{else}}error{{end}}`,
			Title:   `Policy {{.Decision}}`,
			Message: `{{if .PolicyName}}{{.PolicyName}}{{else}}No policy{{end}} evaluated {{.MatchKey}} in {{.Domain}}.`,
			Target:  "governance",
		},
		events.KindBudgetUpdate: {
			Level:   `{{if ge .Percentage 90.0}}warning{{else}}info{{end}}`,
			Title:   "Budget Update",
			Message: `{{.Name}} at {{printf "%.1f" .Percentage}}% of limit.`,
			Target:  "budget",
		},
		events.KindGuardrailViolation: {
			Level:   "error",
			Title:   "Policy Violation",
			Message: `{{.PolicyName}} triggered by {{.AgentID}}. Leakage prevented.`,
			Target:  "guardrails",
		},
		events.KindRoutingDecision: {
			Level:   `{{if eq .Status "failed"}}warning{{else}}info{{end}}`,
			Title:   "Model Routed",
			Message: `{{.TaskType}} routed to {{if .ChosenTarget}}{{.ChosenTarget}}{{else}}no target{{end}}.`,
			Target:  "routing",
		},
		events.KindCostPressureSignal: {
			Level:   "warning",
			Title:   "Pressure Spike",
			Message: `{{.Message}}`,
			Target:  "signals",
		},
		events.KindDecisionScore: {
			Level:   "info",
			Title:   "Action Scored",
			Message: `{{.Action}} by {{.AgentID}} scored {{printf "%.1f" .Score}}.`,
			Target:  "decisions",
		},
		events.KindPlanUpdate: {
			Level:   "success",
			Title:   "Strategy Manifested",
			Message: `Plan for "{{.Goal}}" has {{.Len}} steps at utility {{.OverallUtility}}.`,
			Target:  "planning",
		},
		events.KindWorkflowRoute: {
			Level:   "info",
			Title:   "Workflow Routed",
			Message: `{{.TaskType}} took {{.ChosenPathID}}.`,
			Target:  "workflow",
		},
		events.KindThrottlingDirective: {
			Level:   `{{if eq .Status "normal"}}info{{else}}warning{{end}}`,
			Title:   "Velocity Directive",
			Message: `{{.MASName}} is {{.Status}}.`,
			Target:  "throttling",
		},
		events.KindNegotiationUpdate: {
			Level:   "info",
			Title:   "Negotiation Move",
			Message: `{{.AgentName}} sent {{.Type}} at {{printf "%.2f" .BidValue}}.`,
			Target:  "negotiation",
		},
		events.KindOptimizationEvent: {
			Level:   "success",
			Title:   "Optimizer Update",
			Message: `{{.Name}}: {{.Change}}`,
			Target:  "optimizer",
		},
		events.KindStrategyAdjustment: {
			Level:   "success",
			Title:   "Strategy Applied",
			Message: `Yield tuning: {{.StrategyName}} applied to {{.AffectedMAS}}.`,
			Target:  "margin",
		},
		events.KindPricingRecommendation: {
			Level:   "info",
			Title:   "Pricing Recommendation",
			Message: `{{.ServiceName}}: {{printf "%.4f" .CurrentPrice}} to {{printf "%.4f" .RecommendedPrice}}.`,
			Target:  "pricing",
		},
		events.KindMarketUpdate: {
			Level:   "info",
			Title:   "Market Activity",
			Message: `New protocol transaction for {{.ServiceName}} completed.`,
			Target:  "marketplace",
		},
		events.KindNotificationsCleared: {
			Level:   "info",
			Title:   "Feed Purged",
			Message: "Audit trail cleared for current session.",
		},
	}
}

// Merge returns t with the non-empty fields of overrides applied per kind.
func (t Templates) Merge(overrides Templates) Templates {
	out := make(Templates, len(t))
	for k, v := range t {
		out[k] = v
	}
	for k, o := range overrides {
		base := out[k]
		if o.Level != "" {
			base.Level = o.Level
		}
		if o.Title != "" {
			base.Title = o.Title
		}
		if o.Message != "" {
			base.Message = o.Message
		}
		if o.Target != "" {
			base.Target = o.Target
		}
		out[k] = base
	}
	return out
}

// Targets returns the view each kind links to.
func (t Templates) Targets() map[events.Kind]string {
	out := make(map[events.Kind]string, len(t))
	for k, v := range t {
		out[k] = v.Target
	}
	return out
}

type compiled struct {
	level   *template.Template
	title   *template.Template
	message *template.Template
	target  string
}

func compile(t Templates) (map[events.Kind]compiled, error) {
	var missing []events.Kind
	for _, k := range events.Kinds() {
		if _, ok := t[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, &UnmappedKindError{Kinds: missing}
	}

	out := make(map[events.Kind]compiled, len(t))
	kinds := make([]events.Kind, 0, len(t))
	for k := range t {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, k := range kinds {
		src := t[k]
		var c compiled
		var err error
		if c.level, err = parse(k, "level", src.Level); err != nil {
			return nil, err
		}
		if c.title, err = parse(k, "title", src.Title); err != nil {
			return nil, err
		}
		if c.message, err = parse(k, "message", src.Message); err != nil {
			return nil, err
		}
		c.target = src.Target
		out[k] = c
	}
	return out, nil
}

func parse(kind events.Kind, field, src string) (*template.Template, error) {
	tpl, err := template.New(string(kind) + "." + field).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, &TemplateError{Kind: kind, Field: field, Err: err}
	}
	return tpl, nil
}

func execute(tpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
