package governance

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ocx/econcore/internal/clock"
	"github.com/ocx/econcore/internal/core"
	"github.com/ocx/econcore/internal/events"
)

const tracerName = "econcore/governance"

// Publisher is the bus surface the pipeline emits on.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// DecisionObserver receives decision counts and latency.
type DecisionObserver interface {
	ObserveDecision(domain core.Domain, decision core.EnforcementDecision, latency time.Duration)
}

// Pipeline evaluates metrics against resolved policies.
type Pipeline struct {
	resolver *Resolver
	bus      Publisher
	clock    clock.Clock
	observer DecisionObserver
	scope    string
	tracer   trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithClock(c clock.Clock) Option { return func(p *Pipeline) { p.clock = c } }

func WithObserver(o DecisionObserver) Option { return func(p *Pipeline) { p.observer = o } }

// WithScope sets the scope stamped on audit entries whose policy has none.
func WithScope(scope string) Option { return func(p *Pipeline) { p.scope = scope } }

// WithTracerProvider reports spans to tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) { p.tracer = tp.Tracer(tracerName) }
}

func NewPipeline(resolver *Resolver, bus Publisher, opts ...Option) *Pipeline {
	p := &Pipeline{resolver: resolver, bus: bus, clock: clock.Real{}, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decide resolves the policy for (domain, matchKey) and compares metric to
// its threshold. metric >= threshold yields the policy action, anything
// below yields ALLOW. A missing policy yields ALLOW flagged NO_POLICY, and a
// non-finite metric is evaluated as +Inf so it always triggers.
//
// Decide never fails; the audit entry is published as ENFORCEMENT_DECISION.
func (p *Pipeline) Decide(ctx context.Context, domain core.Domain, matchKey string, metric float64) (core.EnforcementDecision, core.AuditLogEntry) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Decide", trace.WithAttributes(
		attribute.String("domain", string(domain)),
		attribute.String("match_key", matchKey),
	))
	defer span.End()

	start := p.clock.Now()
	entry := core.AuditLogEntry{
		ID:          uuid.New().String(),
		Timestamp:   start.UTC(),
		Domain:      domain,
		MatchKey:    matchKey,
		MetricValue: metric,
		Scope:       p.scope,
	}

	if math.IsNaN(metric) || math.IsInf(metric, 0) {
		metric = math.Inf(1)
		entry.MetricValue = metric
		entry.Diagnostics = append(entry.Diagnostics, core.DiagNonFiniteMetric)
	}

	decision := core.DecisionAllow
	policy, err := p.resolver.Resolve(domain, matchKey)
	var noPolicy *PolicyResolutionError
	switch {
	case err != nil:
		entry.Diagnostics = append(entry.Diagnostics, core.DiagNoPolicy)
		if !errors.As(err, &noPolicy) {
			slog.Warn("[Pipeline] resolve failed", "domain", domain, "error", err)
		}
	default:
		entry.PolicyID = policy.ID
		entry.PolicyName = policy.Name
		entry.Threshold = policy.Threshold
		if policy.Scope != "" {
			entry.Scope = policy.Scope
		}
		if metric >= policy.Threshold {
			decision = policy.Action
		}
	}
	entry.Decision = decision
	entry.Latency = p.clock.Now().Sub(start)

	span.SetAttributes(
		attribute.String("decision", string(decision)),
		attribute.String("policy_id", entry.PolicyID),
	)
	if p.observer != nil {
		p.observer.ObserveDecision(domain, decision, entry.Latency)
	}

	ev := events.New(entry.Scope, events.EnforcementDecided{Entry: entry})
	if err := p.bus.Publish(ctx, ev); err != nil {
		slog.Warn("[Pipeline] audit event not published", "audit_id", entry.ID, "error", err)
	}
	return decision, entry
}
