package governance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ocx/econcore/internal/clock"
	"github.com/ocx/econcore/internal/core"
	"github.com/ocx/econcore/internal/events"
)

// Routing decision statuses.
const (
	RouteSuccess      = "success"
	RouteFallbackUsed = "fallback_used"
	RouteFailed       = "failed"
)

// Router picks a model target for a task type from routing-domain policies.
type Router struct {
	resolver *Resolver
	bus      Publisher
	clock    clock.Clock
}

func NewRouter(resolver *Resolver, bus Publisher, c clock.Clock) *Router {
	if c == nil {
		c = clock.Real{}
	}
	return &Router{resolver: resolver, bus: bus, clock: c}
}

// DecideRoute resolves the routing policy for taskType with the same
// first-match rule as Decide and returns the preferred target. A policy
// without a preferred target routes to its fallback. With no routing policy
// the decision is marked failed and flagged NO_POLICY.
func (r *Router) DecideRoute(ctx context.Context, taskType string) core.RoutingDecision {
	start := r.clock.Now()
	d := core.RoutingDecision{
		ID:        uuid.New().String(),
		Timestamp: start.UTC(),
		TaskType:  taskType,
	}

	policy, err := r.resolver.Resolve(core.DomainRouting, taskType)
	switch {
	case err != nil:
		d.Status = RouteFailed
		d.Diagnostics = []string{core.DiagNoPolicy}
		d.Reasoning = err.Error()
	case policy.PreferredTarget == "" && policy.FallbackTarget != "":
		d.PolicyID = policy.ID
		d.ChosenTarget = policy.FallbackTarget
		d.Status = RouteFallbackUsed
		d.Reasoning = fmt.Sprintf("Policy '%s' has no preferred target; fallback applied.", policy.Name)
	default:
		d.PolicyID = policy.ID
		d.ChosenTarget = policy.PreferredTarget
		d.FallbackTarget = policy.FallbackTarget
		d.Status = RouteSuccess
		d.Reasoning = fmt.Sprintf("Policy '%s' applied.", policy.Name)
	}
	d.Latency = r.clock.Now().Sub(start)

	if err := r.bus.Publish(ctx, events.New(policy.Scope, events.RoutingDecided{Decision: d})); err != nil {
		slog.Warn("[Router] routing event not published", "task_type", taskType, "error", err)
	}
	return d
}
