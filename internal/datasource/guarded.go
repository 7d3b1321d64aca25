package datasource

import (
	"context"

	"github.com/ocx/econcore/internal/circuitbreaker"
	"github.com/ocx/econcore/internal/core"
)

// GuardedSource fails fast with circuitbreaker.ErrCircuitOpen while the
// wrapped backend keeps failing. A reload then reports every catalog as
// retryable instead of waiting on three dead round trips.
type GuardedSource struct {
	src     Source
	breaker *circuitbreaker.Breaker
}

func NewGuardedSource(src Source, breaker *circuitbreaker.Breaker) *GuardedSource {
	return &GuardedSource{src: src, breaker: breaker}
}

func (g *GuardedSource) FetchPolicies(ctx context.Context, domain core.Domain) ([]core.Policy, error) {
	return circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) ([]core.Policy, error) {
		return g.src.FetchPolicies(ctx, domain)
	})
}

func (g *GuardedSource) FetchProfiles(ctx context.Context) ([]core.UtilityProfile, error) {
	return circuitbreaker.Do(ctx, g.breaker, g.src.FetchProfiles)
}

func (g *GuardedSource) FetchActions(ctx context.Context) ([]core.ActionCandidate, error) {
	return circuitbreaker.Do(ctx, g.breaker, g.src.FetchActions)
}

// State reports the breaker state for health checks.
func (g *GuardedSource) State() circuitbreaker.State { return g.breaker.State() }
