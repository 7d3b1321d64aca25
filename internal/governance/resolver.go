// Package governance resolves policies and turns metric observations into
// enforcement decisions.
package governance

import (
	"fmt"

	"github.com/ocx/econcore/internal/core"
)

// PolicyResolutionError means the domain has no active policy.
type PolicyResolutionError struct {
	Domain core.Domain
}

func (e *PolicyResolutionError) Error() string {
	return fmt.Sprintf("no active policy in domain %q", e.Domain)
}

// PolicyLister is the catalog view the resolver reads.
type PolicyLister interface {
	Policies(domain core.Domain) []core.Policy
}

// Resolver selects the policy that applies to a request.
type Resolver struct {
	catalog PolicyLister
}

func NewResolver(catalog PolicyLister) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve returns the first active policy of domain whose match key equals
// matchKey. Without a key match it falls back to the first active policy in
// catalog order. Matching is first-match, not most-specific.
func (r *Resolver) Resolve(domain core.Domain, matchKey string) (core.Policy, error) {
	var fallback *core.Policy
	policies := r.catalog.Policies(domain)
	for i := range policies {
		p := &policies[i]
		if p.Status != core.StatusActive {
			continue
		}
		if p.MatchKey == matchKey {
			return *p, nil
		}
		if fallback == nil {
			fallback = p
		}
	}
	if fallback == nil {
		return core.Policy{}, &PolicyResolutionError{Domain: domain}
	}
	return *fallback, nil
}
