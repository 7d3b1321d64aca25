// Package catalog holds the in-memory policy, profile and action catalogs
// the decision core reads from. Catalogs are replaced wholesale on load so a
// failed fetch never leaves a half-populated view behind.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ocx/econcore/internal/core"
)

var tracer = otel.Tracer("econcore/catalog")

// ErrNotFound is returned when an id is not in the catalog.
var ErrNotFound = errors.New("not found")

// InvalidPolicyError reports a policy that cannot enter the catalog.
type InvalidPolicyError struct {
	ID     string
	Reason string
}

func (e *InvalidPolicyError) Error() string {
	return fmt.Sprintf("invalid policy %q: %s", e.ID, e.Reason)
}

// PolicySource returns a point-in-time snapshot of the policies of a domain.
type PolicySource interface {
	FetchPolicies(ctx context.Context, domain core.Domain) ([]core.Policy, error)
}

// PolicyCatalog is an ordered, concurrency-safe policy collection. Order is
// significant: resolution returns the first match in catalog order.
type PolicyCatalog struct {
	mu       sync.RWMutex
	policies []core.Policy
	history  *PolicyVersionStore
}

// NewPolicyCatalog returns a catalog seeded with policies, in order.
// Invalid entries are rejected as a whole.
func NewPolicyCatalog(policies ...core.Policy) (*PolicyCatalog, error) {
	c := &PolicyCatalog{history: NewPolicyVersionStore()}
	if err := c.Replace(policies); err != nil {
		return nil, err
	}
	return c, nil
}

// FetchPolicies reads every domain from src and validates the result
// without touching any catalog.
func FetchPolicies(ctx context.Context, src PolicySource) ([]core.Policy, error) {
	ctx, span := tracer.Start(ctx, "catalog.FetchPolicies")
	defer span.End()

	var next []core.Policy
	for _, d := range core.Domains() {
		batch, err := src.FetchPolicies(ctx, d)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("fetch %s policies: %w", d, err)
		}
		next = append(next, batch...)
	}
	if err := validatePolicies(next); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("policies", len(next)))
	return next, nil
}

// Load fetches every domain from src and swaps the catalog in one step. If
// any fetch or validation fails the previous contents are kept.
func (c *PolicyCatalog) Load(ctx context.Context, src PolicySource) error {
	next, err := FetchPolicies(ctx, src)
	if err != nil {
		slog.Warn("[Catalog] policy fetch failed, keeping previous catalog", "error", err)
		return err
	}
	if err := c.Replace(next); err != nil {
		return err
	}
	slog.Info("[Catalog] policies loaded", "count", len(next))
	return nil
}

// Replace validates policies and installs them as the whole catalog. A load
// revision is recorded only for policies that differ from their latest one.
func (c *PolicyCatalog) Replace(policies []core.Policy) error {
	if err := validatePolicies(policies); err != nil {
		return err
	}
	next := make([]core.Policy, len(policies))
	copy(next, policies)

	c.mu.Lock()
	c.policies = next
	c.mu.Unlock()

	for _, p := range next {
		c.history.Push(p, "load")
	}
	return nil
}

func validatePolicies(policies []core.Policy) error {
	seen := make(map[string]struct{}, len(policies))
	for _, p := range policies {
		if err := Validate(p); err != nil {
			return err
		}
		if _, dup := seen[p.ID]; dup {
			return &InvalidPolicyError{ID: p.ID, Reason: "duplicate id"}
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// Validate checks the fields resolution depends on.
func Validate(p core.Policy) error {
	switch {
	case p.ID == "":
		return &InvalidPolicyError{Reason: "missing id"}
	case !p.Domain.Valid():
		return &InvalidPolicyError{ID: p.ID, Reason: fmt.Sprintf("unknown domain %q", p.Domain)}
	case !p.Action.Valid():
		return &InvalidPolicyError{ID: p.ID, Reason: fmt.Sprintf("unknown action %q", p.Action)}
	case !p.Status.Valid():
		return &InvalidPolicyError{ID: p.ID, Reason: fmt.Sprintf("unknown status %q", p.Status)}
	case math.IsNaN(p.Threshold):
		return &InvalidPolicyError{ID: p.ID, Reason: "threshold is NaN"}
	}
	return nil
}

// Policies returns the policies of domain in catalog order, any status.
func (c *PolicyCatalog) Policies(domain core.Domain) []core.Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []core.Policy
	for _, p := range c.policies {
		if p.Domain == domain {
			out = append(out, p)
		}
	}
	return out
}

// All returns a copy of the catalog.
func (c *PolicyCatalog) All() []core.Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Policy, len(c.policies))
	copy(out, c.policies)
	return out
}

func (c *PolicyCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.policies)
}

func (c *PolicyCatalog) Get(id string) (core.Policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.policies {
		if p.ID == id {
			return p, true
		}
	}
	return core.Policy{}, false
}

// Upsert replaces the policy with the same id in place, keeping its catalog
// position, or appends it.
func (c *PolicyCatalog) Upsert(p core.Policy) error {
	if err := Validate(p); err != nil {
		return err
	}
	c.mu.Lock()
	replaced := false
	for i := range c.policies {
		if c.policies[i].ID == p.ID {
			c.policies[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		c.policies = append(c.policies, p)
	}
	c.mu.Unlock()

	c.history.Push(p, "upsert")
	return nil
}

// SetStatus changes the status of one policy and returns the updated value.
func (c *PolicyCatalog) SetStatus(id string, status core.PolicyStatus) (core.Policy, error) {
	if !status.Valid() {
		return core.Policy{}, &InvalidPolicyError{ID: id, Reason: fmt.Sprintf("unknown status %q", status)}
	}
	c.mu.Lock()
	var updated core.Policy
	found := false
	for i := range c.policies {
		if c.policies[i].ID == id {
			c.policies[i].Status = status
			updated = c.policies[i]
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return core.Policy{}, fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}

	c.history.Push(updated, "status:"+string(status))
	return updated, nil
}

// History returns every recorded revision of a policy, oldest first.
func (c *PolicyCatalog) History(id string) []PolicyVersion {
	return c.history.GetHistory(id)
}

// Rollback restores the policy to an earlier revision. The restored value
// is recorded as a new revision.
func (c *PolicyCatalog) Rollback(id string, version int) (core.Policy, error) {
	v, err := c.history.Get(id, version)
	if err != nil {
		return core.Policy{}, err
	}
	if err := c.Upsert(v.Policy); err != nil {
		return core.Policy{}, err
	}
	return v.Policy, nil
}
