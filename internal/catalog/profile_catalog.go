package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/ocx/econcore/internal/core"
)

// ProfileSource returns the stored utility profiles.
type ProfileSource interface {
	FetchProfiles(ctx context.Context) ([]core.UtilityProfile, error)
}

// ProfileCatalog holds named weight profiles in load order.
type ProfileCatalog struct {
	mu       sync.RWMutex
	profiles []core.UtilityProfile
}

func NewProfileCatalog(profiles ...core.UtilityProfile) (*ProfileCatalog, error) {
	c := &ProfileCatalog{}
	if err := c.Replace(profiles); err != nil {
		return nil, err
	}
	return c, nil
}

// FetchProfiles reads and validates the profiles of src.
func FetchProfiles(ctx context.Context, src ProfileSource) ([]core.UtilityProfile, error) {
	profiles, err := src.FetchProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch profiles: %w", err)
	}
	if err := validateProfiles(profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// Load swaps in the profiles from src, keeping the old set on failure.
func (c *ProfileCatalog) Load(ctx context.Context, src ProfileSource) error {
	profiles, err := FetchProfiles(ctx, src)
	if err != nil {
		return err
	}
	return c.Replace(profiles)
}

func (c *ProfileCatalog) Replace(profiles []core.UtilityProfile) error {
	if err := validateProfiles(profiles); err != nil {
		return err
	}
	next := make([]core.UtilityProfile, len(profiles))
	copy(next, profiles)
	c.mu.Lock()
	c.profiles = next
	c.mu.Unlock()
	return nil
}

func validateProfiles(profiles []core.UtilityProfile) error {
	for _, p := range profiles {
		if err := validateProfile(p); err != nil {
			return err
		}
	}
	return nil
}

func validateProfile(p core.UtilityProfile) error {
	if p.ID == "" {
		return fmt.Errorf("profile %q: missing id", p.Name)
	}
	if !p.Weights.Valid() {
		return fmt.Errorf("profile %s: weights must be finite and non-negative", p.ID)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("profile %s: unknown status %q", p.ID, p.Status)
	}
	return nil
}

func (c *ProfileCatalog) All() []core.UtilityProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.UtilityProfile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// Lookup returns the profile with id when it exists and is active, else the
// first active profile. ok is false when no profile is active.
func (c *ProfileCatalog) Lookup(id string) (core.UtilityProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var fallback *core.UtilityProfile
	for i := range c.profiles {
		p := &c.profiles[i]
		if p.Status != core.StatusActive {
			continue
		}
		if p.ID == id {
			return *p, true
		}
		if fallback == nil {
			fallback = p
		}
	}
	if fallback == nil {
		return core.UtilityProfile{}, false
	}
	return *fallback, true
}

// Upsert replaces the profile with the same id or appends it.
func (c *ProfileCatalog) Upsert(p core.UtilityProfile) error {
	if err := validateProfile(p); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.profiles {
		if c.profiles[i].ID == p.ID {
			c.profiles[i] = p
			return nil
		}
	}
	c.profiles = append(c.profiles, p)
	return nil
}
