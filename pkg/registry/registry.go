// Package registry manages caller profiles, pricing tiers, and capability
// rate cards.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gatewise-ai/gatewise/pkg/models"
)

// ErrUnknownCaller is returned when a caller ID has no registered profile.
var ErrUnknownCaller = errors.New("unknown caller")

// ErrUnknownTier is returned by UpgradeTier for a tier with no configuration.
var ErrUnknownTier = errors.New("unknown tier")

const (
	// DefaultTier is assigned when a caller registers with an unknown tier.
	DefaultTier = "basic"
	// minCapabilityCost prices capabilities missing from the rate card.
	minCapabilityCost = 0.0001
	// unitBytes is the rough serialized-byte-to-billing-unit divisor.
	unitBytes = 4
)

// Tier is a subscription level with a cost multiplier.
type Tier struct {
	Multiplier float64
}

// DefaultTiers is the built-in pricing tier table.
func DefaultTiers() map[string]Tier {
	return map[string]Tier{
		"basic":      {Multiplier: 1.0},
		"premium":    {Multiplier: 0.8},
		"enterprise": {Multiplier: 0.6},
	}
}

// DefaultCapabilityCosts is the built-in per-unit rate card.
func DefaultCapabilityCosts() map[string]float64 {
	return map[string]float64{
		"text_generation": 0.0004,
		"embedding":       0.0002,
		"classification":  0.0001,
		"translation":     0.0003,
		"custom_model":    0.0006,
	}
}

// Registry holds registered caller profiles.
type Registry struct {
	mu              sync.Mutex
	callers         map[string]*models.CallerProfile
	tiers           map[string]Tier
	capabilityCosts map[string]float64
	nextID          int
}

// New creates a Registry. Nil tier or capability tables fall back to the
// built-in defaults. A tier with a non-positive multiplier is invalid.
func New(tiers map[string]Tier, capabilityCosts map[string]float64) (*Registry, error) {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	if capabilityCosts == nil {
		capabilityCosts = DefaultCapabilityCosts()
	}
	for name, t := range tiers {
		if t.Multiplier <= 0 {
			return nil, fmt.Errorf("tier %q: multiplier must be positive", name)
		}
	}
	if _, ok := tiers[DefaultTier]; !ok {
		return nil, fmt.Errorf("tier table must define %q", DefaultTier)
	}
	return &Registry{
		callers:         make(map[string]*models.CallerProfile),
		tiers:           tiers,
		capabilityCosts: capabilityCosts,
	}, nil
}

// Register adds a caller and returns its ID. Unknown tiers fall back to the
// basic tier. The effective cost per unit is the capability base cost with
// the tier multiplier applied exactly once, here.
func (r *Registry) Register(name string, capabilities []string, tier string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tiers[tier]; !ok {
		tier = DefaultTier
	}

	r.nextID++
	id := fmt.Sprintf("caller_%d", r.nextID)
	r.callers[id] = &models.CallerProfile{
		ID:           id,
		Name:         name,
		Capabilities: append([]string(nil), capabilities...),
		Tier:         tier,
		CostPerUnit:  r.baseCost(capabilities) * r.tiers[tier].Multiplier,
	}
	return id
}

// baseCost sums capability rates, pricing unlisted capabilities at the flat
// minimum. Caller holds r.mu.
func (r *Registry) baseCost(capabilities []string) float64 {
	var total float64
	for _, c := range capabilities {
		if cost, ok := r.capabilityCosts[c]; ok {
			total += cost
		} else {
			total += minCapabilityCost
		}
	}
	return total
}

// Lookup returns the profile for a caller ID.
func (r *Registry) Lookup(callerID string) (models.CallerProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.callers[callerID]
	if !ok {
		return models.CallerProfile{}, fmt.Errorf("lookup %q: %w", callerID, ErrUnknownCaller)
	}
	return *p, nil
}

// UpgradeTier moves a caller to a new tier and recomputes its cost per unit
// from the capability base, so the multiplier is never compounded across
// upgrades.
func (r *Registry) UpgradeTier(callerID, newTier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tiers[newTier]
	if !ok {
		return fmt.Errorf("upgrade to %q: %w", newTier, ErrUnknownTier)
	}
	p, ok := r.callers[callerID]
	if !ok {
		return fmt.Errorf("upgrade %q: %w", callerID, ErrUnknownCaller)
	}
	p.Tier = newTier
	p.CostPerUnit = r.baseCost(p.Capabilities) * t.Multiplier
	return nil
}

// TaskCost prices a request of the given serialized input size at the
// caller's current rate. This is the live rate used when crediting cache hit
// savings. The profile's CostPerUnit already carries the tier multiplier;
// it is not applied again here.
func TaskCost(p models.CallerProfile, inputBytes int) float64 {
	units := float64(inputBytes) / unitBytes
	return units * p.CostPerUnit
}

// List returns all registered profiles.
func (r *Registry) List() []models.CallerProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.CallerProfile, 0, len(r.callers))
	for _, p := range r.callers {
		out = append(out, *p)
	}
	return out
}
