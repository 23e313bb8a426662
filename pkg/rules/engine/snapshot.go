package engine

import (
	"errors"
	"fmt"
	"time"

	"mercator-hq/permitgate/pkg/rules/attribute"
	"mercator-hq/permitgate/pkg/rules/policy"
)

// Snapshot is an immutable view of a registry, a catalog and a policy set.
// Every evaluation reads one snapshot; reloads build a new one.
type Snapshot struct {
	Registry *attribute.Registry
	Catalog  policy.Catalog
	Version  string
	LoadedAt time.Time

	policies   []*policy.Policy
	byCategory map[policy.Category][]*policy.Policy
}

// NewSnapshot validates every policy against the catalog and registry and
// indexes them by category, keeping input order. The registry is sealed.
// Any invalid policy or duplicate ID rejects the whole snapshot.
func NewSnapshot(reg *attribute.Registry, catalog policy.Catalog, policies []*policy.Policy, version string) (*Snapshot, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: registry is nil", ErrInvalidSnapshot)
	}
	if catalog == nil {
		catalog = policy.DefaultCatalog()
	}
	reg.Seal()

	var errs []error
	seen := make(map[string]struct{}, len(policies))
	byCategory := make(map[policy.Category][]*policy.Policy)
	kept := make([]*policy.Policy, 0, len(policies))

	for i, p := range policies {
		if p == nil {
			errs = append(errs, fmt.Errorf("policy %d is nil", i))
			continue
		}
		if _, dup := seen[p.ID]; dup && p.ID != "" {
			errs = append(errs, fmt.Errorf("duplicate policy id %q", p.ID))
			continue
		}
		seen[p.ID] = struct{}{}
		if err := p.Validate(catalog, reg); err != nil {
			errs = append(errs, err)
			continue
		}
		kept = append(kept, p)
		byCategory[p.Category] = append(byCategory[p.Category], p)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, errors.Join(errs...))
	}

	return &Snapshot{
		Registry:   reg,
		Catalog:    catalog,
		Version:    version,
		LoadedAt:   time.Now(),
		policies:   kept,
		byCategory: byCategory,
	}, nil
}

// Policies returns the policies of a category in load order.
func (s *Snapshot) Policies(cat policy.Category) []*policy.Policy {
	return append([]*policy.Policy(nil), s.byCategory[cat]...)
}

// AllPolicies returns every policy in load order.
func (s *Snapshot) AllPolicies() []*policy.Policy {
	return append([]*policy.Policy(nil), s.policies...)
}

// Len returns the number of policies.
func (s *Snapshot) Len() int {
	return len(s.policies)
}

// PublishedCount returns the number of published policies.
func (s *Snapshot) PublishedCount() int {
	n := 0
	for _, p := range s.policies {
		if p.IsPublished() {
			n++
		}
	}
	return n
}

// Lookup finds a policy by ID.
func (s *Snapshot) Lookup(id string) (*policy.Policy, bool) {
	for _, p := range s.policies {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}
