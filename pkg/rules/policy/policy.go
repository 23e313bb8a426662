// Package policy defines the unit of compliance logic: a condition over
// attributes, the output it contributes when it matches, and how each output
// field merges with the outputs of other matching policies.
//
// The Catalog declares, per category, which output fields exist, their kinds
// and default merge strategies. It is passed explicitly wherever it is
// needed.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"mercator-hq/permitgate/pkg/rules/condition"
)

var (
	// ErrUnknownCategory indicates a category absent from the catalog.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrUndeclaredField indicates an output field the category does not declare.
	ErrUndeclaredField = errors.New("undeclared output field")

	// ErrFieldKind indicates an output value of the wrong kind.
	ErrFieldKind = errors.New("output value has wrong kind")

	// ErrStrategyKind indicates a merge strategy that cannot combine the field's kind.
	ErrStrategyKind = errors.New("merge strategy incompatible with field kind")
)

// Policy is one compliance rule scoped to a category.
type Policy struct {
	ID       string
	Category Category

	// Condition decides whether the policy applies to a fact. The zero
	// Condition always applies.
	Condition condition.Condition

	Output OutputRecord

	// MergeStrategies overrides the category's per-field strategy.
	MergeStrategies map[string]MergeStrategy

	// Priority orders matched policies ascending; nil sorts after every
	// prioritized policy.
	Priority *int

	Status       Status
	Jurisdiction string
	Description  string

	// Origin records where the policy was loaded from (file:line, document id).
	Origin string
}

// IsPublished reports whether the policy participates in matching.
func (p *Policy) IsPublished() bool {
	return p.Status == StatusPublished
}

// PriorityValue returns the priority and whether one is set.
func (p *Policy) PriorityValue() (int, bool) {
	if p.Priority == nil {
		return 0, false
	}
	return *p.Priority, true
}

// ValidationError lists every problem found with one policy.
type ValidationError struct {
	PolicyID string
	Errors   []error
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("policy %s: validation error: %v", e.PolicyID, e.Errors[0])
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("policy %s: %d validation errors: %s", e.PolicyID, len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

// Validate checks the policy against a catalog and, when schema is non-nil,
// rechecks every clause against it. It returns nil or a *ValidationError.
func (p *Policy) Validate(catalog Catalog, schema condition.Schema) error {
	var errs []error

	if strings.TrimSpace(p.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	switch p.Status {
	case StatusDraft, StatusPublished, StatusArchived:
	default:
		errs = append(errs, fmt.Errorf("unknown status %q", p.Status))
	}

	spec, ok := catalog.Get(p.Category)
	if !ok {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownCategory, p.Category))
	} else {
		for _, field := range p.Output.Fields() {
			v := p.Output[field]
			fs, declared := spec.Fields[field]
			if !declared {
				errs = append(errs, fmt.Errorf("%w: %s.%s", ErrUndeclaredField, p.Category, field))
				continue
			}
			if got := FieldKindOf(v); got != fs.Kind {
				errs = append(errs, fmt.Errorf("%w: %s is %s, want %s", ErrFieldKind, field, v.Kind(), fs.Kind))
			}
		}
		for _, field := range sortedKeys(p.MergeStrategies) {
			strategy := p.MergeStrategies[field]
			fs, declared := spec.Fields[field]
			if !declared {
				errs = append(errs, fmt.Errorf("%w: merge strategy for %s.%s", ErrUndeclaredField, p.Category, field))
				continue
			}
			if !strategy.Supports(fs.Kind) {
				errs = append(errs, fmt.Errorf("%w: %s on %s field %s", ErrStrategyKind, strategy, fs.Kind, field))
			}
		}
	}

	if schema != nil {
		if err := condition.Check(p.Condition, schema); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{PolicyID: p.ID, Errors: errs}
}

func sortedKeys(m map[string]MergeStrategy) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
