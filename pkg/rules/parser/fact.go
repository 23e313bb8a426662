package parser

import (
	"errors"
	"fmt"
	"sort"

	"mercator-hq/permitgate/pkg/rules/attribute"
	"mercator-hq/permitgate/pkg/rules/condition"
	"mercator-hq/permitgate/pkg/rules/value"
)

var (
	// ErrUnknownFactAttribute indicates a fact entry for an undeclared attribute.
	ErrUnknownFactAttribute = errors.New("unknown attribute")

	// ErrFactValue indicates a fact entry that does not fit its attribute.
	ErrFactValue = errors.New("invalid value")
)

// FactError reports one rejected fact entry.
type FactError struct {
	Attribute  string
	Suggestion string
	Cause      error
}

// Error returns the error message.
func (e *FactError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("fact %s: %v (%s)", e.Attribute, e.Cause, e.Suggestion)
	}
	return fmt.Sprintf("fact %s: %v", e.Attribute, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *FactError) Unwrap() error {
	return e.Cause
}

// Lister exposes the attribute names of a schema for suggestions.
// *attribute.Registry implements it.
type Lister interface {
	condition.Schema
	SortedNames() []string
}

// ParseFact converts decoded input into a Fact, rejecting names the schema
// does not declare and values that do not fit their attribute. Every
// problem is reported, in name order.
func ParseFact(raw map[string]any, schema Lister) (condition.Fact, error) {
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	values := make(map[string]value.Value, len(raw))
	var errs []error
	for _, name := range names {
		a, ok := schema.Lookup(name)
		if !ok {
			errs = append(errs, &FactError{
				Attribute:  name,
				Cause:      ErrUnknownFactAttribute,
				Suggestion: suggestName(name, schema.SortedNames()),
			})
			continue
		}
		v, err := value.FromAny(raw[name])
		if err != nil {
			errs = append(errs, &FactError{Attribute: name, Cause: fmt.Errorf("%w: %v", ErrFactValue, err)})
			continue
		}
		if !a.Accepts(v) {
			errs = append(errs, &FactError{Attribute: name, Cause: fmt.Errorf("%w: %s is not a valid %s", ErrFactValue, v, describe(a))})
			continue
		}
		values[name] = v
	}

	if len(errs) > 0 {
		return condition.Fact{}, errors.Join(errs...)
	}
	return condition.NewFact(values), nil
}

// LooseFact converts decoded input into a Fact without consulting a
// schema. Entries that are not scalar values are reported.
func LooseFact(raw map[string]any) (condition.Fact, error) {
	values := make(map[string]value.Value, len(raw))
	for name, r := range raw {
		v, err := value.FromAny(r)
		if err != nil {
			return condition.Fact{}, &FactError{Attribute: name, Cause: fmt.Errorf("%w: %v", ErrFactValue, err)}
		}
		values[name] = v
	}
	return condition.NewFact(values), nil
}

func describe(a attribute.Attribute) string {
	if a.Kind == attribute.KindEnum {
		return fmt.Sprintf("enum (one of %v)", a.Values)
	}
	return string(a.Kind)
}
