package condition

import (
	"encoding/json"
	"sort"

	"mercator-hq/permitgate/pkg/rules/value"
)

// Fact is the immutable input record describing one vehicle/load: attribute
// name to value. A fact need not describe every attribute.
type Fact struct {
	values map[string]value.Value
}

// NewFact copies values into a new Fact.
func NewFact(values map[string]value.Value) Fact {
	cp := make(map[string]value.Value, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Fact{values: cp}
}

// Get returns the value recorded for an attribute.
func (f Fact) Get(name string) (value.Value, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Len returns the number of entries.
func (f Fact) Len() int { return len(f.values) }

// Names returns the attribute names in lexical order.
func (f Fact) Names() []string {
	names := make([]string, 0, len(f.values))
	for k := range f.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the entries.
func (f Fact) Map() map[string]value.Value {
	cp := make(map[string]value.Value, len(f.values))
	for k, v := range f.values {
		cp[k] = v
	}
	return cp
}

// MarshalJSON implements json.Marshaler.
func (f Fact) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.values)
}
