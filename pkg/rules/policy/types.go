package policy

import (
	"fmt"
	"sort"
	"strings"

	"mercator-hq/permitgate/pkg/rules/value"
)

// Category is the compliance domain a policy belongs to.
type Category string

// Built-in categories. Bundles may declare additional ones.
const (
	CategoryEscort    Category = "escort"
	CategoryPermit    Category = "permit"
	CategorySpeed     Category = "speed"
	CategoryHours     Category = "hours"
	CategoryRoute     Category = "route"
	CategoryUtility   Category = "utility"
	CategoryDimension Category = "dimension"
)

// Status is the lifecycle state of a policy. Only published policies take
// part in matching.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// ParseStatus resolves a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDraft, StatusPublished, StatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// MergeStrategy combines one output field across matched policies.
type MergeStrategy string

const (
	MergeMax   MergeStrategy = "max"
	MergeMin   MergeStrategy = "min"
	MergeSum   MergeStrategy = "sum"
	MergeFirst MergeStrategy = "first"
	MergeLast  MergeStrategy = "last"
	MergeUnion MergeStrategy = "union"
)

// DefaultStrategy applies to fields with no registered strategy.
const DefaultStrategy = MergeLast

// ParseMergeStrategy resolves a strategy name.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch ms := MergeStrategy(strings.ToLower(strings.TrimSpace(s))); ms {
	case MergeMax, MergeMin, MergeSum, MergeFirst, MergeLast, MergeUnion:
		return ms, nil
	}
	return "", fmt.Errorf("unknown merge strategy %q", s)
}

// FieldKind is the declared kind of an output field.
type FieldKind string

const (
	FieldNumber  FieldKind = "number"
	FieldBoolean FieldKind = "boolean"
	FieldEnum    FieldKind = "enum"
	FieldSet     FieldKind = "set"
)

// ParseFieldKind resolves a field kind name.
func ParseFieldKind(s string) (FieldKind, error) {
	switch k := FieldKind(strings.ToLower(strings.TrimSpace(s))); k {
	case FieldNumber, FieldBoolean, FieldEnum, FieldSet:
		return k, nil
	}
	return "", fmt.Errorf("unknown field kind %q", s)
}

// FieldKindOf returns the field kind matching a value, or "" for ranges and
// invalid values.
func FieldKindOf(v value.Value) FieldKind {
	switch v.Kind() {
	case value.KindNumber:
		return FieldNumber
	case value.KindBoolean:
		return FieldBoolean
	case value.KindEnum:
		return FieldEnum
	case value.KindSet:
		return FieldSet
	default:
		return ""
	}
}

// Supports reports whether strategy s can combine values of kind k.
//
//	number:  max min sum first last
//	boolean: first last union (logical OR)
//	enum:    first last
//	set:     first last union
func (s MergeStrategy) Supports(k FieldKind) bool {
	switch s {
	case MergeFirst, MergeLast:
		return k != ""
	case MergeMax, MergeMin, MergeSum:
		return k == FieldNumber
	case MergeUnion:
		return k == FieldBoolean || k == FieldSet
	}
	return false
}

// OutputRecord maps output field names to values.
type OutputRecord map[string]value.Value

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (o OutputRecord) Clone() OutputRecord {
	if o == nil {
		return OutputRecord{}
	}
	cp := make(OutputRecord, len(o))
	for k, v := range o {
		cp[k] = v
	}
	return cp
}

// Fields returns the field names in lexical order.
func (o OutputRecord) Fields() []string {
	names := make([]string, 0, len(o))
	for k := range o {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether both records hold equal values for the same fields.
func (o OutputRecord) Equal(other OutputRecord) bool {
	if len(o) != len(other) {
		return false
	}
	for k, v := range o {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Priority returns a pointer to n, for populating Policy.Priority.
func Priority(n int) *int {
	return &n
}
