// Package value defines the closed set of typed values that flow through the
// rules engine: clause operands, fact entries and output fields.
//
// A Value is one of Number, Bool, Enum, Range or Set. There is no implicit
// coercion between kinds; Equal compares kind first and then payload.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind string

const (
	KindInvalid Kind = ""
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindEnum    Kind = "enum"
	KindRange   Kind = "range"
	KindSet     Kind = "set"
)

// IsScalar reports whether the kind is Number, Boolean or Enum.
func (k Kind) IsScalar() bool {
	return k == KindNumber || k == KindBoolean || k == KindEnum
}

// Value is an immutable tagged union. The zero Value is invalid.
type Value struct {
	kind  Kind
	num   float64
	b     bool
	str   string
	lo    float64
	hi    float64
	items []Value
}

// Number returns a numeric value.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBoolean, b: b}
}

// Enum returns an enum tag value.
func Enum(tag string) Value {
	return Value{kind: KindEnum, str: tag}
}

// Range returns an inclusive numeric range. Bounds are not checked here;
// clause construction rejects lo > hi.
func Range(lo, hi float64) Value {
	return Value{kind: KindRange, lo: lo, hi: hi}
}

// Set returns a set value holding a copy of items in the given order.
func Set(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindSet, items: cp}
}

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v was built by one of the constructors.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBoolean
}

// AsEnum returns the enum tag held by v.
func (v Value) AsEnum() (string, bool) {
	return v.str, v.kind == KindEnum
}

// AsRange returns the bounds held by v.
func (v Value) AsRange() (lo, hi float64, ok bool) {
	return v.lo, v.hi, v.kind == KindRange
}

// Items returns a copy of the members of a set value, or nil for other kinds.
func (v Value) Items() []Value {
	if v.kind != KindSet {
		return nil
	}
	cp := make([]Value, len(v.items))
	copy(cp, v.items)
	return cp
}

// Len returns the number of set members, or 0 for other kinds.
func (v Value) Len() int {
	if v.kind != KindSet {
		return 0
	}
	return len(v.items)
}

// Contains reports whether a set value holds a member equal to x.
func (v Value) Contains(x Value) bool {
	if v.kind != KindSet {
		return false
	}
	for _, item := range v.items {
		if item.Equal(x) {
			return true
		}
	}
	return false
}

// Equal reports exact equality. Numbers follow IEEE-754 ==, so NaN is never
// equal to anything. Sets compare member by member in order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindBoolean:
		return v.b == o.b
	case KindEnum:
		return v.str == o.str
	case KindRange:
		return v.lo == o.lo && v.hi == o.hi
	case KindSet:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String returns a human readable rendering used in logs and CLI output.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return formatNumber(v.num)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindEnum:
		return v.str
	case KindRange:
		return "[" + formatNumber(v.lo) + ", " + formatNumber(v.hi) + "]"
	case KindSet:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "<invalid>"
	}
}

// Interface converts v into plain Go values suitable for encoding:
// float64, bool, string, []float64 for ranges and []any for sets.
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBoolean:
		return v.b
	case KindEnum:
		return v.str
	case KindRange:
		return []float64{v.lo, v.hi}
	case KindSet:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber && (math.IsNaN(v.num) || math.IsInf(v.num, 0)) {
		return nil, fmt.Errorf("value: cannot encode non-finite number %v", v.num)
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler using the FromAny mapping.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (interface{}, error) {
	return v.Interface(), nil
}

// FromAny converts a decoded YAML or JSON value into a Value. Numbers become
// Number, booleans Bool, strings Enum and lists Set. Nested lists and maps
// are rejected.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case Value:
		return x, nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("value: invalid number %q: %w", x.String(), err)
		}
		return Number(f), nil
	case bool:
		return Bool(x), nil
	case string:
		return Enum(x), nil
	case []any:
		items := make([]Value, 0, len(x))
		for i, elem := range x {
			item, err := FromAny(elem)
			if err != nil {
				return Value{}, fmt.Errorf("value: element %d: %w", i, err)
			}
			if !item.kind.IsScalar() {
				return Value{}, fmt.Errorf("value: element %d: set members must be scalars, got %s", i, item.kind)
			}
			items = append(items, item)
		}
		return Value{kind: KindSet, items: items}, nil
	case []string:
		items := make([]Value, len(x))
		for i, s := range x {
			items[i] = Enum(s)
		}
		return Value{kind: KindSet, items: items}, nil
	case nil:
		return Value{}, fmt.Errorf("value: null is not a value")
	default:
		return Value{}, fmt.Errorf("value: unsupported type %T", raw)
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
