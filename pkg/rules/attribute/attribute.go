// Package attribute declares the typed input dimensions a rule may test,
// such as width_ft, gross_weight_lbs, road_type or on_bridge.
//
// Each attribute has a kind (number, boolean or enum) and the kind decides
// which comparison operators are legal for clauses over it. Attributes are
// collected into a Registry that is built once and then sealed.
package attribute

import (
	"fmt"
	"strings"

	"mercator-hq/permitgate/pkg/rules/value"
)

// Kind is the declared value kind of an attribute.
type Kind string

const (
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindEnum    Kind = "enum"
)

// ValueKind maps an attribute kind to the value kind its scalars carry.
func (k Kind) ValueKind() value.Kind {
	switch k {
	case KindNumber:
		return value.KindNumber
	case KindBoolean:
		return value.KindBoolean
	case KindEnum:
		return value.KindEnum
	default:
		return value.KindInvalid
	}
}

// IsValid reports whether k is one of the declared kinds.
func (k Kind) IsValid() bool {
	return k == KindNumber || k == KindBoolean || k == KindEnum
}

// Operator is a clause comparison operator.
type Operator string

const (
	OpEq      Operator = "eq"
	OpNotEq   Operator = "neq"
	OpGt      Operator = "gt"
	OpGte     Operator = "gte"
	OpLt      Operator = "lt"
	OpLte     Operator = "lte"
	OpBetween Operator = "between"
	OpInSet   Operator = "in"
)

// AllOperators lists every operator in a stable order.
var AllOperators = []Operator{OpEq, OpNotEq, OpGt, OpGte, OpLt, OpLte, OpBetween, OpInSet}

var operatorAliases = map[string]Operator{
	"eq": OpEq, "==": OpEq, "=": OpEq,
	"neq": OpNotEq, "ne": OpNotEq, "!=": OpNotEq,
	"gt": OpGt, ">": OpGt,
	"gte": OpGte, ">=": OpGte,
	"lt": OpLt, "<": OpLt,
	"lte": OpLte, "<=": OpLte,
	"between": OpBetween,
	"in": OpInSet, "in_set": OpInSet,
}

// ParseOperator resolves an operator name or symbol.
func ParseOperator(s string) (Operator, error) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown operator %q", s)
	}
	return op, nil
}

// IsRelational reports whether op is one of gt, gte, lt, lte.
func (op Operator) IsRelational() bool {
	return op == OpGt || op == OpGte || op == OpLt || op == OpLte
}

// Attribute is a named, typed input dimension.
type Attribute struct {
	Name string
	Kind Kind

	// Values lists the allowed tags of an enum attribute.
	Values []string

	// Unit is informational only (ft, lbs, mph).
	Unit string

	// Discrete allows InSet on a number attribute, e.g. axle_count.
	Discrete bool

	Description string
}

// LegalOperators returns the operators legal for the attribute's kind.
func (a Attribute) LegalOperators() []Operator {
	switch a.Kind {
	case KindNumber:
		ops := []Operator{OpEq, OpNotEq, OpGt, OpGte, OpLt, OpLte, OpBetween}
		if a.Discrete {
			ops = append(ops, OpInSet)
		}
		return ops
	case KindBoolean:
		return []Operator{OpEq, OpNotEq}
	case KindEnum:
		return []Operator{OpEq, OpNotEq, OpInSet}
	default:
		return nil
	}
}

// Allows reports whether op is legal for the attribute.
func (a Attribute) Allows(op Operator) bool {
	for _, legal := range a.LegalOperators() {
		if legal == op {
			return true
		}
	}
	return false
}

// HasTag reports whether tag is an allowed value of an enum attribute.
func (a Attribute) HasTag(tag string) bool {
	for _, v := range a.Values {
		if v == tag {
			return true
		}
	}
	return false
}

// Accepts reports whether v is a scalar this attribute can hold.
func (a Attribute) Accepts(v value.Value) bool {
	if v.Kind() != a.Kind.ValueKind() {
		return false
	}
	if a.Kind == KindEnum {
		tag, _ := v.AsEnum()
		return a.HasTag(tag)
	}
	return true
}

func (a Attribute) validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAttribute)
	}
	if !a.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAttribute, a.Kind)
	}
	switch a.Kind {
	case KindEnum:
		if len(a.Values) == 0 {
			return fmt.Errorf("%w: enum attribute needs at least one value", ErrInvalidAttribute)
		}
		seen := make(map[string]struct{}, len(a.Values))
		for _, v := range a.Values {
			if _, dup := seen[v]; dup {
				return fmt.Errorf("%w: duplicate enum value %q", ErrInvalidAttribute, v)
			}
			seen[v] = struct{}{}
		}
	default:
		if len(a.Values) > 0 {
			return fmt.Errorf("%w: values are only allowed on enum attributes", ErrInvalidAttribute)
		}
	}
	if a.Discrete && a.Kind != KindNumber {
		return fmt.Errorf("%w: discrete is only allowed on number attributes", ErrInvalidAttribute)
	}
	return nil
}
