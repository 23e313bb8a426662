package condition

import (
	"fmt"
	"math"

	"mercator-hq/permitgate/pkg/rules/attribute"
	"mercator-hq/permitgate/pkg/rules/value"
)

// Schema resolves attribute declarations. *attribute.Registry implements it.
type Schema interface {
	Lookup(name string) (attribute.Attribute, bool)
}

// Clause is one (attribute, operator, value) test. Clauses can only be built
// through NewClause, so a Clause in hand is always well-formed for the schema
// it was built against.
type Clause struct {
	attr string
	op   attribute.Operator
	val  value.Value
}

// NewClause validates operator legality and operand shape against the
// attribute's declared kind.
func NewClause(attr string, op attribute.Operator, val value.Value, schema Schema) (Clause, error) {
	a, ok := schema.Lookup(attr)
	if !ok {
		return Clause{}, &ClauseError{Attribute: attr, Operator: op, Cause: ErrUnknownAttribute}
	}
	if !a.Allows(op) {
		return Clause{}, &ClauseError{
			Attribute: attr,
			Operator:  op,
			Cause:     fmt.Errorf("%w: %s is not allowed on %s attributes", ErrIllegalOperator, op, a.Kind),
		}
	}
	if err := checkOperand(a, op, val); err != nil {
		return Clause{}, &ClauseError{Attribute: attr, Operator: op, Cause: err}
	}
	return Clause{attr: attr, op: op, val: val}, nil
}

// MustClause is NewClause that panics on error. Intended for tests.
func MustClause(attr string, op attribute.Operator, val value.Value, schema Schema) Clause {
	c, err := NewClause(attr, op, val, schema)
	if err != nil {
		panic(err)
	}
	return c
}

func checkOperand(a attribute.Attribute, op attribute.Operator, val value.Value) error {
	switch {
	case op == attribute.OpEq || op == attribute.OpNotEq:
		if !a.Accepts(val) {
			return fmt.Errorf("%w: %s operand %s does not fit %s attribute", ErrMalformedValue, op, val, a.Kind)
		}
		if n, ok := val.AsNumber(); ok && math.IsNaN(n) {
			return fmt.Errorf("%w: NaN operand", ErrMalformedValue)
		}
	case op.IsRelational():
		n, ok := val.AsNumber()
		if !ok {
			return fmt.Errorf("%w: %s needs a number, got %s", ErrMalformedValue, op, val.Kind())
		}
		if math.IsNaN(n) {
			return fmt.Errorf("%w: NaN operand", ErrMalformedValue)
		}
	case op == attribute.OpBetween:
		lo, hi, ok := val.AsRange()
		if !ok {
			return fmt.Errorf("%w: between needs a [lo, hi] range, got %s", ErrMalformedValue, val.Kind())
		}
		if math.IsNaN(lo) || math.IsNaN(hi) {
			return fmt.Errorf("%w: NaN range bound", ErrMalformedValue)
		}
		if lo > hi {
			return fmt.Errorf("%w: range lower bound %v exceeds upper bound %v", ErrMalformedValue, lo, hi)
		}
	case op == attribute.OpInSet:
		if val.Kind() != value.KindSet {
			return fmt.Errorf("%w: in needs a set, got %s", ErrMalformedValue, val.Kind())
		}
		if val.Len() == 0 {
			return fmt.Errorf("%w: in needs a non-empty set", ErrMalformedValue)
		}
		for i, item := range val.Items() {
			if !a.Accepts(item) {
				return fmt.Errorf("%w: set member %d (%s) does not fit %s attribute", ErrMalformedValue, i, item, a.Kind)
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrIllegalOperator, op)
	}
	return nil
}

// Attribute returns the attribute name tested by the clause.
func (c Clause) Attribute() string { return c.attr }

// Operator returns the clause operator.
func (c Clause) Operator() attribute.Operator { return c.op }

// Value returns the clause operand.
func (c Clause) Value() value.Value { return c.val }

// String renders the clause as "attr op value".
func (c Clause) String() string {
	return fmt.Sprintf("%s %s %s", c.attr, c.op, c.val)
}

// holds applies the operator to a fact value already known to be of the
// attribute's kind.
func (c Clause) holds(fv value.Value) bool {
	switch c.op {
	case attribute.OpEq:
		return fv.Equal(c.val)
	case attribute.OpNotEq:
		return !fv.Equal(c.val)
	case attribute.OpInSet:
		return c.val.Contains(fv)
	}

	x, _ := fv.AsNumber()
	switch c.op {
	case attribute.OpGt:
		n, _ := c.val.AsNumber()
		return x > n
	case attribute.OpGte:
		n, _ := c.val.AsNumber()
		return x >= n
	case attribute.OpLt:
		n, _ := c.val.AsNumber()
		return x < n
	case attribute.OpLte:
		n, _ := c.val.AsNumber()
		return x <= n
	case attribute.OpBetween:
		lo, hi, _ := c.val.AsRange()
		return lo <= x && x <= hi
	}
	return false
}
