package condition

import (
	"fmt"
)

// Evaluator evaluates clauses and condition trees against facts. It holds
// no mutable state and is safe for concurrent use.
type Evaluator struct {
	schema Schema
}

// NewEvaluator creates an evaluator resolving attributes through schema.
func NewEvaluator(schema Schema) *Evaluator {
	return &Evaluator{schema: schema}
}

// EvaluateClause tests one clause against fact.
//
// An attribute missing from the fact makes the clause false. An attribute
// missing from the schema, or a fact entry of the wrong kind, is an
// *EvalError.
func (e *Evaluator) EvaluateClause(c Clause, fact Fact) (bool, error) {
	a, ok := e.schema.Lookup(c.attr)
	if !ok {
		return false, &EvalError{Attribute: c.attr, Cause: ErrUnknownAttribute}
	}
	if !a.Allows(c.op) {
		return false, &EvalError{
			Attribute: c.attr,
			Cause:     fmt.Errorf("%w: %s is not allowed on %s attributes", ErrIllegalOperator, c.op, a.Kind),
		}
	}

	fv, present := fact.Get(c.attr)
	if !present {
		return false, nil
	}
	if fv.Kind() != a.Kind.ValueKind() {
		return false, &EvalError{
			Attribute: c.attr,
			Cause:     fmt.Errorf("%w: want %s, got %s", ErrFactTypeMismatch, a.Kind, fv.Kind()),
		}
	}
	return c.holds(fv), nil
}

type frame struct {
	node *Condition
	next int
}

// Evaluate evaluates a condition tree. All groups stop at the first false
// child and Any groups at the first true child; the first error aborts the
// walk and is returned unchanged.
func (e *Evaluator) Evaluate(root Condition, fact Fact) (bool, error) {
	stack := make([]frame, 1, 16)
	stack[0] = frame{node: &root}

	// result of the most recently completed node
	var last bool

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		n := top.node

		if n.clause != nil {
			r, err := e.EvaluateClause(*n.clause, fact)
			if err != nil {
				return false, err
			}
			last = r
			stack = stack[:len(stack)-1]
			continue
		}

		logic := n.Logic()
		if top.next > 0 {
			if logic == LogicAll && !last {
				stack = stack[:len(stack)-1]
				continue
			}
			if logic == LogicAny && last {
				stack = stack[:len(stack)-1]
				continue
			}
		}

		if top.next == len(n.children) {
			// every child was true for All, or false for Any; covers empty groups
			last = logic == LogicAll
			stack = stack[:len(stack)-1]
			continue
		}

		child := &n.children[top.next]
		top.next++
		stack = append(stack, frame{node: child})
	}

	return last, nil
}
