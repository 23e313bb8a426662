// Package condition builds and evaluates boolean trees of typed clauses.
//
// A Condition is either a leaf holding one Clause or a group combining
// children with All (AND) or Any (OR). An empty All group is true and an
// empty Any group is false. Evaluation walks the tree with an explicit stack,
// so arbitrarily deep trees never grow the goroutine stack.
//
// Clauses are validated when they are built:
//
//	c, err := condition.NewClause("width_ft", attribute.OpGt, value.Number(12), reg)
//	if err != nil {
//	    return err // *ClauseError
//	}
//	cond := condition.All(condition.Leaf(c))
//	ok, err := condition.NewEvaluator(reg).Evaluate(cond, fact)
package condition

import (
	"fmt"
	"strings"
)

// Logic is the combinator of a group.
type Logic string

const (
	LogicAll Logic = "all"
	LogicAny Logic = "any"
)

// Condition is a node of the boolean tree. The zero Condition is an empty
// All group and therefore always true.
type Condition struct {
	clause   *Clause
	logic    Logic
	children []Condition
}

// Leaf wraps a single clause.
func Leaf(c Clause) Condition {
	return Condition{clause: &c}
}

// All returns an AND group.
func All(children ...Condition) Condition {
	return Group(LogicAll, children...)
}

// Any returns an OR group.
func Any(children ...Condition) Condition {
	return Group(LogicAny, children...)
}

// Group returns a group with the given logic. Unknown logic values are
// treated as All.
func Group(logic Logic, children ...Condition) Condition {
	if logic != LogicAny {
		logic = LogicAll
	}
	cp := make([]Condition, len(children))
	copy(cp, children)
	return Condition{logic: logic, children: cp}
}

// IsLeaf reports whether c holds a clause.
func (c Condition) IsLeaf() bool { return c.clause != nil }

// Clause returns the clause of a leaf.
func (c Condition) Clause() (Clause, bool) {
	if c.clause == nil {
		return Clause{}, false
	}
	return *c.clause, true
}

// Logic returns the group logic; leaves and the zero value report LogicAll.
func (c Condition) Logic() Logic {
	if c.logic == LogicAny {
		return LogicAny
	}
	return LogicAll
}

// Children returns a copy of the group's children.
func (c Condition) Children() []Condition {
	cp := make([]Condition, len(c.children))
	copy(cp, c.children)
	return cp
}

// Walk visits every node in depth-first pre-order until fn returns false.
func Walk(root Condition, fn func(node Condition, depth int) bool) {
	type item struct {
		node  *Condition
		depth int
	}
	stack := []item{{node: &root}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(*it.node, it.depth) {
			return
		}
		for i := len(it.node.children) - 1; i >= 0; i-- {
			stack = append(stack, item{node: &it.node.children[i], depth: it.depth + 1})
		}
	}
}

// Clauses returns every clause in evaluation order.
func Clauses(root Condition) []Clause {
	var out []Clause
	Walk(root, func(n Condition, _ int) bool {
		if n.clause != nil {
			out = append(out, *n.clause)
		}
		return true
	})
	return out
}

// Depth returns the nesting depth; a lone leaf or empty group is depth 1.
func Depth(root Condition) int {
	deepest := 0
	Walk(root, func(_ Condition, d int) bool {
		if d+1 > deepest {
			deepest = d + 1
		}
		return true
	})
	return deepest
}

// Attributes returns the distinct attribute names referenced by root.
func Attributes(root Condition) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range Clauses(root) {
		if _, ok := seen[c.attr]; ok {
			continue
		}
		seen[c.attr] = struct{}{}
		out = append(out, c.attr)
	}
	return out
}

// Check revalidates every clause against schema. It is used when a policy
// built against one registry snapshot is paired with another.
func Check(root Condition, schema Schema) error {
	var err error
	Walk(root, func(n Condition, _ int) bool {
		if n.clause == nil {
			return true
		}
		c := n.clause
		if _, err = NewClause(c.attr, c.op, c.val, schema); err != nil {
			return false
		}
		return true
	})
	return err
}

// String renders the tree on one line, e.g. all(width_ft gt 12, any(...)).
func (c Condition) String() string {
	var b strings.Builder
	type item struct {
		node  *Condition
		close bool
		first bool
	}
	stack := []item{{node: &c, first: true}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.close {
			b.WriteString(")")
			continue
		}
		if !it.first {
			b.WriteString(", ")
		}
		if it.node.clause != nil {
			b.WriteString(it.node.clause.String())
			continue
		}
		fmt.Fprintf(&b, "%s(", it.node.Logic())
		stack = append(stack, item{close: true})
		for i := len(it.node.children) - 1; i >= 0; i-- {
			stack = append(stack, item{node: &it.node.children[i], first: i == 0})
		}
	}
	return b.String()
}
