package engine

import (
	"sort"

	"mercator-hq/permitgate/pkg/rules/condition"
	"mercator-hq/permitgate/pkg/rules/policy"
)

// ConditionEvaluator evaluates a condition tree against a fact.
// *condition.Evaluator implements it.
type ConditionEvaluator interface {
	Evaluate(root condition.Condition, fact condition.Fact) (bool, error)
}

// MatchPolicies returns the published policies whose condition holds for
// fact, ordered by ascending priority. Policies without a priority follow
// every prioritized one, and ties keep input order.
//
// Placing unprioritized policies last is a local choice; the rule only
// requires a fallback to input order. It decides which policy picks the merge
// strategy in Merge, so it is open for review by the rule owners.
//
// Policies are evaluated in input order and the first failure aborts the
// match with a *MatchError.
func MatchPolicies(ev ConditionEvaluator, policies []*policy.Policy, fact condition.Fact) ([]*policy.Policy, error) {
	return matchPolicies(ev, policies, fact, nil)
}

func matchPolicies(ev ConditionEvaluator, policies []*policy.Policy, fact condition.Fact, trace *Trace) ([]*policy.Policy, error) {
	matched := make([]*policy.Policy, 0, len(policies))

	for _, p := range policies {
		if !p.IsPublished() {
			trace.addPolicy(PolicyTrace{PolicyID: p.ID, Status: p.Status, Skipped: "not published"})
			continue
		}

		ok, err := ev.Evaluate(p.Condition, fact)
		if err != nil {
			return nil, &MatchError{PolicyID: p.ID, Cause: err}
		}
		trace.addPolicy(PolicyTrace{PolicyID: p.ID, Status: p.Status, Evaluated: true, Matched: ok, Priority: p.Priority})
		if ok {
			matched = append(matched, p)
		}
	}

	sortByPriority(matched)
	return matched, nil
}

// sortByPriority orders policies in place: prioritized ascending, then the
// rest. The sort is stable so equal keys keep input order.
func sortByPriority(policies []*policy.Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		pi, iok := policies[i].PriorityValue()
		pj, jok := policies[j].PriorityValue()
		if iok != jok {
			return iok
		}
		return iok && pi < pj
	})
}
