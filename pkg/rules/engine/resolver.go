package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"mercator-hq/permitgate/pkg/rules/policy"
	"mercator-hq/permitgate/pkg/rules/value"
)

// StrategyConflict records a matched policy whose merge strategy for a field
// was ignored because an earlier matched policy applied a different one.
type StrategyConflict struct {
	Field     string               `json:"field"`
	Chosen    policy.MergeStrategy `json:"chosen"`
	ChosenBy  string               `json:"chosen_by"`
	Ignored   policy.MergeStrategy `json:"ignored"`
	IgnoredBy string               `json:"ignored_by"`
}

// Resolver merges the outputs of matched policies field by field.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil logger uses slog.Default().
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger.With("component", "merge-resolver")}
}

// Merge collapses the outputs of matched (in match order) into one record.
//
// With no matched policies the base output is returned unchanged. Otherwise
// the result starts from base and every field set by a matched policy is
// recomputed. Every matched policy that sets a field, or declares a
// strategy for it, applies its own override or else the category default
// from fields, or Last when fields has none. The earliest such policy wins
// the strategy choice and later disagreeing policies are returned as
// conflicts. Values come from every matched policy that sets the field.
//
// Strategy from one policy with values from all is kept for compatibility
// with existing rule sets; domain owners may want to revisit it.
func (r *Resolver) Merge(matched []*policy.Policy, base policy.OutputRecord, fields policy.FieldTable) (policy.OutputRecord, []StrategyConflict, error) {
	return r.merge(matched, base, fields, nil)
}

func (r *Resolver) merge(matched []*policy.Policy, base policy.OutputRecord, fields policy.FieldTable, trace *Trace) (policy.OutputRecord, []StrategyConflict, error) {
	out := base.Clone()
	if len(matched) == 0 {
		return out, nil, nil
	}

	var conflicts []StrategyConflict
	for _, field := range outputFields(matched) {
		strategy, source, chosenBy, fieldConflicts := chooseStrategy(field, matched, fields)
		conflicts = append(conflicts, fieldConflicts...)
		for _, c := range fieldConflicts {
			r.logger.Warn("merge strategy conflict",
				"field", c.Field,
				"chosen", c.Chosen,
				"chosen_by", c.ChosenBy,
				"ignored", c.Ignored,
				"ignored_by", c.IgnoredBy,
			)
		}

		merged, contributors, err := mergeField(field, strategy, matched, fields)
		if err != nil {
			return nil, nil, err
		}
		out[field] = merged

		trace.addField(FieldTrace{
			Field:          field,
			Strategy:       strategy,
			StrategySource: source,
			StrategyPolicy: chosenBy,
			Contributors:   contributors,
		})
	}

	return out, conflicts, nil
}

// Merge is Resolver.Merge without logging.
func Merge(matched []*policy.Policy, base policy.OutputRecord, fields policy.FieldTable) (policy.OutputRecord, []StrategyConflict, error) {
	r := &Resolver{logger: slog.New(slog.DiscardHandler)}
	return r.merge(matched, base, fields, nil)
}

// outputFields returns every field set by a matched policy, sorted.
func outputFields(matched []*policy.Policy) []string {
	seen := make(map[string]struct{})
	for _, p := range matched {
		for f := range p.Output {
			seen[f] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for f := range seen {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// chooseStrategy picks the strategy for field from the earliest policy that
// sets the field or declares a strategy for it. Each such policy has an
// effective strategy: its own override, else the category default, else
// Last. Later policies whose effective strategy differs are reported as
// conflicts.
func chooseStrategy(field string, matched []*policy.Policy, fields policy.FieldTable) (policy.MergeStrategy, string, string, []StrategyConflict) {
	var (
		chosen   policy.MergeStrategy
		source   string
		chosenBy string
		found    bool
		conflict []StrategyConflict
	)
	for _, p := range matched {
		s, src, ok := effectiveStrategy(field, p, fields)
		if !ok {
			continue
		}
		if !found {
			chosen, source, chosenBy, found = s, src, p.ID, true
			continue
		}
		if s != chosen {
			conflict = append(conflict, StrategyConflict{
				Field:     field,
				Chosen:    chosen,
				ChosenBy:  chosenBy,
				Ignored:   s,
				IgnoredBy: p.ID,
			})
		}
	}
	if !found {
		s, src := categoryStrategy(field, fields)
		return s, src, "", nil
	}
	if source != SourcePolicy {
		chosenBy = ""
	}
	return chosen, source, chosenBy, conflict
}

// effectiveStrategy reports the strategy p applies to field. ok is false when
// p neither sets the field nor declares a strategy for it.
func effectiveStrategy(field string, p *policy.Policy, fields policy.FieldTable) (policy.MergeStrategy, string, bool) {
	if s, ok := p.MergeStrategies[field]; ok {
		return s, SourcePolicy, true
	}
	if _, ok := p.Output[field]; !ok {
		return "", "", false
	}
	s, src := categoryStrategy(field, fields)
	return s, src, true
}

func categoryStrategy(field string, fields policy.FieldTable) (policy.MergeStrategy, string) {
	if s, ok := fields.StrategyFor(field); ok {
		return s, SourceCategory
	}
	return policy.DefaultStrategy, SourceFallback
}

type contribution struct {
	policyID string
	v        value.Value
}

func mergeField(field string, strategy policy.MergeStrategy, matched []*policy.Policy, fields policy.FieldTable) (value.Value, []string, error) {
	var contribs []contribution
	for _, p := range matched {
		if v, ok := p.Output[field]; ok {
			contribs = append(contribs, contribution{policyID: p.ID, v: v})
		}
	}

	kind, declared := fields.KindOf(field)
	if !declared {
		kind = policy.FieldKindOf(contribs[0].v)
	}

	if !strategy.Supports(kind) {
		return value.Value{}, nil, &MergeError{
			Field:    field,
			Strategy: strategy,
			Kind:     kind,
			Cause:    fmt.Errorf("%w: %s cannot merge %s values", ErrTypeMismatch, strategy, kindName(kind)),
		}
	}

	ids := make([]string, len(contribs))
	for i, c := range contribs {
		ids[i] = c.policyID
		if got := policy.FieldKindOf(c.v); got != kind {
			return value.Value{}, nil, &MergeError{
				Field:    field,
				Strategy: strategy,
				Kind:     kind,
				PolicyID: c.policyID,
				Cause:    fmt.Errorf("%w: value %s is %s", ErrTypeMismatch, c.v, c.v.Kind()),
			}
		}
	}

	switch strategy {
	case policy.MergeFirst:
		return contribs[0].v, ids[:1], nil
	case policy.MergeLast:
		return contribs[len(contribs)-1].v, ids[len(ids)-1:], nil
	case policy.MergeMax, policy.MergeMin:
		best := contribs[0]
		for _, c := range contribs[1:] {
			x, _ := c.v.AsNumber()
			b, _ := best.v.AsNumber()
			if (strategy == policy.MergeMax && x > b) || (strategy == policy.MergeMin && x < b) {
				best = c
			}
		}
		return best.v, ids, nil
	case policy.MergeSum:
		var sum float64
		for _, c := range contribs {
			x, _ := c.v.AsNumber()
			sum += x
		}
		return value.Number(sum), ids, nil
	case policy.MergeUnion:
		if kind == policy.FieldBoolean {
			or := false
			for _, c := range contribs {
				b, _ := c.v.AsBool()
				or = or || b
			}
			return value.Bool(or), ids, nil
		}
		var items []value.Value
		for _, c := range contribs {
			for _, item := range c.v.Items() {
				if !containsValue(items, item) {
					items = append(items, item)
				}
			}
		}
		return value.Set(items...), ids, nil
	}

	return value.Value{}, nil, &MergeError{
		Field:    field,
		Strategy: strategy,
		Kind:     kind,
		Cause:    fmt.Errorf("unknown merge strategy %q", strategy),
	}
}

func containsValue(items []value.Value, v value.Value) bool {
	for _, item := range items {
		if item.Equal(v) {
			return true
		}
	}
	return false
}

func kindName(k policy.FieldKind) string {
	if k == "" {
		return "range"
	}
	return string(k)
}
