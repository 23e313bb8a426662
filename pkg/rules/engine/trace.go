package engine

import "mercator-hq/permitgate/pkg/rules/policy"

// Trace explains one evaluation: what happened to every policy of the
// category and how every merged field was resolved. Trace methods are safe
// on a nil receiver so untraced evaluations pay nothing.
type Trace struct {
	Policies []PolicyTrace `json:"policies"`
	Fields   []FieldTrace  `json:"fields,omitempty"`
}

// PolicyTrace records the matching outcome for one policy.
type PolicyTrace struct {
	PolicyID  string        `json:"policy_id"`
	Status    policy.Status `json:"status"`
	Priority  *int          `json:"priority,omitempty"`
	Evaluated bool          `json:"evaluated"`
	Matched   bool          `json:"matched"`
	Skipped   string        `json:"skipped,omitempty"`
}

// Strategy sources recorded in FieldTrace.
const (
	SourcePolicy   = "policy"
	SourceCategory = "category"
	SourceFallback = "fallback"
)

// FieldTrace records how one output field was merged.
type FieldTrace struct {
	Field          string               `json:"field"`
	Strategy       policy.MergeStrategy `json:"strategy"`
	StrategySource string               `json:"strategy_source"`
	StrategyPolicy string               `json:"strategy_policy,omitempty"`
	Contributors   []string             `json:"contributors"`
}

func (t *Trace) addPolicy(p PolicyTrace) {
	if t == nil {
		return
	}
	t.Policies = append(t.Policies, p)
}

func (t *Trace) addField(f FieldTrace) {
	if t == nil {
		return
	}
	t.Fields = append(t.Fields, f)
}
