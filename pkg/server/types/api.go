package types

import (
	"time"

	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/policy"
	"mercator-hq/permitgate/pkg/rules/value"
)

// EvaluateRequest is the body of POST /v1/evaluate. An empty Category
// evaluates every category that has published policies.
type EvaluateRequest struct {
	Category string         `json:"category,omitempty"`
	Fact     map[string]any `json:"fact"`
	Trace    bool           `json:"trace,omitempty"`
}

// EvaluateResponse carries one result per evaluated category.
type EvaluateResponse struct {
	RequestID     string           `json:"request_id"`
	BundleVersion string           `json:"bundle_version"`
	Results       []CategoryResult `json:"results"`
}

// CategoryResult is the outcome for one category. Failed evaluations carry
// Outcome "error" and Error, never an empty match.
type CategoryResult struct {
	Category         policy.Category           `json:"category"`
	Outcome          engine.Outcome            `json:"outcome"`
	MatchedPolicyIDs []string                  `json:"matched_policy_ids"`
	Output           policy.OutputRecord       `json:"output,omitempty"`
	Conflicts        []engine.StrategyConflict `json:"conflicts,omitempty"`
	Trace            *engine.Trace             `json:"trace,omitempty"`
	Error            string                    `json:"error,omitempty"`
}

// NewCategoryResult converts an engine result.
func NewCategoryResult(r *engine.EvaluationResult) CategoryResult {
	ids := r.MatchedPolicyIDs
	if ids == nil {
		ids = []string{}
	}
	return CategoryResult{
		Category:         r.Category,
		Outcome:          r.Outcome(),
		MatchedPolicyIDs: ids,
		Output:           r.Output,
		Conflicts:        r.Conflicts,
		Trace:            r.Trace,
	}
}

// ErrorResult builds the result for a failed category evaluation.
func ErrorResult(category policy.Category, err error) CategoryResult {
	return CategoryResult{
		Category:         category,
		Outcome:          engine.OutcomeError,
		MatchedPolicyIDs: []string{},
		Error:            err.Error(),
	}
}

// BatchRequest is the body of POST /v1/evaluate/batch.
type BatchRequest struct {
	Category string           `json:"category"`
	Facts    []map[string]any `json:"facts"`
	Trace    bool             `json:"trace,omitempty"`
}

// BatchResponse carries one item per input fact, in input order.
type BatchResponse struct {
	RequestID     string      `json:"request_id"`
	BundleVersion string      `json:"bundle_version"`
	Category      string      `json:"category"`
	Items         []BatchItem `json:"items"`
	Errors        int         `json:"errors"`
}

// BatchItem is the outcome for one fact of a batch. Rejected facts carry
// Outcome "error" with FactErrors.
type BatchItem struct {
	Index      int `json:"index"`
	CategoryResult
	FactErrors []string `json:"fact_errors,omitempty"`
}

// PolicySummary describes one loaded policy.
type PolicySummary struct {
	ID           string              `json:"id"`
	Category     policy.Category     `json:"category"`
	Status       policy.Status       `json:"status"`
	Priority     *int                `json:"priority,omitempty"`
	Jurisdiction string              `json:"jurisdiction,omitempty"`
	Description  string              `json:"description,omitempty"`
	Condition    string              `json:"condition"`
	Output       policy.OutputRecord `json:"output"`
	Origin       string              `json:"origin,omitempty"`
}

// PoliciesResponse is the body of GET /v1/policies.
type PoliciesResponse struct {
	BundleVersion string          `json:"bundle_version"`
	LoadedAt      time.Time       `json:"loaded_at"`
	Total         int             `json:"total"`
	Published     int             `json:"published"`
	Policies      []PolicySummary `json:"policies"`
}

// AttributeSummary describes one declared attribute.
type AttributeSummary struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Values      []string `json:"values,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Discrete    bool     `json:"discrete,omitempty"`
	Description string   `json:"description,omitempty"`
	Operators   []string `json:"operators"`
}

// AttributesResponse is the body of GET /v1/attributes.
type AttributesResponse struct {
	BundleVersion string             `json:"bundle_version"`
	Attributes    []AttributeSummary `json:"attributes"`
}

// CategorySummary describes one category of the catalog.
type CategorySummary struct {
	Name        policy.Category         `json:"name"`
	Description string                  `json:"description,omitempty"`
	Fields      map[string]FieldSummary `json:"fields"`
}

// FieldSummary describes one output field of a category.
type FieldSummary struct {
	Kind     policy.FieldKind     `json:"kind"`
	Strategy policy.MergeStrategy `json:"strategy"`
	Default  *value.Value         `json:"default,omitempty"`
}

// CategoriesResponse is the body of GET /v1/categories.
type CategoriesResponse struct {
	BundleVersion string            `json:"bundle_version"`
	Categories    []CategorySummary `json:"categories"`
}
