package handlers

import (
	"fmt"
	"net/http"

	"mercator-hq/permitgate/pkg/rules/policy"
	"mercator-hq/permitgate/pkg/server/types"
)

// PoliciesHandler serves GET /v1/policies. The optional category and
// status query parameters filter the list.
type PoliciesHandler struct {
	Snapshots SnapshotSource
}

// ServeHTTP implements http.Handler.
func (h *PoliciesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.Snapshots.Snapshot()
	if snap == nil {
		noSnapshot(w)
		return
	}

	q := r.URL.Query()
	category := policy.Category(q.Get("category"))
	if category != "" {
		if _, ok := snap.Catalog.Get(category); !ok {
			writeError(w, http.StatusBadRequest, types.NewInvalidRequestError(
				fmt.Sprintf("unknown category %q", category), "category", types.CodeUnknownCategory))
			return
		}
	}
	var status policy.Status
	if s := q.Get("status"); s != "" {
		parsed, err := policy.ParseStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, types.NewInvalidRequestError(err.Error(), "status", types.CodeInvalidValue))
			return
		}
		status = parsed
	}

	policies := snap.AllPolicies()
	if category != "" {
		policies = snap.Policies(category)
	}

	summaries := make([]types.PolicySummary, 0, len(policies))
	for _, p := range policies {
		if status != "" && p.Status != status {
			continue
		}
		summaries = append(summaries, types.PolicySummary{
			ID:           p.ID,
			Category:     p.Category,
			Status:       p.Status,
			Priority:     p.Priority,
			Jurisdiction: p.Jurisdiction,
			Description:  p.Description,
			Condition:    p.Condition.String(),
			Output:       p.Output,
			Origin:       p.Origin,
		})
	}

	writeJSON(w, http.StatusOK, types.PoliciesResponse{
		BundleVersion: snap.Version,
		LoadedAt:      snap.LoadedAt,
		Total:         snap.Len(),
		Published:     snap.PublishedCount(),
		Policies:      summaries,
	})
}

// AttributesHandler serves GET /v1/attributes.
type AttributesHandler struct {
	Snapshots SnapshotSource
}

// ServeHTTP implements http.Handler.
func (h *AttributesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.Snapshots.Snapshot()
	if snap == nil {
		noSnapshot(w)
		return
	}

	attrs := make([]types.AttributeSummary, 0, snap.Registry.Len())
	for _, name := range snap.Registry.SortedNames() {
		a, _ := snap.Registry.Lookup(name)
		ops := a.LegalOperators()
		opNames := make([]string, len(ops))
		for i, op := range ops {
			opNames[i] = string(op)
		}
		attrs = append(attrs, types.AttributeSummary{
			Name:        a.Name,
			Kind:        string(a.Kind),
			Values:      a.Values,
			Unit:        a.Unit,
			Discrete:    a.Discrete,
			Description: a.Description,
			Operators:   opNames,
		})
	}

	writeJSON(w, http.StatusOK, types.AttributesResponse{
		BundleVersion: snap.Version,
		Attributes:    attrs,
	})
}

// CategoriesHandler serves GET /v1/categories.
type CategoriesHandler struct {
	Snapshots SnapshotSource
}

// ServeHTTP implements http.Handler.
func (h *CategoriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.Snapshots.Snapshot()
	if snap == nil {
		noSnapshot(w)
		return
	}

	cats := snap.Catalog.Categories()
	out := make([]types.CategorySummary, 0, len(cats))
	for _, cat := range cats {
		spec, _ := snap.Catalog.Get(cat)
		fields := make(map[string]types.FieldSummary, len(spec.Fields))
		for name, f := range spec.Fields {
			fs := types.FieldSummary{Kind: f.Kind, Strategy: f.Strategy}
			if f.Default.IsValid() {
				d := f.Default
				fs.Default = &d
			}
			fields[name] = fs
		}
		out = append(out, types.CategorySummary{
			Name:        spec.Name,
			Description: spec.Description,
			Fields:      fields,
		})
	}

	writeJSON(w, http.StatusOK, types.CategoriesResponse{
		BundleVersion: snap.Version,
		Categories:    out,
	})
}
