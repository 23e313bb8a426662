package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mercator-hq/permitgate/pkg/evidence/recorder"
	"mercator-hq/permitgate/pkg/rules/condition"
	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/parser"
	"mercator-hq/permitgate/pkg/rules/policy"
	"mercator-hq/permitgate/pkg/server/types"
	"mercator-hq/permitgate/pkg/telemetry/logging"
	"mercator-hq/permitgate/pkg/telemetry/tracing"
)

// EvaluateHandler serves POST /v1/evaluate.
type EvaluateHandler struct {
	Snapshots    SnapshotSource
	Engine       Evaluator
	Evidence     EvidenceRecorder // optional
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// ServeHTTP evaluates one fact against one category, or against every
// category with published policies when the request names none.
//
// Status codes: 400 for malformed requests and unknown categories, 422 when
// the fact does not fit the attribute registry, 503 before the first bundle
// load and 500 when any category evaluation fails. A 500 still carries the
// per-category results, with the failed ones reported as outcome "error".
func (h *EvaluateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req types.EvaluateRequest
	if rerr := decodeJSON(w, r, h.MaxBodyBytes, &req); rerr != nil {
		writeError(w, rerr.status, rerr.resp)
		return
	}
	if req.Fact == nil {
		writeError(w, http.StatusBadRequest, types.NewInvalidRequestError("fact is required", "fact", types.CodeMissingField))
		return
	}

	snap := h.Snapshots.Snapshot()
	if snap == nil {
		noSnapshot(w)
		return
	}
	ctx = logging.WithBundleVersion(ctx, snap.Version)

	categories, errResp := selectCategories(snap, req.Category)
	if errResp != nil {
		writeError(w, http.StatusBadRequest, errResp)
		return
	}

	fact, err := parser.ParseFact(req.Fact, snap.Registry)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, types.NewErrorResponse(
			"fact does not match the attribute registry", types.ErrorTypeInvalidFact, "fact", types.CodeInvalidValue,
		).WithDetails(errorDetails(err)...))
		return
	}

	var opts []engine.EvalOption
	if req.Trace {
		opts = append(opts, engine.WithTrace())
	}

	results := make([]types.CategoryResult, len(categories))
	var wg sync.WaitGroup
	for i, cat := range categories {
		wg.Go(func() {
			results[i] = h.evaluate(ctx, snap, cat, fact, opts)
		})
	}
	wg.Wait()

	status := http.StatusOK
	for _, res := range results {
		if res.Outcome == engine.OutcomeError {
			status = http.StatusInternalServerError
			break
		}
	}

	writeJSON(w, status, types.EvaluateResponse{
		RequestID:     logging.GetRequestID(ctx),
		BundleVersion: snap.Version,
		Results:       results,
	})
}

func (h *EvaluateHandler) evaluate(ctx context.Context, snap *engine.Snapshot, cat policy.Category, fact condition.Fact, opts []engine.EvalOption) types.CategoryResult {
	ctx, span := tracing.StartEvaluation(ctx, string(cat), snap.Version)
	defer span.End()

	start := time.Now()
	res, err := h.Engine.Evaluate(ctx, cat, snap, fact, opts...)
	if err != nil {
		tracing.SetError(span, err)
	} else {
		tracing.SetEvaluationResult(span, string(res.Outcome()), len(res.MatchedPolicyIDs), len(res.Conflicts))
	}
	record(ctx, h.Evidence, h.logger(), recorder.Evaluation{
		RequestID:     logging.GetRequestID(ctx),
		Category:      cat,
		BundleVersion: snap.Version,
		Fact:          fact,
		Result:        res,
		Err:           err,
		Duration:      time.Since(start),
	})
	if err != nil {
		return types.ErrorResult(cat, err)
	}
	return types.NewCategoryResult(res)
}

func (h *EvaluateHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// selectCategories returns the requested category, or every category with
// published policies in catalog order.
func selectCategories(snap *engine.Snapshot, requested string) ([]policy.Category, *types.ErrorResponse) {
	if requested != "" {
		cat := policy.Category(requested)
		if _, ok := snap.Catalog.Get(cat); !ok {
			return nil, types.NewInvalidRequestError(
				fmt.Sprintf("unknown category %q", requested), "category", types.CodeUnknownCategory)
		}
		return []policy.Category{cat}, nil
	}

	var cats []policy.Category
	for _, cat := range snap.Catalog.Categories() {
		for _, p := range snap.Policies(cat) {
			if p.IsPublished() {
				cats = append(cats, cat)
				break
			}
		}
	}
	return cats, nil
}

// record hands an outcome to the evidence recorder. Recording failures are
// logged and never fail the request.
func record(ctx context.Context, rec EvidenceRecorder, logger *slog.Logger, ev recorder.Evaluation) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, ev); err != nil {
		logger.WarnContext(ctx, "failed to record evidence",
			"category", ev.Category,
			"error", err,
		)
	}
}
