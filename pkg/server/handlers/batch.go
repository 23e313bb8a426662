package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/permitgate/pkg/evidence/recorder"
	"mercator-hq/permitgate/pkg/rules/condition"
	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/parser"
	"mercator-hq/permitgate/pkg/rules/policy"
	"mercator-hq/permitgate/pkg/server/types"
	"mercator-hq/permitgate/pkg/telemetry/logging"
	"mercator-hq/permitgate/pkg/telemetry/tracing"
)

var errInvalidFact = errors.New("invalid fact")

// BatchHandler serves POST /v1/evaluate/batch.
type BatchHandler struct {
	Snapshots    SnapshotSource
	Engine       Evaluator
	Evidence     EvidenceRecorder // optional
	MaxBodyBytes int64
	MaxBatchSize int
	Logger       *slog.Logger
}

// ServeHTTP evaluates many facts against one category. Every fact gets its
// own item: a rejected or failed fact is reported as outcome "error" in its
// item while the others evaluate normally, so the response is 200 unless
// the request itself is unusable.
func (h *BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var req types.BatchRequest
	if rerr := decodeJSON(w, r, h.MaxBodyBytes, &req); rerr != nil {
		writeError(w, rerr.status, rerr.resp)
		return
	}
	if req.Category == "" {
		writeError(w, http.StatusBadRequest, types.NewInvalidRequestError("category is required", "category", types.CodeMissingField))
		return
	}
	if len(req.Facts) == 0 {
		writeError(w, http.StatusBadRequest, types.NewInvalidRequestError("facts must not be empty", "facts", types.CodeMissingField))
		return
	}
	if h.MaxBatchSize > 0 && len(req.Facts) > h.MaxBatchSize {
		writeError(w, http.StatusBadRequest, types.NewInvalidRequestError(
			fmt.Sprintf("batch of %d facts exceeds the limit of %d", len(req.Facts), h.MaxBatchSize), "facts", types.CodeInvalidValue))
		return
	}

	snap := h.Snapshots.Snapshot()
	if snap == nil {
		noSnapshot(w)
		return
	}
	ctx = logging.WithBundleVersion(ctx, snap.Version)

	cat := policy.Category(req.Category)
	if _, ok := snap.Catalog.Get(cat); !ok {
		writeError(w, http.StatusBadRequest, types.NewInvalidRequestError(
			fmt.Sprintf("unknown category %q", req.Category), "category", types.CodeUnknownCategory))
		return
	}

	items := make([]types.BatchItem, len(req.Facts))
	var (
		facts   []condition.Fact
		indexes []int
	)
	for i, raw := range req.Facts {
		fact, err := parser.ParseFact(raw, snap.Registry)
		if err != nil {
			items[i] = types.BatchItem{
				Index:          i,
				CategoryResult: types.ErrorResult(cat, errInvalidFact),
				FactErrors:     errorDetails(err),
			}
			continue
		}
		facts = append(facts, fact)
		indexes = append(indexes, i)
	}

	var opts []engine.EvalOption
	if req.Trace {
		opts = append(opts, engine.WithTrace())
	}

	ctx, span := tracing.StartEvaluation(ctx, string(cat), snap.Version)
	defer span.End()
	span.SetAttributes(attribute.Int(tracing.AttrBatchSize, len(req.Facts)))

	start := time.Now()
	evaluated, err := h.Engine.EvaluateBatch(ctx, cat, snap, facts, opts...)
	if err != nil {
		tracing.SetError(span, err)
		// only a cancelled request gets here
		logger.WarnContext(ctx, "batch evaluation aborted", "error", err)
		writeError(w, http.StatusServiceUnavailable, types.NewErrorResponse(
			fmt.Sprintf("batch aborted: %v", err), types.ErrorTypeServiceUnavailable, "", ""))
		return
	}
	perFact := time.Since(start) / time.Duration(max(len(facts), 1))

	for j, item := range evaluated {
		i := indexes[j]
		record(ctx, h.Evidence, logger, recorder.Evaluation{
			RequestID:     logging.GetRequestID(ctx),
			Category:      cat,
			BundleVersion: snap.Version,
			Fact:          facts[j],
			Result:        item.Result,
			Err:           item.Err,
			Duration:      perFact,
		})
		if item.Err != nil {
			items[i] = types.BatchItem{Index: i, CategoryResult: types.ErrorResult(cat, item.Err)}
			continue
		}
		items[i] = types.BatchItem{Index: i, CategoryResult: types.NewCategoryResult(item.Result)}
	}

	errCount := 0
	for _, item := range items {
		if item.Outcome == engine.OutcomeError {
			errCount++
		}
	}

	writeJSON(w, http.StatusOK, types.BatchResponse{
		RequestID:     logging.GetRequestID(ctx),
		BundleVersion: snap.Version,
		Category:      req.Category,
		Items:         items,
		Errors:        errCount,
	})
}
