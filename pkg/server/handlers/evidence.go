package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mercator-hq/permitgate/pkg/evidence"
	"mercator-hq/permitgate/pkg/evidence/query"
	"mercator-hq/permitgate/pkg/server/types"
)

// EvidenceHandler serves GET /v1/evidence and GET /v1/evidence/{id}.
type EvidenceHandler struct {
	Storage      evidence.Storage // nil when evidence is disabled
	DefaultLimit int
	MaxLimit     int
	Logger       *slog.Logger
}

// evidenceList is the body of GET /v1/evidence.
type evidenceList struct {
	Records []*evidence.Record `json:"records"`
	Total   int64              `json:"total"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

// List answers a filtered query. Supported parameters: category, outcome,
// policy_id, request_id, bundle_version, start and end (RFC 3339), limit,
// offset and order (asc|desc).
func (h *EvidenceHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Storage == nil {
		evidenceDisabled(w)
		return
	}

	q, err := parseEvidenceQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, types.NewInvalidRequestError(err.Error(), "", types.CodeInvalidValue))
		return
	}
	query.ApplyDefaults(q, h.DefaultLimit)
	if err := query.Validate(q, h.MaxLimit); err != nil {
		writeError(w, http.StatusBadRequest, types.NewInvalidRequestError(err.Error(), "", types.CodeInvalidValue))
		return
	}

	records, err := h.Storage.Query(r.Context(), q)
	if err != nil {
		h.serverError(w, r, "evidence query failed", err)
		return
	}
	total, err := h.Storage.Count(r.Context(), q)
	if err != nil {
		h.serverError(w, r, "evidence count failed", err)
		return
	}

	writeJSON(w, http.StatusOK, evidenceList{Records: records, Total: total, Limit: q.Limit, Offset: q.Offset})
}

// Get returns one record.
func (h *EvidenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Storage == nil {
		evidenceDisabled(w)
		return
	}

	id := r.PathValue("id")
	rec, err := h.Storage.Get(r.Context(), id)
	if errors.Is(err, evidence.ErrNotFound) {
		writeError(w, http.StatusNotFound, types.NewErrorResponse(
			fmt.Sprintf("evidence record %s not found", id), types.ErrorTypeNotFound, "id", ""))
		return
	}
	if err != nil {
		h.serverError(w, r, "evidence lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *EvidenceHandler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(r.Context(), msg, "error", err)
	writeError(w, http.StatusInternalServerError, types.NewServerError(msg))
}

func evidenceDisabled(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, types.NewErrorResponse(
		"evidence recording is disabled", types.ErrorTypeServiceUnavailable, "", ""))
}

func parseEvidenceQuery(v url.Values) (*evidence.Query, error) {
	q := &evidence.Query{
		Category:      v.Get("category"),
		Outcome:       v.Get("outcome"),
		PolicyID:      v.Get("policy_id"),
		RequestID:     v.Get("request_id"),
		BundleVersion: v.Get("bundle_version"),
		SortOrder:     v.Get("order"),
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start", &q.StartTime}, {"end", &q.EndTime}} {
		s := v.Get(p.name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%s: expected an RFC 3339 timestamp, got %q", p.name, s)
		}
		*p.dst = &t
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &q.Limit}, {"offset", &q.Offset}} {
		s := v.Get(p.name)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%s: expected an integer, got %q", p.name, s)
		}
		*p.dst = n
	}
	return q, nil
}
