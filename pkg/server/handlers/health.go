package handlers

import (
	"context"
	"errors"
	"net/http"

	"mercator-hq/permitgate/pkg/telemetry/health"
)

// HealthHandler handles liveness probes.
type HealthHandler struct {
	checker *health.Checker
}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checker: health.New(0)}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.checker.CheckLiveness())
}

// ReadyHandler handles readiness probes: ready once a bundle is loaded and
// every other registered check passes.
type ReadyHandler struct {
	Snapshots SnapshotSource
	Checker   *health.Checker
}

type readyResponse struct {
	health.Status
	BundleVersion string `json:"bundle_version,omitempty"`
	Policies      int    `json:"policies,omitempty"`
	Published     int    `json:"published,omitempty"`
}

// NewReadyHandler creates a readiness handler. It registers a "bundle" check
// on checker, creating one when checker is nil.
func NewReadyHandler(snaps SnapshotSource, checker *health.Checker) *ReadyHandler {
	if checker == nil {
		checker = health.New(0)
	}
	checker.RegisterCheck("bundle", BundleCheck(snaps))
	return &ReadyHandler{Snapshots: snaps, Checker: checker}
}

// BundleCheck fails until a snapshot is active.
func BundleCheck(snaps SnapshotSource) health.CheckFunc {
	return func(ctx context.Context) error {
		if snaps.Snapshot() == nil {
			return errors.New("no policy bundle loaded")
		}
		return nil
	}
}

// ServeHTTP implements http.Handler.
func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Status: h.Checker.CheckReadiness(r.Context())}
	if snap := h.Snapshots.Snapshot(); snap != nil {
		resp.BundleVersion = snap.Version
		resp.Policies = snap.Len()
		resp.Published = snap.PublishedCount()
	}

	status := http.StatusOK
	if !resp.Ready() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
