package handlers

import (
	"net/http"

	"mercator-hq/permitgate/pkg/server/types"
)

// ReloadHandler serves POST /v1/reload.
type ReloadHandler struct {
	Store Reloader
}

// reloadResponse wraps the store status after a reload attempt.
type reloadResponse struct {
	Reloaded bool `json:"reloaded"`
	Status   any  `json:"status"`
}

// ServeHTTP reloads the bundle. A failed reload answers 500 and leaves the
// previous snapshot serving.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reload(r.Context()); err != nil {
		resp := types.NewErrorResponse("bundle reload failed, previous bundle still active",
			types.ErrorTypeServerError, "", types.CodeReloadFailed).WithDetails(errorDetails(err)...)
		writeError(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Reloaded: true, Status: h.Store.Status()})
}

// StatusHandler serves GET /v1/status with the reload status of the store.
type StatusHandler struct {
	Store Reloader
}

// ServeHTTP implements http.Handler.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.Status())
}
