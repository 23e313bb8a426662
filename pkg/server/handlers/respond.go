package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"mercator-hq/permitgate/pkg/server/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp *types.ErrorResponse) {
	writeJSON(w, status, resp)
}

// requestError is a failed request decode with the status to answer.
type requestError struct {
	status int
	resp   *types.ErrorResponse
}

// decodeJSON reads a single JSON document of at most maxBytes into v.
// Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) *requestError {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return &requestError{
				status: http.StatusRequestEntityTooLarge,
				resp:   types.NewInvalidRequestError(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), "", types.CodeBodyTooLarge),
			}
		case errors.Is(err, io.EOF):
			return &requestError{
				status: http.StatusBadRequest,
				resp:   types.NewInvalidRequestError("request body is empty", "", types.CodeInvalidJSON),
			}
		default:
			return &requestError{
				status: http.StatusBadRequest,
				resp:   types.NewInvalidRequestError(fmt.Sprintf("invalid JSON: %v", err), "", types.CodeInvalidJSON),
			}
		}
	}
	if dec.More() {
		return &requestError{
			status: http.StatusBadRequest,
			resp:   types.NewInvalidRequestError("request body must contain a single JSON document", "", types.CodeInvalidJSON),
		}
	}
	return nil
}

// errorDetails flattens a joined error into one message per problem.
func errorDetails(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func noSnapshot(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, types.NewErrorResponse(
		"no policy bundle loaded", types.ErrorTypeServiceUnavailable, "", types.CodeNoSnapshot))
}
