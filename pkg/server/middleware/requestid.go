package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"mercator-hq/permitgate/pkg/telemetry/logging"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client-supplied IDs before they reach logs and
// evidence records.
const maxRequestIDLength = 128

// RequestIDMiddleware propagates the client's X-Request-ID or assigns a
// UUID, stores it in the context for logging and evidence, and echoes it in
// the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}

// GetRequestID extracts the request ID from the context, or "".
func GetRequestID(ctx context.Context) string {
	return logging.GetRequestID(ctx)
}
