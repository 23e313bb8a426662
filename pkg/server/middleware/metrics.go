package middleware

import (
	"net/http"
	"time"
)

// HTTPRecorder receives per-request telemetry.
type HTTPRecorder interface {
	RecordHTTPRequest(route string, code int, duration time.Duration)
}

// unmatchedRoute labels requests no route pattern matched, so arbitrary
// paths never become label values.
const unmatchedRoute = "unmatched"

// MetricsMiddleware records request count and latency per route pattern.
// It must wrap the http.ServeMux directly: the mux stores the matched
// pattern on the request it is given.
func MetricsMiddleware(recorder HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			recorder.RecordHTTPRequest(route, rw.statusCode, time.Since(start))
		})
	}
}

// Chain applies middlewares so the first one is the outermost.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
