package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"mercator-hq/permitgate/pkg/telemetry/logging"
	"mercator-hq/permitgate/pkg/telemetry/tracing"
)

// TracingMiddleware opens a server span per request, continuing any W3C
// trace context the caller sent, and returns the trace ID in X-Trace-ID.
// It must sit directly outside MetricsMiddleware so the route pattern the
// mux records is visible on the request it passes down.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartRequest(r.Context(), r)
		defer span.End()

		if id := tracing.TraceID(ctx); id != "" {
			w.Header().Set("X-Trace-ID", id)
		}
		span.SetAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
		)
		if id := logging.GetRequestID(ctx); id != "" {
			span.SetAttributes(attribute.String(tracing.AttrRequestID, id))
		}

		rw := newResponseWriter(w)
		r = r.WithContext(ctx)
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = unmatchedRoute
		}
		span.SetName(route)
		span.SetAttributes(
			semconv.HTTPRoute(route),
			semconv.HTTPResponseStatusCode(rw.statusCode),
		)
		if rw.statusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
		}
	})
}
