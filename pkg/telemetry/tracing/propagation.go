package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Extract returns ctx carrying the W3C trace context found in headers.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject writes the trace context of ctx into headers.
func Inject(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// StartEvaluation starts the span around one category evaluation using the
// global tracer provider, so it is a no-op until New installs one.
func StartEvaluation(ctx context.Context, category, bundleVersion string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "evaluate "+category,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrCategory, category),
			attribute.String(AttrBundleVersion, bundleVersion),
		),
	)
}

// StartRequest starts the server span for an HTTP request. The span name is
// refined to the matched route once the mux has run.
func StartRequest(ctx context.Context, r *http.Request) (context.Context, trace.Span) {
	ctx = Extract(ctx, r.Header)
	return otel.Tracer(instrumentationName).Start(ctx, r.Method,
		trace.WithSpanKind(trace.SpanKindServer),
	)
}
