// Package tracing provides OpenTelemetry tracing for the evaluation server.
//
// New installs a global tracer provider that exports spans over OTLP/gRPC
// and a W3C Trace Context propagator, so an upstream traceparent header
// continues into this service. Two span kinds are produced:
//
//   - a server span per HTTP request, named by method and route
//   - an internal span per category evaluation, carrying the category,
//     bundle version, outcome and matched policy count
//
// Sampling is configured as "always", "never" or "ratio", always wrapped in
// ParentBased. With tracing disabled the helpers hit the default no-op
// provider.
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: otel-collector:4317
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
package tracing
