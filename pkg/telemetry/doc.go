// Package telemetry groups the observability packages of the evaluation
// service.
//
// # Components
//
//   - logging: slog construction and request-scoped attributes
//   - metrics: Prometheus collectors for evaluations, reloads and HTTP
//   - tracing: OpenTelemetry spans for requests and category evaluations
//   - health: readiness checks behind GET /ready
//
// Each package is wired by cmd/permitgate serve:
//
//	logger, err := logging.New(logging.Config{Level: cfg.Telemetry.Logging.Level, Format: cfg.Telemetry.Logging.Format})
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
package telemetry
