// Package middleware provides the HTTP middleware of the evaluation API:
// panic recovery, request IDs, access logging, CORS, request deadlines,
// tracing and per-route metrics.
//
// The server composes them outermost first:
//
//	handler := middleware.Chain(mux,
//	    middleware.RecoveryMiddleware(logger),
//	    middleware.RequestIDMiddleware,
//	    middleware.LoggingMiddleware(logger),
//	    middleware.CORSMiddleware(&cfg.Server.CORS),
//	    middleware.TimeoutMiddleware(cfg.Server.RequestTimeout),
//	    middleware.TracingMiddleware,
//	    middleware.MetricsMiddleware(collector),
//	)
//
// MetricsMiddleware must stay innermost, with TracingMiddleware directly
// outside it, so both see the route pattern the mux matched. Request IDs
// are stored with logging.WithRequestID, so any logger built by
// pkg/telemetry/logging attaches them to every record logged with the
// request context.
package middleware
