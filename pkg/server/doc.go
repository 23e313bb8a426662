// Package server provides the HTTP server of the evaluation API.
//
// # Routes
//
//	POST /v1/evaluate         evaluate one fact (one category or all)
//	POST /v1/evaluate/batch   evaluate many facts against one category
//	GET  /v1/policies         loaded policies (?category=, ?status=)
//	GET  /v1/attributes       declared attributes and their operators
//	GET  /v1/categories       output fields and merge strategies per category
//	POST /v1/reload           reload the rule bundle
//	GET  /v1/status           reload status of the rule store
//	GET  /v1/evidence         query evidence records
//	GET  /v1/evidence/{id}    one evidence record
//	GET  /health              liveness
//	GET  /ready               readiness (a bundle is loaded)
//	GET  /metrics             Prometheus metrics (path configurable)
//
// # Basic Usage
//
//	srv, err := server.NewServer(cfg, server.Deps{
//	    Store:    store,
//	    Engine:   eng,
//	    Recorder: rec,
//	    Evidence: evidenceStore,
//	    Metrics:  collector,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // returns after ctx is cancelled and shutdown completes
//
// The middleware chain, outermost first, is recovery, request ID, logging
// and metrics. Metrics are labelled by route pattern, never by raw path.
package server
