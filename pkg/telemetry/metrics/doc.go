// Package metrics exposes PermitGate's Prometheus metrics.
//
// # Metrics
//
//   - permitgate_evaluations_total{category,outcome}
//   - permitgate_evaluation_duration_seconds{category}
//   - permitgate_policy_matches_total{category,policy}
//   - permitgate_merge_conflicts_total{category,field}
//   - permitgate_bundle_reloads_total{status}
//   - permitgate_policies_loaded
//   - permitgate_http_requests_total{route,code}
//   - permitgate_http_request_duration_seconds{route}
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	eng, _ := engine.New(engine.DefaultEngineConfig(), logger, collector)
//	mux.Handle("/metrics", collector.Handler())
//
// Policy labels are capped; matches beyond the cap are counted under
// policy="other".
package metrics
