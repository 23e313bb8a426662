// Package health runs readiness checks for the evaluation server.
//
// A Checker holds named CheckFuncs. CheckReadiness runs them concurrently,
// each bounded by the checker's timeout, and reports "ready" only when every
// check passes:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("bundle", func(ctx context.Context) error {
//		if store.Snapshot() == nil {
//			return errors.New("no policy bundle loaded")
//		}
//		return nil
//	})
//	status := checker.CheckReadiness(ctx)
//
// Liveness carries no checks: a process that can answer is alive.
package health
