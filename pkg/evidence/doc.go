// Package evidence records every rule evaluation as an immutable audit
// record.
//
// # Architecture
//
// The evidence system consists of four layers:
//
//  1. Recorder (package recorder) builds records from evaluation outcomes and
//     writes them asynchronously.
//  2. Storage (package storage) persists records in SQLite or memory.
//  3. Query (package query) validates filters and applies limits.
//  4. Retention (package retention) prunes old records on a cron schedule,
//     optionally archiving them with package export first.
//
// # Evidence Records
//
// Each record captures the request ID, the category, the bundle version the
// evaluation ran against, the fact (and its SHA-256 hash), the matched policy
// IDs, the merged output, the outcome and any error. A failed evaluation is
// recorded with outcome "error", never as a no-match.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(storage.DefaultSQLiteConfig(), logger)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	rec := recorder.NewRecorder(store, recorder.DefaultConfig(), logger)
//	defer rec.Close()
//
//	rec.Record(ctx, recorder.Evaluation{
//		RequestID: reqID,
//		Category:  policy.CategoryEscort,
//		Fact:      fact,
//		Result:    result,
//		Duration:  elapsed,
//	})
//
// # Querying
//
//	records, err := store.Query(ctx, &evidence.Query{
//		Category: "escort",
//		Outcome:  "error",
//		Limit:    50,
//	})
package evidence
