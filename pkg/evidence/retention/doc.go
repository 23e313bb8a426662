// Package retention prunes evidence records by age and by count.
//
//	pruner := retention.NewPruner(store, retention.ConfigFrom(cfg.Evidence.Retention), logger)
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
//
// Prune can also be called directly, which is what `permitgate evidence
// prune` does. Age pruning runs first and deletes everything older than
// RetentionDays. Count pruning then removes the oldest records until at
// most MaxRecords remain.
//
// With ArchivePath set, each batch is exported to
// evidence-<age|count>-<timestamp>.json in that directory before it is
// deleted. A failed archive aborts the prune and nothing is deleted.
//
// The scheduler uses standard five-field cron expressions ("0 3 * * *" runs
// daily at 03:00). An empty schedule leaves it idle.
package retention
