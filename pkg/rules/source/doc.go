// Package source loads rule bundles and keeps an engine snapshot current.
//
// A Source produces a parsed bundle: FileSource reads YAML files from disk,
// SQLiteSource stores versioned bundles in a database, GitSource reads a
// checkout of a repository and MemorySource serves documents held in
// memory. Store turns the bundle into an engine.Snapshot and swaps it in on
// every successful Reload; a failed reload keeps serving the previous one.
//
// Changes are picked up either by a Watcher (fsnotify, file sources) or a
// Poller (cron, any Syncer):
//
//	src := source.NewFileSource("rules/", nil)
//	store := source.NewStore(src, source.WithLogger(logger))
//	if err := store.Reload(ctx); err != nil {
//		return err
//	}
//	w, _ := source.NewWatcher(source.WatcherConfig{Path: "rules/"}, logger)
//	go w.Watch(ctx, store.Reload)
package source
