package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Path is a bundle file or directory.
	Path string

	// DebounceInterval is the quiet period after the last change before a
	// reload. Default: 200ms.
	DebounceInterval time.Duration

	// Extensions limits which files trigger reloads. Default: .yaml, .yml.
	Extensions []string
}

// Watcher triggers reloads when bundle files change. Bursts of events are
// collapsed by a Debouncer.
type Watcher struct {
	config    WatcherConfig
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	logger    *slog.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a watcher for cfg.Path.
func NewWatcher(cfg WatcherConfig, logger *slog.Logger) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watch path cannot be empty")
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 200 * time.Millisecond
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = bundleExtensions
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		config:    cfg,
		watcher:   fw,
		debouncer: NewDebouncer(cfg.DebounceInterval),
		logger:    logger.With("component", "rules.watcher", "path", cfg.Path),
		done:      make(chan struct{}),
	}, nil
}

// Watch blocks, calling reload after changes settle, until ctx is done or
// Stop is called. Reload errors are logged; watching continues.
func (w *Watcher) Watch(ctx context.Context, reload func(context.Context) error) error {
	if err := w.addPath(w.config.Path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.config.Path, err)
	}
	w.logger.Info("watching bundle files")

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()

		case <-w.done:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event, reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event, reload func(context.Context) error) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(event.Name) {
			if err := w.addDirectory(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
	}
	if !w.shouldProcess(event) {
		return
	}

	w.logger.Debug("bundle file changed", "file", event.Name, "op", event.Op.String())
	w.debouncer.Trigger(func() {
		if err := reload(ctx); err != nil {
			w.logger.Error("reload after file change failed", "error", err)
		}
	})
}

// Stop stops watching and cancels a pending reload.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.debouncer.Stop()
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) addPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return w.addDirectory(path)
	}
	// watch the parent so editors that replace the file are still seen
	return w.watcher.Add(filepath.Dir(path))
}

func (w *Watcher) addDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) shouldProcess(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if isHidden(event.Name) {
		return false
	}
	if info, err := os.Stat(w.config.Path); err == nil && !info.IsDir() {
		return filepath.Clean(event.Name) == filepath.Clean(w.config.Path)
	}
	return slices.Contains(w.config.Extensions, strings.ToLower(filepath.Ext(event.Name)))
}

// Debouncer runs the last triggered function once no trigger has arrived
// for the configured delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn, replacing any pending function.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop cancels the pending function and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
