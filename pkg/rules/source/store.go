package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/parser"
)

// ReloadRecorder receives reload telemetry.
type ReloadRecorder interface {
	RecordReload(success bool, policies int)
}

// Status reports the state of the last reloads.
type Status struct {
	Source      string    `json:"source"`
	Version     string    `json:"version,omitempty"`
	LoadedAt    time.Time `json:"loaded_at,omitzero"`
	Policies    int       `json:"policies"`
	Published   int       `json:"published"`
	LastAttempt time.Time `json:"last_attempt,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	Reloads     int       `json:"reloads"`
	Failures    int       `json:"failures"`
}

// Store holds the active snapshot of a Source. Reload builds a new snapshot
// and swaps it in atomically; a failed reload keeps the previous one.
type Store struct {
	source   Source
	logger   *slog.Logger
	recorder ReloadRecorder

	reloadMu sync.Mutex

	mu       sync.RWMutex
	snap     *engine.Snapshot
	bundle   *parser.Bundle
	status   Status
	handlers []func(*engine.Snapshot)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithRecorder sets the reload recorder.
func WithRecorder(r ReloadRecorder) StoreOption {
	return func(s *Store) { s.recorder = r }
}

// NewStore creates a store for src. It holds no snapshot until the first
// successful Reload.
func NewStore(src Source, opts ...StoreOption) *Store {
	s := &Store{source: src}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "rules.store", "source", src.Name())
	s.status.Source = src.Name()
	return s
}

// Source returns the underlying source.
func (s *Store) Source() Source {
	return s.source
}

// Reload loads the source and swaps in the new snapshot. Concurrent calls
// are serialized.
func (s *Store) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	snap, bundle, err := s.build(ctx)

	s.mu.Lock()
	s.status.LastAttempt = start
	if err != nil {
		s.status.Failures++
		s.status.LastError = err.Error()
		s.mu.Unlock()

		s.logger.ErrorContext(ctx, "bundle reload failed, keeping previous snapshot", "error", err)
		s.record(false, 0)
		return err
	}

	s.snap = snap
	s.bundle = bundle
	s.status.Version = snap.Version
	s.status.LoadedAt = snap.LoadedAt
	s.status.Policies = snap.Len()
	s.status.Published = snap.PublishedCount()
	s.status.LastError = ""
	s.status.Reloads++
	handlers := append(([]func(*engine.Snapshot))(nil), s.handlers...)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "bundle loaded",
		"version", snap.Version,
		"policies", snap.Len(),
		"published", snap.PublishedCount(),
		"duration", time.Since(start))
	s.record(true, snap.Len())

	for _, h := range handlers {
		h(snap)
	}
	return nil
}

func (s *Store) build(ctx context.Context) (*engine.Snapshot, *parser.Bundle, error) {
	bundle, err := s.source.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s: %w", s.source.Name(), err)
	}
	snap, err := engine.NewSnapshot(bundle.Registry, bundle.Catalog, bundle.Policies, bundle.Version)
	if err != nil {
		return nil, nil, err
	}
	return snap, bundle, nil
}

func (s *Store) record(success bool, policies int) {
	if s.recorder != nil {
		s.recorder.RecordReload(success, policies)
	}
}

// Snapshot returns the active snapshot, or nil before the first successful
// reload.
func (s *Store) Snapshot() *engine.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Bundle returns the bundle behind the active snapshot.
func (s *Store) Bundle() *parser.Bundle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle
}

// Status returns a copy of the reload status.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// OnReload registers fn to run after every successful reload.
func (s *Store) OnReload(fn func(*engine.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
}
