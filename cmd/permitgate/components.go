package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"mercator-hq/permitgate/pkg/cli"
	"mercator-hq/permitgate/pkg/config"
	"mercator-hq/permitgate/pkg/evidence"
	"mercator-hq/permitgate/pkg/evidence/storage"
	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/parser"
	"mercator-hq/permitgate/pkg/rules/source"
	"mercator-hq/permitgate/pkg/telemetry/logging"
)

// loadConfig reads --config (or the defaults) with environment overrides and
// applies the --log-level flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	if logLevel != "" {
		if _, err := logging.ParseLevel(logLevel); err != nil {
			return nil, cli.NewConfigError("log-level", err.Error())
		}
		cfg.Telemetry.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs always go to stderr so they never
// mix with command output.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		Writer:    os.Stderr,
	})
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

func newParser(cfg *config.Config) *parser.Parser {
	return parser.NewParser().
		WithMaxFileSize(cfg.Rules.MaxFileSize).
		WithMaxDepth(cfg.Rules.MaxConditionDepth)
}

// openSource creates the configured bundle source. The returned close
// function is never nil.
func openSource(cfg *config.Config, p *parser.Parser, logger *slog.Logger) (source.Source, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Rules.Source {
	case "file":
		return source.NewFileSource(cfg.Rules.Path, p), noop, nil

	case "sqlite":
		src, err := openBundleStore(cfg, p)
		if err != nil {
			return nil, noop, err
		}
		return src, src.Close, nil

	case "git":
		src, err := source.NewGitSource(&cfg.Rules.Git, p, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create git source: %w", err)
		}
		return src, noop, nil

	default:
		return nil, noop, cli.NewConfigError("rules.source", fmt.Sprintf("unsupported source %q", cfg.Rules.Source))
	}
}

func openBundleStore(cfg *config.Config, p *parser.Parser) (*source.SQLiteSource, error) {
	src, err := source.NewSQLiteSource(source.SQLiteConfig{
		Path: cfg.Rules.SQLite.Path,
		Name: cfg.Rules.SQLite.Name,
	}, p)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle store: %w", err)
	}
	return src, nil
}

// loadSnapshot loads a bundle from path when given, or from the configured
// source otherwise, and returns the store holding its snapshot.
func loadSnapshot(ctx context.Context, cfg *config.Config, path string, logger *slog.Logger) (*source.Store, error) {
	p := newParser(cfg)

	var src source.Source
	closeSrc := func() error { return nil }
	if path != "" {
		src = source.NewFileSource(path, p)
	} else {
		var err error
		if src, closeSrc, err = openSource(cfg, p, logger); err != nil {
			return nil, err
		}
	}
	defer closeSrc()

	store := source.NewStore(src, source.WithLogger(logger))
	if err := store.Reload(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// newEngine creates the evaluation engine. A zero worker count means one
// worker per CPU.
func newEngine(cfg *config.Config, logger *slog.Logger, metrics engine.MetricsRecorder) (*engine.Engine, error) {
	workers := cfg.Engine.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	eng, err := engine.New(&engine.EngineConfig{
		Workers:     workers,
		MaxPolicies: cfg.Engine.MaxPolicies,
		EnableTrace: cfg.Engine.Trace,
	}, logger, metrics)
	if err != nil {
		return nil, cli.NewConfigError("engine", err.Error())
	}
	return eng, nil
}

// openEvidence opens the configured evidence backend.
func openEvidence(cfg *config.Config, logger *slog.Logger) (evidence.Storage, error) {
	switch cfg.Evidence.Backend {
	case "sqlite":
		st, err := storage.NewSQLiteStorage(storage.SQLiteConfigFrom(&cfg.Evidence.SQLite), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open evidence store: %w", err)
		}
		return st, nil
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, cli.NewConfigError("evidence.backend", fmt.Sprintf("unsupported backend %q", cfg.Evidence.Backend))
	}
}
