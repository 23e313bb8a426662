package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/permitgate/pkg/cli"
	"mercator-hq/permitgate/pkg/config"
	"mercator-hq/permitgate/pkg/evidence/recorder"
	"mercator-hq/permitgate/pkg/evidence/retention"
	"mercator-hq/permitgate/pkg/rules/source"
	"mercator-hq/permitgate/pkg/server"
	"mercator-hq/permitgate/pkg/telemetry/metrics"
	"mercator-hq/permitgate/pkg/telemetry/tracing"
)

var serveFlags struct {
	listenAddress string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the evaluation server",
	Long: `Start the HTTP evaluation server with the specified configuration.

The server loads the configured rule bundle, exposes the evaluation API and
records evidence for every evaluation. File bundles are reloaded on change
when rules.watch is set; git bundles are pulled on rules.git.poll.schedule.

A bundle that fails to load at startup does not stop the server: /ready
reports not_ready until a reload succeeds.

Examples:
  # Start with defaults (bundles under ./rules)
  permitgate serve

  # Start with a config file
  permitgate serve --config /etc/permitgate/config.yaml

  # Override listen address
  permitgate serve --listen 0.0.0.0:9090

  # Validate config without starting the server
  permitgate serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if serveFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		return cli.NewCommandError("serve", err)
	}
	return nil
}

// serve runs the server and its background reloaders until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.Tracing.Timeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()
	if tracer.Enabled() {
		logger.Info("tracing enabled", "endpoint", cfg.Telemetry.Tracing.Endpoint, "sampler", cfg.Telemetry.Tracing.Sampler)
	}

	src, closeSrc, err := openSource(cfg, newParser(cfg), logger)
	if err != nil {
		return err
	}
	defer closeSrc()

	store := source.NewStore(src, source.WithLogger(logger), source.WithRecorder(collector))
	if err := store.Reload(ctx); err != nil {
		logger.Warn("initial bundle load failed, serving without a snapshot", "source", src.Name(), "error", err)
	}

	eng, err := newEngine(cfg, logger, collector)
	if err != nil {
		return err
	}

	deps := server.Deps{Store: store, Engine: eng, Metrics: collector}
	if cfg.Evidence.Enabled {
		st, err := openEvidence(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		rec := recorder.NewRecorder(st, recorder.DefaultConfig(), logger)
		// Runs before st.Close so buffered records are flushed.
		defer rec.Close()

		pruner := retention.NewPruner(st, retention.ConfigFrom(cfg.Evidence.Retention), logger)
		if err := pruner.Start(ctx); err != nil {
			return fmt.Errorf("failed to start retention scheduler: %w", err)
		}
		defer pruner.Stop()
		if next := pruner.NextPruning(); next != nil {
			logger.Debug("evidence retention scheduled", "next_pruning", *next)
		}

		deps.Recorder = rec
		deps.Evidence = st
	}

	srv, err := server.NewServer(cfg, deps, logger)
	if err != nil {
		return err
	}

	var watcher *source.Watcher
	if cfg.Rules.Source == "file" && cfg.Rules.Watch {
		watcher, err = source.NewWatcher(source.WatcherConfig{
			Path:             cfg.Rules.Path,
			DebounceInterval: cfg.Rules.DebounceInterval,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
	}

	if syncer, ok := src.(source.Syncer); ok && cfg.Rules.Source == "git" && cfg.Rules.Git.Poll.Enabled {
		poller, err := source.NewPoller(cfg.Rules.Git.Poll.Schedule, syncer, store.Reload, logger)
		if err != nil {
			return err
		}
		if err := poller.Start(ctx); err != nil {
			return err
		}
		defer poller.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if watcher != nil {
		g.Go(func() error {
			if err := watcher.Watch(gctx, store.Reload); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	logger.Info("permitgate started",
		"version", Version,
		"listen_address", cfg.Server.ListenAddress,
		"source", src.Name(),
		"evidence", cfg.Evidence.Enabled,
	)

	return g.Wait()
}
