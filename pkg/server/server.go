package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mercator-hq/permitgate/pkg/config"
	"mercator-hq/permitgate/pkg/evidence"
	tlsreload "mercator-hq/permitgate/pkg/security/tls"
	"mercator-hq/permitgate/pkg/server/handlers"
	"mercator-hq/permitgate/pkg/server/middleware"
	"mercator-hq/permitgate/pkg/telemetry/health"
)

const readyCheckTimeout = 2 * time.Second

// MetricsCollector is the telemetry surface the server needs.
// *metrics.Collector implements it.
type MetricsCollector interface {
	middleware.HTTPRecorder
	Handler() http.Handler
}

// Deps are the components the server routes requests to.
type Deps struct {
	// Store provides and reloads the active snapshot. Required.
	Store handlers.Reloader

	// Engine evaluates facts. Required.
	Engine handlers.Evaluator

	// Recorder receives evaluation evidence. Optional.
	Recorder handlers.EvidenceRecorder

	// Evidence backs the evidence query endpoints. Optional.
	Evidence evidence.Storage

	// Metrics records HTTP metrics and serves the metrics endpoint.
	// Optional.
	Metrics MetricsCollector
}

// Server is the HTTP server of the evaluation API.
type Server struct {
	config     *config.Config
	deps       Deps
	logger     *slog.Logger
	httpServer *http.Server
	certs      *tlsreload.Reloader // nil unless TLS is enabled

	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
	shutdownOnce sync.Once
}

// NewServer creates a server. A nil logger uses slog.Default().
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if deps.Store == nil {
		return nil, errors.New("server: a snapshot store is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("server: an engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
	}
	if cfg.Server.TLS.Enabled {
		certs, err := tlsreload.NewReloader(&cfg.Server.TLS, logger)
		if err != nil {
			return nil, err
		}
		s.certs = certs
	}
	return s, nil
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done or the server fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.addr = ln.Addr()
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	if s.certs != nil {
		s.httpServer.TLSConfig = tlsreload.ServerConfig(&s.config.Server.TLS, s.certs)
		go s.certs.Run(ctx)
	}
	srv := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting evaluation server", "address", ln.Addr().String(), "tls", s.certs != nil)
		var err error
		if s.certs != nil {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		srv := s.httpServer
		running := s.isRunning
		s.mu.RUnlock()
		if !running || srv == nil {
			return
		}

		timeout := s.config.Server.ShutdownTimeout
		s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		s.logger.Info("evaluation server stopped")
	})

	return shutdownErr
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	return middleware.Chain(s.routes(),
		middleware.RecoveryMiddleware(s.logger),
		middleware.RequestIDMiddleware,
		middleware.LoggingMiddleware(s.logger),
		middleware.CORSMiddleware(&s.config.Server.CORS),
		middleware.TimeoutMiddleware(s.config.Server.RequestTimeout),
		middleware.TracingMiddleware,
		middleware.MetricsMiddleware(s.httpRecorder()),
	)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	cfg := s.config

	mux.Handle("POST /v1/evaluate", &handlers.EvaluateHandler{
		Snapshots:    s.deps.Store,
		Engine:       s.deps.Engine,
		Evidence:     s.deps.Recorder,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       s.logger,
	})
	mux.Handle("POST /v1/evaluate/batch", &handlers.BatchHandler{
		Snapshots:    s.deps.Store,
		Engine:       s.deps.Engine,
		Evidence:     s.deps.Recorder,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		MaxBatchSize: cfg.Server.MaxBatchSize,
		Logger:       s.logger,
	})
	mux.Handle("GET /v1/policies", &handlers.PoliciesHandler{Snapshots: s.deps.Store})
	mux.Handle("GET /v1/attributes", &handlers.AttributesHandler{Snapshots: s.deps.Store})
	mux.Handle("GET /v1/categories", &handlers.CategoriesHandler{Snapshots: s.deps.Store})
	mux.Handle("POST /v1/reload", &handlers.ReloadHandler{Store: s.deps.Store})
	mux.Handle("GET /v1/status", &handlers.StatusHandler{Store: s.deps.Store})

	ev := &handlers.EvidenceHandler{
		Storage:      s.deps.Evidence,
		DefaultLimit: cfg.Evidence.Query.DefaultLimit,
		MaxLimit:     cfg.Evidence.Query.MaxLimit,
		Logger:       s.logger,
	}
	mux.HandleFunc("GET /v1/evidence", ev.List)
	mux.HandleFunc("GET /v1/evidence/{id}", ev.Get)

	mux.Handle("GET /health", handlers.NewHealthHandler())
	mux.Handle("GET /ready", handlers.NewReadyHandler(s.deps.Store, s.readinessChecker()))

	if s.deps.Metrics != nil && cfg.Telemetry.Metrics.Enabled {
		mux.Handle("GET "+cfg.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}
	return mux
}

// readinessChecker adds an evidence storage probe to the bundle check the
// ready handler registers.
func (s *Server) readinessChecker() *health.Checker {
	checker := health.New(readyCheckTimeout)
	if st := s.deps.Evidence; st != nil {
		checker.RegisterCheck("evidence", func(ctx context.Context) error {
			_, err := st.Query(ctx, &evidence.Query{Limit: 1})
			return err
		})
	}
	return checker
}

func (s *Server) httpRecorder() middleware.HTTPRecorder {
	if s.deps.Metrics == nil {
		return nil
	}
	return s.deps.Metrics
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the listening address once serving, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}
