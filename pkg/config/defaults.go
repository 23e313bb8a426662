package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxBodyBytes    = int64(1 << 20)
	DefaultMaxBatchSize    = 1000
	DefaultRequestTimeout  = 30 * time.Second
	DefaultCORSMaxAge      = 3600

	DefaultTLSMinVersion     = "1.3"
	DefaultTLSReloadInterval = 5 * time.Minute

	// Rules defaults
	DefaultRulesSource       = "file"
	DefaultRulesPath         = "./rules"
	DefaultDebounceInterval  = 200 * time.Millisecond
	DefaultMaxFileSize       = int64(10 << 20)
	DefaultMaxConditionDepth = 64
	DefaultRulesSQLitePath   = "data/bundles.db"
	DefaultRulesSQLiteName   = "default"
	DefaultGitBranch         = "main"
	DefaultGitAuthType       = "none"
	DefaultGitPollSchedule   = "@every 1m"
	DefaultGitPollTimeout    = 30 * time.Second
	DefaultGitCloneLocalPath = "data/rules-repo"
	DefaultGitCloneDepth     = 1

	// Engine defaults
	DefaultEngineMaxPolicies = 10000

	// Evidence defaults
	DefaultEvidenceBackend       = "sqlite"
	DefaultEvidenceSQLitePath    = "data/evidence.db"
	DefaultEvidenceMaxOpenConns  = 10
	DefaultEvidenceMaxIdleConns  = 5
	DefaultEvidenceBusyTimeout   = 5 * time.Second
	DefaultEvidenceRetentionDays = 90
	DefaultEvidenceRetentionCron = "0 3 * * *"
	DefaultEvidenceQueryLimit    = 100
	DefaultEvidenceQueryMaxLimit = 10000

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "permitgate"
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingTimeout   = 10 * time.Second
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 0.1
	DefaultTracingService   = "permitgate"
)

// NewDefaultConfig returns a configuration with every default applied,
// including the boolean defaults ApplyDefaults cannot distinguish from an
// explicit false.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Rules: RulesConfig{
			Git: GitConfig{Poll: GitPollConfig{Enabled: true}},
		},
		Evidence: EvidenceConfig{
			Enabled: true,
			SQLite:  EvidenceSQLiteConfig{WALMode: true},
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field with its default.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Server.MaxBatchSize == 0 {
		cfg.Server.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"Content-Type", "X-Request-ID"}
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = DefaultCORSMaxAge
	}
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Server.TLS.ReloadInterval == 0 {
		cfg.Server.TLS.ReloadInterval = DefaultTLSReloadInterval
	}

	// Rules defaults
	if cfg.Rules.Source == "" {
		cfg.Rules.Source = DefaultRulesSource
	}
	if cfg.Rules.Path == "" {
		cfg.Rules.Path = DefaultRulesPath
	}
	if cfg.Rules.DebounceInterval == 0 {
		cfg.Rules.DebounceInterval = DefaultDebounceInterval
	}
	if cfg.Rules.MaxFileSize == 0 {
		cfg.Rules.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Rules.MaxConditionDepth == 0 {
		cfg.Rules.MaxConditionDepth = DefaultMaxConditionDepth
	}
	if cfg.Rules.SQLite.Path == "" {
		cfg.Rules.SQLite.Path = DefaultRulesSQLitePath
	}
	if cfg.Rules.SQLite.Name == "" {
		cfg.Rules.SQLite.Name = DefaultRulesSQLiteName
	}
	applyGitDefaults(&cfg.Rules.Git)

	// Engine defaults
	if cfg.Engine.MaxPolicies == 0 {
		cfg.Engine.MaxPolicies = DefaultEngineMaxPolicies
	}

	// Evidence defaults
	if cfg.Evidence.Backend == "" {
		cfg.Evidence.Backend = DefaultEvidenceBackend
	}
	if cfg.Evidence.SQLite.Path == "" {
		cfg.Evidence.SQLite.Path = DefaultEvidenceSQLitePath
	}
	if cfg.Evidence.SQLite.MaxOpenConns == 0 {
		cfg.Evidence.SQLite.MaxOpenConns = DefaultEvidenceMaxOpenConns
	}
	if cfg.Evidence.SQLite.MaxIdleConns == 0 {
		cfg.Evidence.SQLite.MaxIdleConns = DefaultEvidenceMaxIdleConns
	}
	if cfg.Evidence.SQLite.BusyTimeout == 0 {
		cfg.Evidence.SQLite.BusyTimeout = DefaultEvidenceBusyTimeout
	}
	if cfg.Evidence.Retention.Days == 0 {
		cfg.Evidence.Retention.Days = DefaultEvidenceRetentionDays
	}
	if cfg.Evidence.Retention.Schedule == "" {
		cfg.Evidence.Retention.Schedule = DefaultEvidenceRetentionCron
	}
	if cfg.Evidence.Query.DefaultLimit == 0 {
		cfg.Evidence.Query.DefaultLimit = DefaultEvidenceQueryLimit
	}
	if cfg.Evidence.Query.MaxLimit == 0 {
		cfg.Evidence.Query.MaxLimit = DefaultEvidenceQueryMaxLimit
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	applyTracingDefaults(&cfg.Telemetry.Tracing)
}

func applyTracingDefaults(cfg *TracingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTracingTimeout
	}
	if cfg.Sampler == "" {
		cfg.Sampler = DefaultTracingSampler
		if cfg.SampleRatio == 0 {
			cfg.SampleRatio = DefaultTracingRatio
		}
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultTracingService
	}
}

func applyGitDefaults(cfg *GitConfig) {
	if cfg.Branch == "" {
		cfg.Branch = DefaultGitBranch
	}
	if cfg.Auth.Type == "" {
		cfg.Auth.Type = DefaultGitAuthType
	}
	if cfg.Poll.Schedule == "" {
		cfg.Poll.Schedule = DefaultGitPollSchedule
	}
	if cfg.Poll.Timeout == 0 {
		cfg.Poll.Timeout = DefaultGitPollTimeout
	}
	if cfg.Clone.LocalPath == "" {
		cfg.Clone.LocalPath = DefaultGitCloneLocalPath
	}
	if cfg.Clone.Depth == 0 {
		cfg.Clone.Depth = DefaultGitCloneDepth
	}
}
