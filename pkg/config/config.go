package config

import "time"

// Config is the root configuration structure for PermitGate.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts and request limits.
	Server ServerConfig `yaml:"server"`

	// Rules contains configuration for where rule bundles are loaded from
	// and how changes are picked up.
	Rules RulesConfig `yaml:"rules"`

	// Engine contains evaluation engine settings.
	Engine EngineConfig `yaml:"engine"`

	// Evidence contains configuration for evaluation audit records including
	// backend selection and retention.
	Evidence EvidenceConfig `yaml:"evidence"`

	// Telemetry contains configuration for logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes limits evaluation request bodies.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// MaxBatchSize limits the number of facts in one batch request.
	// Default: 1000
	MaxBatchSize int `yaml:"max_batch_size"`

	// RequestTimeout bounds the handling of one request. Evaluations still
	// running at the deadline are cancelled.
	// Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// CORS configures cross-origin access for browser clients.
	CORS CORSConfig `yaml:"cors"`

	// TLS serves HTTPS instead of plain HTTP.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures HTTPS for the evaluation server. Certificates are
// re-read from disk when their files change, so renewals need no restart.
type TLSConfig struct {
	// Enabled serves HTTPS.
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM-encoded certificate chain.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM-encoded private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the certificate files are checked for
	// changes.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// CORSConfig configures Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	// Enabled turns CORS handling on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists the allowed origins; "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedHeaders lists the request headers a preflight may ask for.
	// Default: ["Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is how long, in seconds, browsers may cache a preflight.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// RulesConfig configures the rule bundle source.
type RulesConfig struct {
	// Source selects the backend: "file", "sqlite" or "git".
	// Default: "file"
	Source string `yaml:"source"`

	// Path is a bundle file or a directory of .yaml/.yml bundles for the
	// file source.
	// Default: "./rules"
	Path string `yaml:"path"`

	// Watch enables hot reload of file bundles.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period before a reload after file changes.
	// Default: 200ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// MaxFileSize limits a single bundle document.
	// Default: 10485760 (10MB)
	MaxFileSize int64 `yaml:"max_file_size"`

	// MaxConditionDepth limits condition nesting in bundle documents.
	// Default: 64
	MaxConditionDepth int `yaml:"max_condition_depth"`

	// SQLite configures the sqlite bundle store.
	SQLite RulesSQLiteConfig `yaml:"sqlite"`

	// Git configures the git bundle source.
	Git GitConfig `yaml:"git"`
}

// RulesSQLiteConfig configures the sqlite bundle store.
type RulesSQLiteConfig struct {
	// Path is the database file.
	// Default: "data/bundles.db"
	Path string `yaml:"path"`

	// Name selects which named bundle to load.
	// Default: "default"
	Name string `yaml:"name"`
}

// GitConfig configures the git bundle source.
type GitConfig struct {
	// Repository URL (HTTPS or SSH).
	Repository string `yaml:"repository"`

	// Branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path within the repository to bundle files.
	// Default: "" (repository root)
	Path string `yaml:"path"`

	// Auth configures Git authentication.
	Auth GitAuthConfig `yaml:"auth"`

	// Poll configures change detection.
	Poll GitPollConfig `yaml:"poll"`

	// Clone configures repository cloning.
	Clone GitCloneConfig `yaml:"clone"`
}

// GitAuthConfig configures Git authentication.
type GitAuthConfig struct {
	// Type: "token", "ssh" or "none".
	// Default: "none"
	Type string `yaml:"type"`

	// Token for HTTPS authentication.
	Token string `yaml:"token"`

	// SSHKeyPath for SSH authentication.
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase for encrypted SSH keys.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// GitPollConfig configures change detection.
type GitPollConfig struct {
	// Enabled turns on scheduled pulls.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression (robfig/cron syntax, descriptors such as
	// "@every 1m" included).
	// Default: "@every 1m"
	Schedule string `yaml:"schedule"`

	// Timeout bounds a single clone or pull.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// GitCloneConfig configures repository cloning.
type GitCloneConfig struct {
	// LocalPath is where the repository is cloned.
	// Default: "data/rules-repo"
	LocalPath string `yaml:"local_path"`

	// Depth for shallow clones.
	// Default: 1
	Depth int `yaml:"depth"`

	// CleanOnStart removes LocalPath before cloning.
	// Default: false
	CleanOnStart bool `yaml:"clean_on_start"`
}

// EngineConfig contains evaluation engine settings.
type EngineConfig struct {
	// Workers bounds concurrent evaluations in a batch. 0 means NumCPU.
	Workers int `yaml:"workers"`

	// MaxPolicies refuses to evaluate a category with more policies.
	// Default: 10000
	MaxPolicies int `yaml:"max_policies"`

	// Trace attaches an evaluation trace to every result.
	// Default: false
	Trace bool `yaml:"trace"`
}

// EvidenceConfig contains configuration for evaluation audit records.
type EvidenceConfig struct {
	// Enabled turns on recording.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects storage: "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the sqlite backend.
	SQLite EvidenceSQLiteConfig `yaml:"sqlite"`

	// Retention configures pruning of old records.
	Retention RetentionConfig `yaml:"retention"`

	// Query configures query limits.
	Query EvidenceQueryConfig `yaml:"query"`
}

// EvidenceSQLiteConfig configures the sqlite evidence backend.
type EvidenceSQLiteConfig struct {
	// Path is the database file.
	// Default: "data/evidence.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait for a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig configures pruning of old evidence records.
type RetentionConfig struct {
	// Days to keep records; a negative value disables pruning.
	// Default: 90
	Days int `yaml:"days"`

	// Schedule is the cron expression for pruning.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`

	// MaxRecords caps the number of stored records; the oldest are pruned
	// first. 0 means unlimited.
	MaxRecords int64 `yaml:"max_records"`

	// ArchivePath, when set, receives a JSON export of every batch of
	// records before it is deleted.
	ArchivePath string `yaml:"archive_path"`
}

// EvidenceQueryConfig configures query limits.
type EvidenceQueryConfig struct {
	// DefaultLimit applies when a query sets no limit.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit caps any query.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`
}

// TelemetryConfig contains configuration for logging, metrics and tracing.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level: "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled exposes metrics.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "permitgate"
	Namespace string `yaml:"namespace"`
}

// TracingConfig configures OpenTelemetry tracing of HTTP requests and
// category evaluations. Spans are exported over OTLP/gRPC.
type TracingConfig struct {
	// Enabled turns on span export. When false a no-op tracer is used.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP collector address (host:port).
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Sampler is "always", "never" or "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces kept by the "ratio" sampler.
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "permitgate"
	ServiceName string `yaml:"service_name"`
}
