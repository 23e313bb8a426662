package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate validates the entire configuration. All validation errors are
// collected and returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateRules(&cfg.Rules)...)
	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateEvidence(&cfg.Evidence)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be non-negative"})
	}
	if cfg.MaxBatchSize < 0 {
		errs = append(errs, FieldError{Field: "server.max_batch_size", Message: "max batch size must be non-negative"})
	}
	if cfg.RequestTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.request_timeout", Message: "request timeout must be positive"})
	}
	if cfg.CORS.Enabled && len(cfg.CORS.AllowedOrigins) == 0 {
		errs = append(errs, FieldError{Field: "server.cors.allowed_origins", Message: "at least one origin is required when CORS is enabled"})
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "cert file is required when TLS is enabled"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "key file is required when TLS is enabled"})
		}
	}
	switch cfg.TLS.MinVersion {
	case "1.2", "1.3":
	default:
		errs = append(errs, FieldError{
			Field:   "server.tls.min_version",
			Message: fmt.Sprintf("unsupported TLS version %q (must be 1.2 or 1.3)", cfg.TLS.MinVersion),
		})
	}
	if cfg.TLS.ReloadInterval < 0 {
		errs = append(errs, FieldError{Field: "server.tls.reload_interval", Message: "reload interval must be positive"})
	}

	return errs
}

func validateRules(cfg *RulesConfig) []FieldError {
	var errs []FieldError

	switch cfg.Source {
	case "file":
		if cfg.Path == "" {
			errs = append(errs, FieldError{Field: "rules.path", Message: "path is required for the file source"})
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "rules.sqlite.path", Message: "path is required for the sqlite source"})
		}
	case "git":
		errs = append(errs, validateGit(&cfg.Git)...)
	default:
		errs = append(errs, FieldError{
			Field:   "rules.source",
			Message: fmt.Sprintf("invalid source %q (must be file, sqlite or git)", cfg.Source),
		})
	}

	if cfg.Watch && cfg.Source != "file" {
		errs = append(errs, FieldError{Field: "rules.watch", Message: "watch requires the file source"})
	}
	if cfg.DebounceInterval < 0 {
		errs = append(errs, FieldError{Field: "rules.debounce_interval", Message: "debounce interval must be positive"})
	}
	if cfg.MaxFileSize < 0 {
		errs = append(errs, FieldError{Field: "rules.max_file_size", Message: "max file size must be non-negative"})
	}
	if cfg.MaxConditionDepth < 0 {
		errs = append(errs, FieldError{Field: "rules.max_condition_depth", Message: "max condition depth must be non-negative"})
	}

	return errs
}

func validateGit(cfg *GitConfig) []FieldError {
	var errs []FieldError

	if cfg.Repository == "" {
		errs = append(errs, FieldError{Field: "rules.git.repository", Message: "repository is required for the git source"})
	}
	if cfg.Branch == "" {
		errs = append(errs, FieldError{Field: "rules.git.branch", Message: "branch is required"})
	}

	switch cfg.Auth.Type {
	case "none":
	case "token":
		if cfg.Auth.Token == "" {
			errs = append(errs, FieldError{Field: "rules.git.auth.token", Message: "token auth requires a token"})
		}
	case "ssh":
		if cfg.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{Field: "rules.git.auth.ssh_key_path", Message: "ssh auth requires ssh_key_path"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "rules.git.auth.type",
			Message: fmt.Sprintf("invalid auth type %q (must be none, token or ssh)", cfg.Auth.Type),
		})
	}

	if cfg.Poll.Enabled {
		if _, err := cron.ParseStandard(cfg.Poll.Schedule); err != nil {
			errs = append(errs, FieldError{Field: "rules.git.poll.schedule", Message: fmt.Sprintf("invalid cron schedule: %v", err)})
		}
	}
	if cfg.Poll.Timeout < 0 {
		errs = append(errs, FieldError{Field: "rules.git.poll.timeout", Message: "timeout must be positive"})
	}
	if cfg.Clone.Depth < 0 {
		errs = append(errs, FieldError{Field: "rules.git.clone.depth", Message: "depth must be non-negative"})
	}

	return errs
}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError

	if cfg.Workers < 0 {
		errs = append(errs, FieldError{Field: "engine.workers", Message: "workers must be non-negative"})
	}
	if cfg.MaxPolicies < 0 {
		errs = append(errs, FieldError{Field: "engine.max_policies", Message: "max policies must be non-negative"})
	}

	return errs
}

func validateEvidence(cfg *EvidenceConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "evidence.sqlite.path", Message: "path is required for the sqlite backend"})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{Field: "evidence.sqlite.max_open_conns", Message: "max open connections must be at least 1"})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{Field: "evidence.sqlite.max_idle_conns", Message: "max idle connections cannot exceed max open connections"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "evidence.backend",
			Message: fmt.Sprintf("invalid backend %q (must be sqlite or memory)", cfg.Backend),
		})
	}

	if cfg.Retention.Days > 0 || cfg.Retention.MaxRecords > 0 {
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			errs = append(errs, FieldError{Field: "evidence.retention.schedule", Message: fmt.Sprintf("invalid cron schedule: %v", err)})
		}
	}

	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{Field: "evidence.retention.max_records", Message: "max records must be non-negative"})
	}

	if cfg.Query.DefaultLimit < 1 {
		errs = append(errs, FieldError{Field: "evidence.query.default_limit", Message: "default limit must be at least 1"})
	}
	if cfg.Query.MaxLimit < cfg.Query.DefaultLimit {
		errs = append(errs, FieldError{Field: "evidence.query.max_limit", Message: "max limit cannot be below the default limit"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with /"})
	}

	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q (must be always, never or ratio)", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0 and 1"})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}

	return errs
}
