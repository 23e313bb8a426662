package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PERMITGATE_"

// LoadConfig loads configuration from a YAML file. Values the file omits
// keep their defaults. The result is validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// PERMITGATE_SECTION_FIELD environment overrides. An empty path skips the
// file and starts from defaults.
//
// The loading sequence is:
// 1. Defaults
// 2. YAML file
// 3. Environment variable overrides
// 4. Validation
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg, os.Getenv); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// parse decodes data over the defaults, rejecting unknown keys.
func parse(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. A value that
// does not parse is an error rather than being ignored.
func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	o := &overrider{getenv: getenv}

	// Server overrides
	o.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	o.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	o.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	o.duration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	o.duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	o.int64("SERVER_MAX_BODY_BYTES", &cfg.Server.MaxBodyBytes)
	o.int("SERVER_MAX_BATCH_SIZE", &cfg.Server.MaxBatchSize)
	o.duration("SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	o.bool("SERVER_CORS_ENABLED", &cfg.Server.CORS.Enabled)

	// Rules overrides
	o.str("RULES_SOURCE", &cfg.Rules.Source)
	o.str("RULES_PATH", &cfg.Rules.Path)
	o.bool("RULES_WATCH", &cfg.Rules.Watch)
	o.duration("RULES_DEBOUNCE_INTERVAL", &cfg.Rules.DebounceInterval)
	o.int("RULES_MAX_CONDITION_DEPTH", &cfg.Rules.MaxConditionDepth)
	o.str("RULES_SQLITE_PATH", &cfg.Rules.SQLite.Path)
	o.str("RULES_SQLITE_NAME", &cfg.Rules.SQLite.Name)
	o.str("RULES_GIT_REPOSITORY", &cfg.Rules.Git.Repository)
	o.str("RULES_GIT_BRANCH", &cfg.Rules.Git.Branch)
	o.str("RULES_GIT_PATH", &cfg.Rules.Git.Path)
	o.str("RULES_GIT_AUTH_TYPE", &cfg.Rules.Git.Auth.Type)
	o.str("RULES_GIT_AUTH_TOKEN", &cfg.Rules.Git.Auth.Token)
	o.str("RULES_GIT_AUTH_SSH_KEY_PATH", &cfg.Rules.Git.Auth.SSHKeyPath)
	o.str("RULES_GIT_AUTH_SSH_KEY_PASSPHRASE", &cfg.Rules.Git.Auth.SSHKeyPassphrase)
	o.bool("RULES_GIT_POLL_ENABLED", &cfg.Rules.Git.Poll.Enabled)
	o.str("RULES_GIT_POLL_SCHEDULE", &cfg.Rules.Git.Poll.Schedule)
	o.str("RULES_GIT_CLONE_LOCAL_PATH", &cfg.Rules.Git.Clone.LocalPath)

	// Engine overrides
	o.int("ENGINE_WORKERS", &cfg.Engine.Workers)
	o.int("ENGINE_MAX_POLICIES", &cfg.Engine.MaxPolicies)
	o.bool("ENGINE_TRACE", &cfg.Engine.Trace)

	// Evidence overrides
	o.bool("EVIDENCE_ENABLED", &cfg.Evidence.Enabled)
	o.str("EVIDENCE_BACKEND", &cfg.Evidence.Backend)
	o.str("EVIDENCE_SQLITE_PATH", &cfg.Evidence.SQLite.Path)
	o.int("EVIDENCE_RETENTION_DAYS", &cfg.Evidence.Retention.Days)
	o.str("EVIDENCE_RETENTION_SCHEDULE", &cfg.Evidence.Retention.Schedule)
	o.int64("EVIDENCE_RETENTION_MAX_RECORDS", &cfg.Evidence.Retention.MaxRecords)
	o.str("EVIDENCE_RETENTION_ARCHIVE_PATH", &cfg.Evidence.Retention.ArchivePath)

	// Telemetry overrides
	o.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	o.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	o.bool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	o.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	o.bool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	o.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	o.str("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)

	if len(o.errs) > 0 {
		return ValidationError{Errors: o.errs}
	}
	return nil
}

type overrider struct {
	getenv func(string) string
	errs   []FieldError
}

func (o *overrider) lookup(key string) (string, bool) {
	v := o.getenv(EnvPrefix + key)
	return v, v != ""
}

func (o *overrider) fail(key, kind, val string) {
	o.errs = append(o.errs, FieldError{
		Field:   EnvPrefix + key,
		Message: fmt.Sprintf("invalid %s %q", kind, val),
	})
}

func (o *overrider) str(key string, dst *string) {
	if v, ok := o.lookup(key); ok {
		*dst = v
	}
}

func (o *overrider) bool(key string, dst *bool) {
	if v, ok := o.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			o.fail(key, "boolean", v)
			return
		}
		*dst = b
	}
}

func (o *overrider) int(key string, dst *int) {
	if v, ok := o.lookup(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			o.fail(key, "integer", v)
			return
		}
		*dst = i
	}
}

func (o *overrider) int64(key string, dst *int64) {
	if v, ok := o.lookup(key); ok {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			o.fail(key, "integer", v)
			return
		}
		*dst = i
	}
}

func (o *overrider) duration(key string, dst *time.Duration) {
	if v, ok := o.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			o.fail(key, "duration", v)
			return
		}
		*dst = d
	}
}
