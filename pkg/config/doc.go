// Package config loads PermitGate configuration from YAML with environment
// overrides.
//
// # Loading
//
//	cfg, err := config.LoadConfigWithEnvOverrides("permitgate.yaml")
//
// Values are applied in order: defaults, the YAML file, then environment
// variables named PERMITGATE_SECTION_FIELD (PERMITGATE_SERVER_LISTEN_ADDRESS,
// PERMITGATE_RULES_PATH, PERMITGATE_TELEMETRY_LOGGING_LEVEL, ...). The result
// is validated and every problem is reported at once:
//
//	configuration validation failed with 2 errors:
//	  - rules.source: invalid source "s3" (must be file, sqlite or git)
//	  - evidence.retention.schedule: invalid cron schedule: ...
//
// Unknown YAML keys are rejected.
//
// # Example
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//	rules:
//	  source: file
//	  path: ./rules
//	  watch: true
//	evidence:
//	  backend: sqlite
//	  retention:
//	    days: 30
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//
// # Process-wide configuration
//
// Initialize loads once and Get returns the result. Library packages take
// their settings as arguments instead.
package config
