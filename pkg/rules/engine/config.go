package engine

import (
	"fmt"
	"runtime"
)

// EngineConfig contains configuration for the evaluation engine.
type EngineConfig struct {
	// Workers bounds concurrent fact evaluations in EvaluateBatch.
	// Default: runtime.NumCPU().
	Workers int

	// MaxPolicies is the maximum number of policies evaluated for one
	// category. Default: 10000.
	MaxPolicies int

	// EnableTrace attaches a per-policy and per-field trace to every result.
	// Default: false.
	EnableTrace bool
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Workers:     runtime.NumCPU(),
		MaxPolicies: 10000,
		EnableTrace: false,
	}
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.MaxPolicies <= 0 {
		return fmt.Errorf("%w: max policies must be positive", ErrInvalidConfig)
	}
	return nil
}

// WithWorkers sets the batch worker count.
func (c *EngineConfig) WithWorkers(n int) *EngineConfig {
	c.Workers = n
	return c
}

// WithMaxPolicies sets the per-category policy limit.
func (c *EngineConfig) WithMaxPolicies(n int) *EngineConfig {
	c.MaxPolicies = n
	return c
}

// WithTrace enables or disables evaluation tracing.
func (c *EngineConfig) WithTrace(enabled bool) *EngineConfig {
	c.EnableTrace = enabled
	return c
}
