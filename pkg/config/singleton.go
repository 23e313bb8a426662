package config

import (
	"fmt"
	"sync"
)

var (
	current  *Config
	mu       sync.RWMutex
	initOnce sync.Once
	initErr  error
)

// Initialize loads configuration from path with environment overrides and
// installs it as the process-wide configuration. Only the first call loads;
// later calls return the first call's error.
func Initialize(path string) error {
	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		Set(cfg)
	})
	return initErr
}

// Get returns the process-wide configuration, or nil before Initialize.
// Prefer passing a *Config explicitly; Get exists for the CLI entry points.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Set replaces the process-wide configuration.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	current = cfg
}

// Reload loads path again and swaps it in. On failure the current
// configuration is kept.
func Reload(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	Set(cfg)
	return nil
}

// MustGet returns the process-wide configuration and panics if it is unset.
func MustGet() *Config {
	cfg := Get()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
