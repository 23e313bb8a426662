package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// useConfig writes a config file into a temp dir and points --config at it
// for the duration of the test.
func useConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })
	return dir
}

// quietLogs keeps command logs out of test output.
const quietLogs = `
telemetry:
  logging:
    level: error
`

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
