package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/permitgate/pkg/cli"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "permitgate",
	Short: "Permitgate - rules engine for oversize/overweight permits",
	Long: `Permitgate evaluates permit rule bundles against facts about a load.

A bundle declares typed attributes, output categories (escort, speed, hours,
...) and the policies that apply to them. For each category, permitgate finds
the published policies whose conditions hold for the fact and merges their
outputs into a single record using per-field merge strategies.

Configuration is read from --config (YAML) and PERMITGATE_* environment
variables; without a file the built-in defaults apply.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code that matches the
// error: 2 for configuration problems and 1 for any other failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}
