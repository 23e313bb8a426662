package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/permitgate/pkg/cli"
	"mercator-hq/permitgate/pkg/rules/bundletest"
	"mercator-hq/permitgate/pkg/rules/parser"
)

var testFlags struct {
	run     string
	verbose bool
	format  string
}

var testCmd = &cobra.Command{
	Use:   "test [bundle path]",
	Short: "Run the test cases embedded in a rule bundle",
	Long: `Execute the test cases declared in a bundle's tests section.

Each test case names a category, a fact and the expected outcome: the
matched policy ids in order and/or a subset of output fields. A case may
instead expect an error. Without a path the configured bundle source is
tested.

Test Case Format (YAML):
  tests:
    - name: wide load needs a front escort
      category: escort
      fact: {width_ft: 13, road_type: interstate}
      expect:
        matched: [wide-load]
        output: {front_escorts: 1}

Examples:
  # Run all tests of a bundle directory
  permitgate test rules/

  # Run the tests whose name contains "escort"
  permitgate test rules/ --run escort

  # JSON output for CI/CD
  permitgate test rules/ --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTests,
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringVar(&testFlags.run, "run", "", "only run tests whose name contains this text")
	testCmd.Flags().BoolVarP(&testFlags.verbose, "verbose", "v", false, "show actual output of failed tests")
	testCmd.Flags().StringVar(&testFlags.format, "format", "text", "output format: text, json")
}

func runTests(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(testFlags.format, cli.FormatText, cli.FormatJSON)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	var path string
	if len(args) > 0 {
		path = args[0]
	}

	ctx := context.Background()
	store, err := loadSnapshot(ctx, cfg, path, logger)
	if err != nil {
		return cli.NewCommandError("test", err)
	}
	b := store.Bundle()

	cases := filterTests(b.Tests, testFlags.run)
	if len(cases) == 0 {
		return cli.NewCommandError("test", fmt.Errorf("no test cases found in bundle %s", b.Version))
	}

	eng, err := newEngine(cfg, logger, nil)
	if err != nil {
		return err
	}
	report := bundletest.NewRunner(eng).Run(ctx, store.Snapshot(), cases)

	out := &testReport{Report: report, BundleVersion: b.Version, verbose: testFlags.verbose}
	if err := cli.NewFormatter(format).FormatTo(os.Stdout, out); err != nil {
		return err
	}
	if !report.OK() {
		return cli.NewCommandError("test", fmt.Errorf("%d of %d tests failed", report.Failed, len(report.Results)))
	}
	return nil
}

func filterTests(cases []parser.TestCase, pattern string) []parser.TestCase {
	if pattern == "" {
		return cases
	}
	var out []parser.TestCase
	for _, tc := range cases {
		if strings.Contains(tc.Name, pattern) {
			out = append(out, tc)
		}
	}
	return out
}

type testReport struct {
	*bundletest.Report
	BundleVersion string `json:"bundle_version"`
	verbose       bool
}

// WriteText implements cli.TextWriter.
func (r *testReport) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Running tests for bundle %s...\n\n", r.BundleVersion)

	for _, res := range r.Results {
		if res.Passed {
			fmt.Fprintf(w, "✓ %s (%s) %s\n", res.Name, res.Category, res.Duration)
			continue
		}

		fmt.Fprintf(w, "✗ %s (%s) at %s\n", res.Name, res.Category, res.Location)
		if res.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", res.Error)
		}
		for _, d := range res.Diffs {
			fmt.Fprintf(w, "    %s\n", d)
		}
		if r.verbose && res.Actual != nil {
			fmt.Fprintf(w, "    actual matched: [%s]\n", strings.Join(res.Actual.MatchedPolicyIDs, ", "))
			for _, name := range res.Actual.Output.Fields() {
				fmt.Fprintf(w, "    actual %s = %s\n", name, res.Actual.Output[name])
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  %d passed, %d failed\n", r.Passed, r.Failed)
	return nil
}
