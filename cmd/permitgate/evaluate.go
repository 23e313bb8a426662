package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/permitgate/pkg/cli"
	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/parser"
	"mercator-hq/permitgate/pkg/rules/policy"
)

var evaluateFlags struct {
	bundle   string
	category string
	facts    []string
	factFile string
	trace    bool
	format   string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a fact against a rule bundle",
	Long: `Evaluate a single fact and print the merged output of each category.

The fact is built from --fact name=value pairs and/or a YAML or JSON mapping
read from --fact-file ("-" reads stdin). Values use YAML syntax: 14 is a
number, true a boolean, interstate an enum tag and [front, rear] a set.

Without --category every category with published policies is evaluated.

Examples:
  # Evaluate against the configured bundle source
  permitgate evaluate --category escort --fact width_ft=14 --fact road_type=interstate

  # Evaluate a bundle directory with a trace
  permitgate evaluate --bundle rules/ --fact-file load.yaml --trace

  # JSON output
  permitgate evaluate --bundle rules/ --fact width_ft=16 --format json`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&evaluateFlags.bundle, "bundle", "b", "", "bundle file or directory (default: configured source)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.category, "category", "", "category to evaluate (default: all published)")
	evaluateCmd.Flags().StringArrayVarP(&evaluateFlags.facts, "fact", "f", nil, "fact entry name=value (repeatable)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.factFile, "fact-file", "", "YAML or JSON fact file, - for stdin")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.trace, "trace", false, "include the evaluation trace")
	evaluateCmd.Flags().StringVar(&evaluateFlags.format, "format", "text", "output format: text, json")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(evaluateFlags.format, cli.FormatText, cli.FormatJSON)
	if err != nil {
		return err
	}

	raw, err := readFact(evaluateFlags.facts, evaluateFlags.factFile, os.Stdin)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := loadSnapshot(ctx, cfg, evaluateFlags.bundle, logger)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	snap := store.Snapshot()

	fact, err := parser.ParseFact(raw, snap.Registry)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	categories, err := evaluationCategories(snap, evaluateFlags.category)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	eng, err := newEngine(cfg, logger, nil)
	if err != nil {
		return err
	}
	var opts []engine.EvalOption
	if evaluateFlags.trace {
		opts = append(opts, engine.WithTrace())
	}

	report := &evaluationReport{BundleVersion: snap.Version}
	var failed int
	for _, cat := range categories {
		res, err := eng.Evaluate(ctx, cat, snap, fact, opts...)
		entry := evaluationEntry{Category: cat, Result: res}
		if err != nil {
			entry.Error = err.Error()
			failed++
		}
		report.Results = append(report.Results, entry)
	}

	if err := cli.NewFormatter(format).FormatTo(os.Stdout, report); err != nil {
		return err
	}
	if failed > 0 {
		return cli.NewCommandError("evaluate", fmt.Errorf("%d of %d categories failed", failed, len(categories)))
	}
	return nil
}

// readFact merges a fact file with name=value pairs; pairs win.
func readFact(pairs []string, file string, stdin io.Reader) (map[string]any, error) {
	raw := make(map[string]any)

	if file != "" {
		var data []byte
		var err error
		if file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read fact file: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse fact file: %w", err)
		}
	}

	for _, pair := range pairs {
		name, val, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid fact %q: expected name=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(val), &v); err != nil {
			return nil, fmt.Errorf("invalid fact %q: %w", pair, err)
		}
		raw[name] = v
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("a fact is required: use --fact or --fact-file")
	}
	return raw, nil
}

// evaluationCategories returns the named category, or every category with a
// published policy in catalog order.
func evaluationCategories(snap *engine.Snapshot, name string) ([]policy.Category, error) {
	if name != "" {
		cat := policy.Category(name)
		if _, ok := snap.Catalog.Get(cat); !ok {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		return []policy.Category{cat}, nil
	}

	var cats []policy.Category
	for _, cat := range snap.Catalog.Categories() {
		for _, p := range snap.Policies(cat) {
			if p.IsPublished() {
				cats = append(cats, cat)
				break
			}
		}
	}
	if len(cats) == 0 {
		return nil, fmt.Errorf("bundle %s has no published policies", snap.Version)
	}
	return cats, nil
}

type evaluationEntry struct {
	Category policy.Category          `json:"category"`
	Result   *engine.EvaluationResult `json:"result,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

type evaluationReport struct {
	BundleVersion string            `json:"bundle_version"`
	Results       []evaluationEntry `json:"results"`
}

// WriteText implements cli.TextWriter.
func (r *evaluationReport) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Bundle %s\n\n", r.BundleVersion)
	for _, e := range r.Results {
		if e.Error != "" {
			fmt.Fprintf(w, "✗ %s: %s\n\n", e.Category, e.Error)
			continue
		}

		res := e.Result
		if len(res.MatchedPolicyIDs) == 0 {
			fmt.Fprintf(w, "○ %s: no matching policies\n", e.Category)
		} else {
			fmt.Fprintf(w, "✓ %s: matched %s\n", e.Category, strings.Join(res.MatchedPolicyIDs, ", "))
		}
		for _, name := range res.Output.Fields() {
			fmt.Fprintf(w, "    %s = %s\n", name, res.Output[name])
		}
		for _, c := range res.Conflicts {
			fmt.Fprintf(w, "  ⚠  %s: strategy %s (%s) overrides %s (%s)\n", c.Field, c.Chosen, c.ChosenBy, c.Ignored, c.IgnoredBy)
		}
		if res.Trace != nil {
			fmt.Fprintln(w, "  trace:")
			for _, pt := range res.Trace.Policies {
				switch {
				case pt.Skipped != "":
					fmt.Fprintf(w, "    - %s skipped (%s)\n", pt.PolicyID, pt.Skipped)
				case pt.Matched:
					fmt.Fprintf(w, "    - %s matched\n", pt.PolicyID)
				default:
					fmt.Fprintf(w, "    - %s not matched\n", pt.PolicyID)
				}
			}
			for _, ft := range res.Trace.Fields {
				fmt.Fprintf(w, "    %s: %s from %s %v\n", ft.Field, ft.Strategy, ft.StrategySource, ft.Contributors)
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}
