package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"mercator-hq/permitgate/pkg/cli"
	"mercator-hq/permitgate/pkg/rules/condition"
	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/parser"
	"mercator-hq/permitgate/pkg/rules/policy"
)

var benchmarkFlags struct {
	bundle      string
	category    string
	facts       []string
	factsFile   string
	iterations  int
	concurrency int
	trace       bool
	format      string
}

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Measure evaluation performance",
	Long: `Evaluate facts against a bundle in-process and report latency and
throughput.

Facts come from --fact name=value pairs (one fact) or --facts-file, a YAML
list of fact mappings that is cycled through. Each iteration evaluates one
fact against every selected category.

Metrics Collected:
  - Evaluation throughput (evals/sec)
  - Latency percentiles (p50, p95, p99, max)
  - Outcome counts (matched, no_match, error)

Examples:
  # 10000 evaluations on 4 goroutines
  permitgate benchmark --bundle rules/ --facts-file loads.yaml --iterations 10000 --concurrency 4

  # Single category with tracing enabled
  permitgate benchmark --bundle rules/ --category escort --fact width_ft=14 --trace`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	benchmarkCmd.Flags().StringVarP(&benchmarkFlags.bundle, "bundle", "b", "", "bundle file or directory (default: configured source)")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.category, "category", "", "category to evaluate (default: all published)")
	benchmarkCmd.Flags().StringArrayVarP(&benchmarkFlags.facts, "fact", "f", nil, "fact entry name=value (repeatable)")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.factsFile, "facts-file", "", "YAML list of facts")
	benchmarkCmd.Flags().IntVarP(&benchmarkFlags.iterations, "iterations", "n", 1000, "number of evaluations")
	benchmarkCmd.Flags().IntVar(&benchmarkFlags.concurrency, "concurrency", 1, "concurrent evaluators")
	benchmarkCmd.Flags().BoolVar(&benchmarkFlags.trace, "trace", false, "evaluate with tracing enabled")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.format, "format", "text", "output format: text, json")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(benchmarkFlags.format, cli.FormatText, cli.FormatJSON)
	if err != nil {
		return err
	}
	if benchmarkFlags.iterations <= 0 {
		return fmt.Errorf("--iterations must be positive")
	}
	if benchmarkFlags.concurrency <= 0 {
		return fmt.Errorf("--concurrency must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	store, err := loadSnapshot(ctx, cfg, benchmarkFlags.bundle, logger)
	if err != nil {
		return cli.NewCommandError("benchmark", err)
	}
	snap := store.Snapshot()

	rawFacts, err := readFacts(benchmarkFlags.facts, benchmarkFlags.factsFile)
	if err != nil {
		return cli.NewCommandError("benchmark", err)
	}
	facts := make([]condition.Fact, len(rawFacts))
	for i, raw := range rawFacts {
		if facts[i], err = parser.ParseFact(raw, snap.Registry); err != nil {
			return cli.NewCommandError("benchmark", fmt.Errorf("fact %d: %w", i, err))
		}
	}

	categories, err := evaluationCategories(snap, benchmarkFlags.category)
	if err != nil {
		return cli.NewCommandError("benchmark", err)
	}

	eng, err := newEngine(cfg, logger, nil)
	if err != nil {
		return err
	}

	var opts []engine.EvalOption
	if benchmarkFlags.trace {
		opts = append(opts, engine.WithTrace())
	}

	progress := cli.NewProgressReporter(os.Stderr, "evals")
	results := runLoad(ctx, eng, snap, categories, facts, opts, benchmarkFlags.iterations, benchmarkFlags.concurrency, progress)
	results.BundleVersion = snap.Version

	return cli.NewFormatter(format).FormatTo(os.Stdout, results)
}

// readFacts returns the facts to cycle through: the --fact pairs as one fact,
// followed by every entry of the facts file.
func readFacts(pairs []string, file string) ([]map[string]any, error) {
	var facts []map[string]any
	if len(pairs) > 0 {
		raw, err := readFact(pairs, "", nil)
		if err != nil {
			return nil, err
		}
		facts = append(facts, raw)
	}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read facts file: %w", err)
		}
		var list []map[string]any
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse facts file: %w", err)
		}
		facts = append(facts, list...)
	}

	if len(facts) == 0 {
		return nil, fmt.Errorf("no facts to evaluate: use --fact or --facts-file")
	}
	return facts, nil
}

type benchmarkResults struct {
	BundleVersion string         `json:"bundle_version"`
	Iterations    int            `json:"iterations"`
	Concurrency   int            `json:"concurrency"`
	Categories    int            `json:"categories"`
	Evaluations   int            `json:"evaluations"`
	Outcomes      map[string]int `json:"outcomes"`
	Duration      time.Duration  `json:"duration_ns"`
	Throughput    float64        `json:"evals_per_sec"`
	Latency       latencyStats   `json:"latency"`
	Interrupted   bool           `json:"interrupted,omitempty"`

	latencies []time.Duration
}

type latencyStats struct {
	Min    time.Duration `json:"min_ns"`
	Mean   time.Duration `json:"mean_ns"`
	Median time.Duration `json:"p50_ns"`
	P95    time.Duration `json:"p95_ns"`
	P99    time.Duration `json:"p99_ns"`
	Max    time.Duration `json:"max_ns"`
}

// runLoad performs iterations evaluations spread over concurrency goroutines.
// Iteration i evaluates facts[i%len(facts)] against every category.
func runLoad(ctx context.Context, eng *engine.Engine, snap *engine.Snapshot, categories []policy.Category,
	facts []condition.Fact, opts []engine.EvalOption, iterations, concurrency int, progress cli.ProgressReporter) *benchmarkResults {
	results := &benchmarkResults{
		Iterations:  iterations,
		Concurrency: concurrency,
		Categories:  len(categories),
		Outcomes:    make(map[string]int),
		latencies:   make([]time.Duration, 0, iterations*len(categories)),
	}

	var mu sync.Mutex
	progress.Start(int64(iterations))
	start := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i := range iterations {
		if ctx.Err() != nil {
			results.Interrupted = true
			break
		}
		fact := facts[i%len(facts)]
		g.Go(func() error {
			for _, cat := range categories {
				evalStart := time.Now()
				res, err := eng.Evaluate(ctx, cat, snap, fact, opts...)
				elapsed := time.Since(evalStart)

				outcome := engine.OutcomeError
				if err == nil {
					outcome = res.Outcome()
				}

				mu.Lock()
				results.latencies = append(results.latencies, elapsed)
				results.Outcomes[string(outcome)]++
				mu.Unlock()
			}
			progress.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	if results.Interrupted {
		progress.Error(fmt.Errorf("interrupted"))
	} else {
		progress.Finish()
	}

	results.Duration = time.Since(start)
	results.Evaluations = len(results.latencies)
	if secs := results.Duration.Seconds(); secs > 0 {
		results.Throughput = float64(results.Evaluations) / secs
	}
	results.Latency = calculatePercentiles(results.latencies)
	return results
}

func calculatePercentiles(latencies []time.Duration) latencyStats {
	if len(latencies) == 0 {
		return latencyStats{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}

	at := func(q float64) time.Duration {
		return sorted[min(int(float64(len(sorted))*q), len(sorted)-1)]
	}
	return latencyStats{
		Min:    sorted[0],
		Mean:   sum / time.Duration(len(sorted)),
		Median: at(0.50),
		P95:    at(0.95),
		P99:    at(0.99),
		Max:    sorted[len(sorted)-1],
	}
}

// WriteText implements cli.TextWriter.
func (r *benchmarkResults) WriteText(w io.Writer) error {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

	fmt.Fprintln(w, "Results:")
	fmt.Fprintln(w, "--------")
	fmt.Fprintf(w, "Bundle:          %s\n", r.BundleVersion)
	fmt.Fprintf(w, "Evaluations:     %d (%d iterations x %d categories, concurrency %d)\n",
		r.Evaluations, r.Iterations, r.Categories, r.Concurrency)
	fmt.Fprintf(w, "Duration:        %.2fs\n", r.Duration.Seconds())
	fmt.Fprintf(w, "Throughput:      %.0f evals/s\n", r.Throughput)
	if r.Interrupted {
		fmt.Fprintln(w, "Interrupted:     yes")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Latency:")
	fmt.Fprintf(w, "  Min:     %.3fms\n", ms(r.Latency.Min))
	fmt.Fprintf(w, "  Mean:    %.3fms\n", ms(r.Latency.Mean))
	fmt.Fprintf(w, "  Median:  %.3fms\n", ms(r.Latency.Median))
	fmt.Fprintf(w, "  p95:     %.3fms\n", ms(r.Latency.P95))
	fmt.Fprintf(w, "  p99:     %.3fms\n", ms(r.Latency.P99))
	fmt.Fprintf(w, "  Max:     %.3fms\n", ms(r.Latency.Max))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Outcomes:")
	for _, o := range []engine.Outcome{engine.OutcomeMatched, engine.OutcomeNoMatch, engine.OutcomeError} {
		n := r.Outcomes[string(o)]
		pct := float64(n) / float64(max(r.Evaluations, 1)) * 100
		fmt.Fprintf(w, "  %-9s %d (%.0f%%)\n", o+":", n, pct)
	}
	return nil
}
