package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/permitgate/pkg/rules/condition"
	"mercator-hq/permitgate/pkg/rules/policy"
)

// Outcome classifies an evaluation. A failed evaluation is never reported
// as a no-match.
type Outcome string

const (
	OutcomeMatched Outcome = "matched"
	OutcomeNoMatch Outcome = "no_match"
	OutcomeError   Outcome = "error"
)

// EvaluationResult is the outcome of evaluating one fact against one
// category. It is built fresh for every call and never mutated afterwards.
type EvaluationResult struct {
	Category         policy.Category     `json:"category"`
	BundleVersion    string              `json:"bundle_version,omitempty"`
	MatchedPolicyIDs []string            `json:"matched_policy_ids"`
	Output           policy.OutputRecord `json:"output"`
	Conflicts        []StrategyConflict  `json:"conflicts,omitempty"`
	Trace            *Trace              `json:"trace,omitempty"`
}

// Outcome returns OutcomeMatched or OutcomeNoMatch.
func (r *EvaluationResult) Outcome() Outcome {
	if len(r.MatchedPolicyIDs) == 0 {
		return OutcomeNoMatch
	}
	return OutcomeMatched
}

// MetricsRecorder receives evaluation telemetry. Implementations must be
// safe for concurrent use.
type MetricsRecorder interface {
	RecordEvaluation(category string, outcome string, duration time.Duration)
	RecordPolicyMatch(category string, policyID string)
	RecordMergeConflict(category string, field string)
}

// Engine evaluates facts against policy snapshots. It holds no evaluation
// state between calls; any number of goroutines may share one Engine.
type Engine struct {
	config   *EngineConfig
	resolver *Resolver
	logger   *slog.Logger
	metrics  MetricsRecorder
}

// New creates an engine. A nil config uses DefaultEngineConfig, a nil
// logger uses slog.Default() and a nil metrics recorder disables metrics.
func New(config *EngineConfig, logger *slog.Logger, metrics MetricsRecorder) (*Engine, error) {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		config:   config,
		resolver: NewResolver(logger),
		logger:   logger.With("component", "engine"),
		metrics:  metrics,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() EngineConfig {
	return *e.config
}

type evalOptions struct {
	trace bool
}

// EvalOption adjusts a single evaluation.
type EvalOption func(*evalOptions)

// WithTrace requests a trace regardless of EngineConfig.EnableTrace.
func WithTrace() EvalOption {
	return func(o *evalOptions) { o.trace = true }
}

// Evaluate matches fact against the published policies of category in snap
// and merges their outputs. With no match, the result's output is the
// category's base output.
func (e *Engine) Evaluate(ctx context.Context, category policy.Category, snap *Snapshot, fact condition.Fact, opts ...EvalOption) (*EvaluationResult, error) {
	o := evalOptions{trace: e.config.EnableTrace}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	result, err := e.evaluate(ctx, category, snap, fact, o)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.WarnContext(ctx, "evaluation failed",
			"category", category,
			"error", err,
		)
		e.record(category, OutcomeError, elapsed, nil)
		return nil, err
	}

	e.logger.DebugContext(ctx, "evaluation completed",
		"category", category,
		"matched", len(result.MatchedPolicyIDs),
		"conflicts", len(result.Conflicts),
		"duration", elapsed,
	)
	e.record(category, result.Outcome(), elapsed, result)
	return result, nil
}

func (e *Engine) evaluate(ctx context.Context, category policy.Category, snap *Snapshot, fact condition.Fact, o evalOptions) (*EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	spec, ok := snap.Catalog.Get(category)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	policies := snap.Policies(category)
	if len(policies) > e.config.MaxPolicies {
		return nil, fmt.Errorf("%w: category %s has %d policies, limit is %d", ErrTooManyPolicies, category, len(policies), e.config.MaxPolicies)
	}

	var trace *Trace
	if o.trace {
		trace = &Trace{}
	}

	matched, err := matchPolicies(condition.NewEvaluator(snap.Registry), policies, fact, trace)
	if err != nil {
		return nil, err
	}

	output, conflicts, err := e.resolver.merge(matched, spec.Base(), spec.Fields, trace)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(matched))
	for i, p := range matched {
		ids[i] = p.ID
	}

	return &EvaluationResult{
		Category:         category,
		BundleVersion:    snap.Version,
		MatchedPolicyIDs: ids,
		Output:           output,
		Conflicts:        conflicts,
		Trace:            trace,
	}, nil
}

// EvaluateAll evaluates fact against every category of the snapshot's
// catalog, in category order. The first failing category fails the call.
func (e *Engine) EvaluateAll(ctx context.Context, snap *Snapshot, fact condition.Fact, opts ...EvalOption) ([]*EvaluationResult, error) {
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	categories := snap.Catalog.Categories()
	results := make([]*EvaluationResult, 0, len(categories))
	for _, cat := range categories {
		r, err := e.Evaluate(ctx, cat, snap, fact, opts...)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat, err)
		}
		results = append(results, r)
	}
	return results, nil
}

func (e *Engine) record(category policy.Category, outcome Outcome, elapsed time.Duration, result *EvaluationResult) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordEvaluation(string(category), string(outcome), elapsed)
	if result == nil {
		return
	}
	for _, id := range result.MatchedPolicyIDs {
		e.metrics.RecordPolicyMatch(string(category), id)
	}
	for _, c := range result.Conflicts {
		e.metrics.RecordMergeConflict(string(category), c.Field)
	}
}
