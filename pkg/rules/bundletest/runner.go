// Package bundletest runs the test cases embedded in a rule bundle through
// the engine and reports what differed from the expectation.
package bundletest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/parser"
)

// Result is the outcome of one test case.
type Result struct {
	Name     string        `json:"name"`
	Category string        `json:"category"`
	Location string        `json:"location"`
	Passed   bool          `json:"passed"`
	Diffs    []string      `json:"diffs,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`

	// Actual is nil when evaluation failed.
	Actual *engine.EvaluationResult `json:"actual,omitempty"`
}

// Report collects the results of a run.
type Report struct {
	Results []Result `json:"results"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
}

// OK reports whether every case passed.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Failures returns the failed results.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Runner evaluates bundle test cases.
type Runner struct {
	engine *engine.Engine
}

// NewRunner creates a runner around eng.
func NewRunner(eng *engine.Engine) *Runner {
	return &Runner{engine: eng}
}

// RunBundle builds a snapshot from b and runs its tests. A bundle whose
// snapshot cannot be built fails before any case runs.
func (r *Runner) RunBundle(ctx context.Context, b *parser.Bundle) (*Report, error) {
	snap, err := engine.NewSnapshot(b.Registry, b.Catalog, b.Policies, b.Version)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, snap, b.Tests), nil
}

// Run evaluates each case against snap in order.
func (r *Runner) Run(ctx context.Context, snap *engine.Snapshot, cases []parser.TestCase) *Report {
	report := &Report{Results: make([]Result, 0, len(cases))}
	for _, tc := range cases {
		res := r.runCase(ctx, snap, tc)
		if res.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func (r *Runner) runCase(ctx context.Context, snap *engine.Snapshot, tc parser.TestCase) Result {
	start := time.Now()
	res := Result{
		Name:     tc.Name,
		Category: string(tc.Category),
		Location: tc.Location.String(),
	}

	actual, err := r.engine.Evaluate(ctx, tc.Category, snap, tc.Fact)
	res.Duration = time.Since(start)

	switch {
	case tc.Expect.Error && err != nil:
		res.Passed = true
		return res
	case tc.Expect.Error:
		res.Actual = actual
		res.Diffs = []string{fmt.Sprintf("expected an evaluation error, got outcome %s", actual.Outcome())}
		return res
	case err != nil:
		res.Error = err.Error()
		return res
	}

	res.Actual = actual
	res.Diffs = Diff(tc.Expect, actual)
	res.Passed = len(res.Diffs) == 0
	return res
}

// Diff compares an expectation with an evaluation result. Matched IDs are
// compared only when the expectation lists them; output fields only for
// the fields it names.
func Diff(want parser.Expectation, got *engine.EvaluationResult) []string {
	var diffs []string

	if want.Matched != nil && !slices.Equal(want.Matched, got.MatchedPolicyIDs) {
		diffs = append(diffs, fmt.Sprintf("matched: got %s, want %s",
			idList(got.MatchedPolicyIDs), idList(want.Matched)))
	}

	for _, field := range want.Output.Fields() {
		w := want.Output[field]
		g, ok := got.Output[field]
		switch {
		case !ok:
			diffs = append(diffs, fmt.Sprintf("output.%s: missing, want %s", field, w))
		case !g.Equal(w):
			diffs = append(diffs, fmt.Sprintf("output.%s: got %s, want %s", field, g, w))
		}
	}
	return diffs
}

func idList(ids []string) string {
	return "[" + strings.Join(ids, ", ") + "]"
}
