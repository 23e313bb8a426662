package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"mercator-hq/permitgate/pkg/rules/condition"
	"mercator-hq/permitgate/pkg/rules/policy"
)

// BatchItem is the outcome for one fact of a batch. Exactly one of Result
// and Err is set.
type BatchItem struct {
	Index  int
	Result *EvaluationResult
	Err    error
}

// EvaluateBatch evaluates every fact against category in snap using up to
// Workers goroutines. A failing fact only fails its own item. The returned
// error is non-nil only when ctx is done by the time the batch finishes; the
// items are discarded then, since some may carry partial work.
func (e *Engine) EvaluateBatch(ctx context.Context, category policy.Category, snap *Snapshot, facts []condition.Fact, opts ...EvalOption) ([]BatchItem, error) {
	items := make([]BatchItem, len(facts))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)

	for i, fact := range facts {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			r, err := e.Evaluate(gCtx, category, snap, fact, opts...)
			items[i] = BatchItem{Index: i, Result: r, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
