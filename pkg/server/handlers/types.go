package handlers

import (
	"context"

	"mercator-hq/permitgate/pkg/evidence/recorder"
	"mercator-hq/permitgate/pkg/rules/condition"
	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/policy"
	"mercator-hq/permitgate/pkg/rules/source"
)

// SnapshotSource provides the active policy snapshot. *source.Store
// implements it.
type SnapshotSource interface {
	Snapshot() *engine.Snapshot
}

// Reloader reloads the policy bundle. *source.Store implements it.
type Reloader interface {
	SnapshotSource
	Reload(ctx context.Context) error
	Status() source.Status
}

// Evaluator evaluates facts. *engine.Engine implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, category policy.Category, snap *engine.Snapshot, fact condition.Fact, opts ...engine.EvalOption) (*engine.EvaluationResult, error)
	EvaluateBatch(ctx context.Context, category policy.Category, snap *engine.Snapshot, facts []condition.Fact, opts ...engine.EvalOption) ([]engine.BatchItem, error)
}

// EvidenceRecorder records evaluation outcomes. *recorder.Recorder
// implements it.
type EvidenceRecorder interface {
	Record(ctx context.Context, ev recorder.Evaluation) error
}
