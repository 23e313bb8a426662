package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys outside the OpenTelemetry semantic conventions.
const (
	AttrRequestID       = "permitgate.request_id"
	AttrCategory        = "permitgate.category"
	AttrBundleVersion   = "permitgate.bundle_version"
	AttrOutcome         = "permitgate.outcome"
	AttrMatchedPolicies = "permitgate.policies.matched"
	AttrConflicts       = "permitgate.conflicts"
	AttrBatchSize       = "permitgate.batch.size"
)

// SetEvaluationResult records the outcome of a category evaluation.
func SetEvaluationResult(span trace.Span, outcome string, matched, conflicts int) {
	span.SetAttributes(
		attribute.String(AttrOutcome, outcome),
		attribute.Int(AttrMatchedPolicies, matched),
		attribute.Int(AttrConflicts, conflicts),
	)
}

// SetError marks the span failed. A nil err leaves the span untouched.
func SetError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
