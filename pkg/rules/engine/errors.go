package engine

import (
	"errors"
	"fmt"

	"mercator-hq/permitgate/pkg/rules/policy"
)

// Common sentinel errors
var (
	// ErrTypeMismatch indicates a merge strategy applied to a field kind it
	// cannot combine, or field values of differing kinds.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrNoSnapshot indicates evaluation without a loaded policy snapshot.
	ErrNoSnapshot = errors.New("no policy snapshot loaded")

	// ErrInvalidSnapshot indicates a snapshot rejected at construction.
	ErrInvalidSnapshot = errors.New("invalid policy snapshot")

	// ErrTooManyPolicies indicates a category exceeding the configured limit.
	ErrTooManyPolicies = errors.New("too many policies")

	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrUnknownCategory is policy.ErrUnknownCategory.
	ErrUnknownCategory = policy.ErrUnknownCategory
)

// MatchError reports a condition evaluation failure for one policy. Any
// MatchError fails the whole match; partial results are never returned.
type MatchError struct {
	PolicyID string
	Cause    error
}

// Error returns the error message.
func (e *MatchError) Error() string {
	return fmt.Sprintf("policy %s: condition evaluation failed: %v", e.PolicyID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *MatchError) Unwrap() error {
	return e.Cause
}

// MergeError reports a merge-time failure for one output field.
type MergeError struct {
	Field    string
	Strategy policy.MergeStrategy
	Kind     policy.FieldKind
	PolicyID string
	Cause    error
}

// Error returns the error message.
func (e *MergeError) Error() string {
	if e.PolicyID != "" {
		return fmt.Sprintf("merge field %q (%s, %s) from policy %s: %v", e.Field, e.Strategy, e.Kind, e.PolicyID, e.Cause)
	}
	return fmt.Sprintf("merge field %q (%s, %s): %v", e.Field, e.Strategy, e.Kind, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *MergeError) Unwrap() error {
	return e.Cause
}
