package condition

import (
	"errors"
	"fmt"

	"mercator-hq/permitgate/pkg/rules/attribute"
)

var (
	// ErrIllegalOperator indicates an operator not legal for the attribute kind.
	ErrIllegalOperator = errors.New("illegal operator")

	// ErrMalformedValue indicates a clause operand whose shape does not fit
	// the operator or the attribute kind.
	ErrMalformedValue = errors.New("malformed value")

	// ErrFactTypeMismatch indicates a fact entry whose kind differs from the
	// attribute's declared kind.
	ErrFactTypeMismatch = errors.New("fact value does not match attribute kind")

	// ErrUnknownAttribute is attribute.ErrUnknownAttribute, re-exported so
	// callers can match evaluation failures without importing attribute.
	ErrUnknownAttribute = attribute.ErrUnknownAttribute
)

// ClauseError reports a clause rejected at construction time.
type ClauseError struct {
	Attribute string
	Operator  attribute.Operator
	Cause     error
}

// Error returns the error message.
func (e *ClauseError) Error() string {
	return fmt.Sprintf("clause %s %s: %v", e.Attribute, e.Operator, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ClauseError) Unwrap() error {
	return e.Cause
}

// EvalError reports an evaluation-time failure. It signals a configuration
// inconsistency, never absent fact data.
type EvalError struct {
	Attribute string
	Cause     error
}

// Error returns the error message.
func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluate %s: %v", e.Attribute, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *EvalError) Unwrap() error {
	return e.Cause
}
