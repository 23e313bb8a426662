package attribute

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateAttribute indicates an attribute name is already registered.
	ErrDuplicateAttribute = errors.New("duplicate attribute")

	// ErrUnknownAttribute indicates an attribute name is not registered.
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrInvalidAttribute indicates a malformed attribute declaration.
	ErrInvalidAttribute = errors.New("invalid attribute")

	// ErrRegistrySealed indicates a registration after Seal.
	ErrRegistrySealed = errors.New("attribute registry is sealed")
)

// AttributeError reports a registry-time failure for one attribute.
type AttributeError struct {
	Name  string
	Cause error
}

// Error returns the error message.
func (e *AttributeError) Error() string {
	return fmt.Sprintf("attribute %q: %v", e.Name, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *AttributeError) Unwrap() error {
	return e.Cause
}
