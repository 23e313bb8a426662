package source

import (
	"context"
	"errors"

	"mercator-hq/permitgate/pkg/rules/parser"
)

var (
	// ErrNoBundle indicates a source with nothing to load.
	ErrNoBundle = errors.New("no rule bundle found")

	// ErrVersionExists indicates a bundle version that is already stored.
	ErrVersionExists = errors.New("bundle version already exists")

	// ErrNotInitialized indicates a git source used before it was cloned.
	ErrNotInitialized = errors.New("repository not initialized")
)

// Source loads a rule bundle.
type Source interface {
	// Name identifies the source in logs and status output.
	Name() string

	// Load reads and parses the current bundle.
	Load(ctx context.Context) (*parser.Bundle, error)
}

// Syncer is a Source that can tell whether its upstream changed since the
// last Load.
type Syncer interface {
	Source

	// Sync refreshes from upstream and reports whether a reload is needed.
	Sync(ctx context.Context) (changed bool, err error)
}
