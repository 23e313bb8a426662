package evidence

import (
	"context"
	"encoding/json"
	"time"
)

// Outcome values stored in Record.Outcome.
const (
	OutcomeMatched = "matched"
	OutcomeNoMatch = "no_match"
	OutcomeError   = "error"
)

// Record is the audit trail of one evaluation of one fact against one
// category.
type Record struct {
	ID        string    `json:"id"`         // UUID v4
	RequestID string    `json:"request_id"` // correlates the records of one HTTP request
	Timestamp time.Time `json:"timestamp"`  // when the evaluation ran

	Category      string `json:"category"`
	BundleVersion string `json:"bundle_version"`

	// Fact is the evaluated fact as JSON; FactHash is its SHA-256.
	Fact     json.RawMessage `json:"fact"`
	FactHash string          `json:"fact_hash"`

	MatchedPolicyIDs []string        `json:"matched_policy_ids"`
	Output           json.RawMessage `json:"output,omitempty"`
	Outcome          string          `json:"outcome"`
	Error            string          `json:"error,omitempty"`

	DurationMs float64 `json:"duration_ms"`
}

// Query defines filter parameters for querying evidence records. Zero
// fields do not filter.
type Query struct {
	StartTime *time.Time `json:"start_time,omitempty"` // inclusive
	EndTime   *time.Time `json:"end_time,omitempty"`   // inclusive

	RequestID     string `json:"request_id,omitempty"`
	Category      string `json:"category,omitempty"`
	BundleVersion string `json:"bundle_version,omitempty"`
	PolicyID      string `json:"policy_id,omitempty"` // records that matched this policy
	Outcome       string `json:"outcome,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortOrder orders by timestamp: "asc" or "desc" (default).
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage defines the interface for evidence storage backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a record.
	Store(ctx context.Context, record *Record) error

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Query returns records matching the filters, an empty slice if none.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of records matching the filters. Limit and
	// Offset are ignored.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes records matching the filters and returns how many were
	// removed. Limit and Offset are ignored.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases resources held by the backend.
	Close() error
}

// DeleteOlderThan removes records with a timestamp at or before cutoff.
func DeleteOlderThan(ctx context.Context, s Storage, cutoff time.Time) (int64, error) {
	return s.Delete(ctx, &Query{EndTime: &cutoff})
}
