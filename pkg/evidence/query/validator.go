package query

import (
	"fmt"

	"mercator-hq/permitgate/pkg/config"
	"mercator-hq/permitgate/pkg/evidence"
)

const (
	// DefaultLimit is used when a query sets no limit.
	DefaultLimit = config.DefaultEvidenceQueryLimit

	// MaxLimit caps a single query when no other cap is configured.
	MaxLimit = config.DefaultEvidenceQueryMaxLimit
)

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// ValidOutcomes contains the outcomes a query may filter on.
var ValidOutcomes = map[string]bool{
	evidence.OutcomeMatched: true,
	evidence.OutcomeNoMatch: true,
	evidence.OutcomeError:   true,
}

// Validate checks q against maxLimit. A maxLimit of 0 means MaxLimit.
func Validate(q *evidence.Query, maxLimit int) error {
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}

	if q.Limit < 0 {
		return evidence.NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > maxLimit {
		return evidence.NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", maxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return evidence.NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}

	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return evidence.NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}
	if q.Outcome != "" && !ValidOutcomes[q.Outcome] {
		return evidence.NewQueryError(q, fmt.Errorf("invalid outcome: %s (must be 'matched', 'no_match' or 'error')", q.Outcome))
	}

	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return evidence.NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}

	return nil
}

// ApplyDefaults fills the limit and sort order. A defaultLimit of 0 means
// DefaultLimit.
func ApplyDefaults(q *evidence.Query, defaultLimit int) {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}
