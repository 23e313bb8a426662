package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"mercator-hq/permitgate/pkg/evidence"
)

// MemoryStorage implements evidence.Storage in memory. Records are lost on
// restart; use it for tests and the CLI's dry runs.
type MemoryStorage struct {
	records map[string]*evidence.Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]*evidence.Record)}
}

// Store persists a copy of the record.
func (s *MemoryStorage) Store(ctx context.Context, record *evidence.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return evidence.NewStorageError("memory", "store", fmt.Errorf("duplicate record id %s", record.ID))
	}
	s.records[record.ID] = copyRecord(record)
	return nil
}

// Get returns a copy of one record.
func (s *MemoryStorage) Get(ctx context.Context, id string) (*evidence.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", evidence.ErrNotFound, id)
	}
	return copyRecord(r), nil
}

// Query returns copies of matching records ordered by timestamp.
func (s *MemoryStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.Record, error) {
	s.mu.RLock()
	results := []*evidence.Record{}
	for _, r := range s.records {
		if matchesQuery(r, query) {
			results = append(results, copyRecord(r))
		}
	}
	s.mu.RUnlock()

	desc := !strings.EqualFold(query.SortOrder, "asc")
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if desc {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Timestamp.Before(b.Timestamp)
		}
		if desc {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})

	start := min(query.Offset, len(results))
	results = results[start:]
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}
	return results, nil
}

// Count returns the number of matching records.
func (s *MemoryStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if matchesQuery(r, query) {
			n++
		}
	}
	return n, nil
}

// Delete removes matching records.
func (s *MemoryStorage) Delete(ctx context.Context, query *evidence.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.records {
		if matchesQuery(r, query) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

func matchesQuery(r *evidence.Record, q *evidence.Query) bool {
	if q.StartTime != nil && r.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.RequestID != "" && r.RequestID != q.RequestID {
		return false
	}
	if q.Category != "" && r.Category != q.Category {
		return false
	}
	if q.BundleVersion != "" && r.BundleVersion != q.BundleVersion {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	if q.PolicyID != "" && !slices.Contains(r.MatchedPolicyIDs, q.PolicyID) {
		return false
	}
	return true
}

func copyRecord(r *evidence.Record) *evidence.Record {
	c := *r
	c.Fact = slices.Clone(r.Fact)
	c.Output = slices.Clone(r.Output)
	c.MatchedPolicyIDs = slices.Clone(r.MatchedPolicyIDs)
	return &c
}
