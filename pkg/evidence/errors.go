package evidence

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Storage.Get for an unknown record ID.
var ErrNotFound = errors.New("evidence record not found")

// StorageError wraps a failure of the sqlite or memory backend. Op names the
// step that failed, such as "store", "enable_wal" or "schema_version_mismatch".
type StorageError struct {
	Backend string
	Op      string
	Cause   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("evidence %s backend: %s: %v", e.Backend, e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// NewStorageError returns a StorageError for backend and op.
func NewStorageError(backend, op string, cause error) *StorageError {
	return &StorageError{Backend: backend, Op: op, Cause: cause}
}

// QueryError reports an evidence filter rejected before it reached storage:
// out of range paging, an unknown outcome or an inverted time window.
type QueryError struct {
	Query *Query
	Cause error
}

func (e *QueryError) Error() string {
	return "invalid evidence query: " + e.Cause.Error()
}

func (e *QueryError) Unwrap() error { return e.Cause }

// NewQueryError returns a QueryError for q.
func NewQueryError(q *Query, cause error) *QueryError {
	return &QueryError{Query: q, Cause: cause}
}

// RecorderError reports an evaluation record that was dropped instead of
// stored, usually because the write queue stayed full past the deadline.
type RecorderError struct {
	RecordID string
	Cause    error
}

func (e *RecorderError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("evaluation record dropped: %v", e.Cause)
	}
	return fmt.Sprintf("evaluation record %s dropped: %v", e.RecordID, e.Cause)
}

func (e *RecorderError) Unwrap() error { return e.Cause }

// NewRecorderError returns a RecorderError for the record with id.
func NewRecorderError(id string, cause error) *RecorderError {
	return &RecorderError{RecordID: id, Cause: cause}
}

// RetentionError reports a failed prune run. Days is the configured window.
type RetentionError struct {
	Days  int
	Cause error
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("evidence pruning (%d day window): %v", e.Days, e.Cause)
}

func (e *RetentionError) Unwrap() error { return e.Cause }

// NewRetentionError returns a RetentionError for a window of days.
func NewRetentionError(days int, cause error) *RetentionError {
	return &RetentionError{Days: days, Cause: cause}
}

// ExportError reports a failed json or csv export of Records evaluation
// records. Records is zero when the format itself was rejected.
type ExportError struct {
	Format  string
	Records int
	Cause   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("exporting %d evaluation records as %s: %v", e.Records, e.Format, e.Cause)
}

func (e *ExportError) Unwrap() error { return e.Cause }

// NewExportError returns an ExportError for n records in format.
func NewExportError(format string, n int, cause error) *ExportError {
	return &ExportError{Format: format, Records: n, Cause: cause}
}
