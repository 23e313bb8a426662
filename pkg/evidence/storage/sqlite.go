package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/permitgate/pkg/config"
	"mercator-hq/permitgate/pkg/evidence"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         config.DefaultEvidenceSQLitePath,
		MaxOpenConns: config.DefaultEvidenceMaxOpenConns,
		MaxIdleConns: config.DefaultEvidenceMaxIdleConns,
		WALMode:      true,
		BusyTimeout:  config.DefaultEvidenceBusyTimeout,
	}
}

// SQLiteConfigFrom converts the evidence section of the application config.
func SQLiteConfigFrom(cfg *config.EvidenceSQLiteConfig) *SQLiteConfig {
	return &SQLiteConfig{
		Path:         cfg.Path,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		WALMode:      cfg.WALMode,
		BusyTimeout:  cfg.BusyTimeout,
	}
}

// SQLiteStorage implements evidence.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	insert *sql.Stmt
	logger *slog.Logger
}

// NewSQLiteStorage opens the database, enables WAL mode if configured and
// creates the schema.
func NewSQLiteStorage(cfg *SQLiteConfig, logger *slog.Logger) (*SQLiteStorage, error) {
	if cfg == nil {
		cfg = DefaultSQLiteConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "evidence.storage.sqlite")

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	s := &SQLiteStorage{db: db, config: cfg, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", cfg.Path,
		"wal_mode", cfg.WALMode,
		"max_open_conns", cfg.MaxOpenConns,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return evidence.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return evidence.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return evidence.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return evidence.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return evidence.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return evidence.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	stmt, err := s.db.Prepare(`
		INSERT INTO evidence (
			id, request_id, timestamp, category, bundle_version, fact, fact_hash,
			matched_policy_ids, output, outcome, error, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return evidence.NewStorageError("sqlite", "prepare", err)
	}
	s.insert = stmt
	return nil
}

// Store persists a record.
func (s *SQLiteStorage) Store(ctx context.Context, record *evidence.Record) error {
	matched, err := json.Marshal(nonNil(record.MatchedPolicyIDs))
	if err != nil {
		return evidence.NewStorageError("sqlite", "store", err)
	}

	var errorVal, outputVal any
	if record.Error != "" {
		errorVal = record.Error
	}
	if len(record.Output) > 0 {
		outputVal = string(record.Output)
	}

	_, err = s.insert.ExecContext(ctx,
		record.ID, record.RequestID, record.Timestamp.UnixNano(),
		record.Category, record.BundleVersion,
		string(record.Fact), record.FactHash,
		string(matched), outputVal, record.Outcome, errorVal,
		record.DurationMs,
	)
	if err != nil {
		return evidence.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Get returns one record by ID.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*evidence.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM evidence WHERE id = ?", id)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "get", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, evidence.NewStorageError("sqlite", "get", err)
		}
		return nil, fmt.Errorf("%w: %s", evidence.ErrNotFound, id)
	}
	record, err := scanRow(rows)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "scan", err)
	}
	return record, nil
}

// Query retrieves records matching the filters, newest first unless
// SortOrder is "asc".
func (s *SQLiteStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.Record, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "SELECT " + selectColumns + " FROM evidence"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	order := "DESC"
	if strings.EqualFold(query.SortOrder, "asc") {
		order = "ASC"
	}
	sqlQuery += fmt.Sprintf(" ORDER BY timestamp %s, id %s", order, order)

	if query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
		if query.Offset > 0 {
			sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
		}
	} else if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT -1 OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*evidence.Record{}
	for rows.Next() {
		record, err := scanRow(rows)
		if err != nil {
			return nil, evidence.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError("sqlite", "query", err)
	}
	return records, nil
}

// Count returns the number of records matching the filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM evidence"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, evidence.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes records matching the filters.
func (s *SQLiteStorage) Delete(ctx context.Context, query *evidence.Query) (int64, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "DELETE FROM evidence"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, evidence.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, evidence.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if s.insert != nil {
		s.insert.Close()
	}
	if err := s.db.Close(); err != nil {
		return evidence.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

// buildWhereClause returns the WHERE clause (without the keyword) and its
// arguments.
func buildWhereClause(query *evidence.Query) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	if query.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, query.EndTime.UnixNano())
	}
	if query.RequestID != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, query.RequestID)
	}
	if query.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, query.Category)
	}
	if query.BundleVersion != "" {
		conditions = append(conditions, "bundle_version = ?")
		args = append(args, query.BundleVersion)
	}
	if query.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, query.Outcome)
	}
	if query.PolicyID != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM json_each(evidence.matched_policy_ids) WHERE json_each.value = ?)")
		args = append(args, query.PolicyID)
	}

	return strings.Join(conditions, " AND "), args
}

func scanRow(rows *sql.Rows) (*evidence.Record, error) {
	var (
		record            evidence.Record
		ts                int64
		fact, matched     string
		output, errorText sql.NullString
	)

	err := rows.Scan(
		&record.ID, &record.RequestID, &ts,
		&record.Category, &record.BundleVersion,
		&fact, &record.FactHash,
		&matched, &output, &record.Outcome, &errorText,
		&record.DurationMs,
	)
	if err != nil {
		return nil, err
	}

	record.Timestamp = time.Unix(0, ts).UTC()
	record.Fact = json.RawMessage(fact)
	if output.Valid {
		record.Output = json.RawMessage(output.String)
	}
	if errorText.Valid {
		record.Error = errorText.String
	}
	if err := json.Unmarshal([]byte(matched), &record.MatchedPolicyIDs); err != nil {
		return nil, errors.Join(fmt.Errorf("corrupt matched_policy_ids for %s", record.ID), err)
	}
	return &record, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
