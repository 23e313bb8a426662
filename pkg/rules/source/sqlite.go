package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/permitgate/pkg/rules/parser"
)

const bundleSchema = `
CREATE TABLE IF NOT EXISTS bundle_revisions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	version    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(name, version)
);

CREATE TABLE IF NOT EXISTS bundle_documents (
	revision_id INTEGER NOT NULL REFERENCES bundle_revisions(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	doc_name    TEXT NOT NULL,
	data        BLOB NOT NULL,
	PRIMARY KEY (revision_id, position)
);

CREATE INDEX IF NOT EXISTS idx_bundle_revisions_name ON bundle_revisions(name, id);
`

// SQLiteConfig configures a SQLiteSource.
type SQLiteConfig struct {
	// Path is the database file.
	Path string

	// Name selects the named bundle. Default: "default".
	Name string

	// BusyTimeout is how long to wait for locks. Default: 5s.
	BusyTimeout time.Duration
}

// Revision describes one stored bundle version.
type Revision struct {
	ID        int64
	Name      string
	Version   string
	CreatedAt time.Time
	Documents int
}

// SQLiteSource stores versioned bundles in SQLite. Every Put appends a
// revision; Load serves the newest one.
type SQLiteSource struct {
	db     *sql.DB
	name   string
	parser *parser.Parser

	mu         sync.Mutex
	lastLoaded int64
	closeOnce  sync.Once
}

// NewSQLiteSource opens (creating if needed) a bundle database. A nil
// parser uses parser.NewParser().
func NewSQLiteSource(cfg SQLiteConfig, p *parser.Parser) (*SQLiteSource, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if p == nil {
		p = parser.NewParser()
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(bundleSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteSource{db: db, name: cfg.Name, parser: p}, nil
}

// Name returns "sqlite:<bundle name>".
func (s *SQLiteSource) Name() string {
	return "sqlite:" + s.name
}

// Put validates docs and stores them as a new revision. An empty version
// takes the parsed bundle's version. Storing an existing version fails with
// ErrVersionExists.
func (s *SQLiteSource) Put(ctx context.Context, version string, docs []parser.Document) (Revision, error) {
	if len(docs) == 0 {
		return Revision{}, fmt.Errorf("%w: no documents to store", ErrNoBundle)
	}
	bundle, err := s.parser.ParseDocuments(docs)
	if err != nil {
		return Revision{}, err
	}
	if version == "" {
		version = bundle.Version
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Revision{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bundle_revisions (name, version, created_at) VALUES (?, ?, ?)`,
		s.name, version, now.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return Revision{}, fmt.Errorf("%w: %s@%s", ErrVersionExists, s.name, version)
		}
		return Revision{}, fmt.Errorf("failed to insert revision: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Revision{}, fmt.Errorf("failed to read revision id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO bundle_documents (revision_id, position, doc_name, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return Revision{}, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range docs {
		if _, err := stmt.ExecContext(ctx, id, i, d.Name, d.Data); err != nil {
			return Revision{}, fmt.Errorf("failed to insert document %s: %w", d.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Revision{}, fmt.Errorf("failed to commit revision: %w", err)
	}

	return Revision{ID: id, Name: s.name, Version: version, CreatedAt: now, Documents: len(docs)}, nil
}

// Load parses the newest revision.
func (s *SQLiteSource) Load(ctx context.Context) (*parser.Bundle, error) {
	id, version, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}
	bundle, err := s.loadRevision(ctx, id, version)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lastLoaded = id
	s.mu.Unlock()
	return bundle, nil
}

// LoadVersion parses a specific stored version without changing what Sync
// compares against.
func (s *SQLiteSource) LoadVersion(ctx context.Context, version string) (*parser.Bundle, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM bundle_revisions WHERE name = ? AND version = ?`, s.name, version).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s@%s", ErrNoBundle, s.name, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query revision: %w", err)
	}
	return s.loadRevision(ctx, id, version)
}

// Versions lists stored revisions, newest first.
func (s *SQLiteSource) Versions(ctx context.Context) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.version, r.created_at, COUNT(d.position)
		FROM bundle_revisions r
		LEFT JOIN bundle_documents d ON d.revision_id = r.id
		WHERE r.name = ?
		GROUP BY r.id
		ORDER BY r.id DESC`, s.name)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	var revs []Revision
	for rows.Next() {
		var (
			r       Revision
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Version, &created, &r.Documents); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		r.Name = s.name
		r.CreatedAt = time.Unix(0, created).UTC()
		revs = append(revs, r)
	}
	return revs, rows.Err()
}

// Sync reports whether a revision newer than the last Load exists.
func (s *SQLiteSource) Sync(ctx context.Context) (bool, error) {
	id, _, err := s.latest(ctx)
	if errors.Is(err, ErrNoBundle) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return id != s.lastLoaded, nil
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteSource) latest(ctx context.Context) (int64, string, error) {
	var (
		id      int64
		version string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, version FROM bundle_revisions WHERE name = ? ORDER BY id DESC LIMIT 1`, s.name).
		Scan(&id, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", fmt.Errorf("%w: no revisions stored for %s", ErrNoBundle, s.name)
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to query latest revision: %w", err)
	}
	return id, version, nil
}

func (s *SQLiteSource) loadRevision(ctx context.Context, id int64, version string) (*parser.Bundle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_name, data FROM bundle_documents WHERE revision_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []parser.Document
	for rows.Next() {
		var d parser.Document
		if err := rows.Scan(&d.Name, &d.Data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bundle, err := s.parser.ParseDocuments(docs)
	if err != nil {
		return nil, err
	}
	bundle.Version = version
	return bundle, nil
}
