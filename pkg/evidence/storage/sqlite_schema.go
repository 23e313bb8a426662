package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the evidence database schema.
// Timestamps are stored as Unix nanoseconds so range filters compare
// numerically.
const Schema = `
CREATE TABLE IF NOT EXISTS evidence (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    timestamp INTEGER NOT NULL,

    category TEXT NOT NULL,
    bundle_version TEXT NOT NULL,

    fact TEXT NOT NULL,
    fact_hash TEXT NOT NULL,

    matched_policy_ids TEXT NOT NULL,
    output TEXT,
    outcome TEXT NOT NULL,
    error TEXT,

    duration_ms REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evidence_timestamp ON evidence(timestamp);
CREATE INDEX IF NOT EXISTS idx_evidence_request_id ON evidence(request_id);
CREATE INDEX IF NOT EXISTS idx_evidence_category ON evidence(category);
CREATE INDEX IF NOT EXISTS idx_evidence_outcome ON evidence(outcome);
CREATE INDEX IF NOT EXISTS idx_evidence_bundle_version ON evidence(bundle_version);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const selectColumns = `id, request_id, timestamp, category, bundle_version, fact, fact_hash,
	matched_policy_ids, output, outcome, error, duration_ms`
