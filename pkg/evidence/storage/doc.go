// Package storage provides evidence.Storage backends.
//
// SQLiteStorage (mattn/go-sqlite3) is the production backend: WAL mode, a
// busy timeout, a versioned schema and indexes on timestamp, request ID,
// category, outcome and bundle version. MemoryStorage keeps records in a map
// and suits tests and short-lived CLI runs.
//
// Both backends treat zero query fields as "no filter" and order results by
// timestamp, newest first unless the query asks for "asc".
package storage
