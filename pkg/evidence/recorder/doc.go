// Package recorder turns evaluation outcomes into evidence records and
// writes them in the background.
//
// Record returns as soon as the record is queued. A full queue blocks for at
// most WriteTimeout before the record is dropped with an error; Close drains
// whatever is queued before returning.
//
// Records carry a UUID, the fact as JSON with its SHA-256 hash, the matched
// policy IDs and the merged output. Failed evaluations are recorded with
// outcome "error" and the error text.
package recorder
