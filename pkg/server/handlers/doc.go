// Package handlers implements the endpoints of the evaluation API.
//
// Handlers depend on small interfaces (SnapshotSource, Reloader, Evaluator,
// EvidenceRecorder) rather than concrete types so tests can substitute
// them; in production they are a *source.Store, an *engine.Engine and a
// *recorder.Recorder.
//
// Every error response uses the types.ErrorResponse envelope. Evaluation
// failures are never reported as a match or as no match: the category's
// result carries outcome "error" and the error text.
package handlers
