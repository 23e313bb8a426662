package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/permitgate/pkg/evidence"
)

// JSONExporter writes records as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Format returns "json".
func (e *JSONExporter) Format() string { return "json" }

// Export writes records to w. An empty slice is written as [].
func (e *JSONExporter) Export(ctx context.Context, records []*evidence.Record, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return evidence.NewExportError("json", len(records), err)
	}
	if records == nil {
		records = []*evidence.Record{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		return evidence.NewExportError("json", len(records), err)
	}
	return nil
}
