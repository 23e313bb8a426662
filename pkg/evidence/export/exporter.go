package export

import (
	"context"
	"fmt"
	"io"

	"mercator-hq/permitgate/pkg/evidence"
)

// Exporter writes evidence records in one format.
type Exporter interface {
	Export(ctx context.Context, records []*evidence.Record, w io.Writer) error
	Format() string
}

// New returns the exporter for format: "json", "json-pretty" or "csv".
func New(format string) (Exporter, error) {
	switch format {
	case "json":
		return NewJSONExporter(false), nil
	case "json-pretty":
		return NewJSONExporter(true), nil
	case "csv":
		return NewCSVExporter(true), nil
	default:
		return nil, evidence.NewExportError(format, 0, fmt.Errorf("unsupported format %q (must be json, json-pretty or csv)", format))
	}
}
