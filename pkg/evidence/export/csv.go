package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/permitgate/pkg/evidence"
)

// CSVHeader is the column order written by CSVExporter.
var CSVHeader = []string{
	"id", "request_id", "timestamp",
	"category", "bundle_version",
	"fact", "fact_hash",
	"matched_policy_ids", "output", "outcome", "error",
	"duration_ms",
}

// CSVExporter writes one row per record. Fact and output stay JSON encoded
// inside their cells; matched policy IDs are joined with ";".
type CSVExporter struct {
	// IncludeHeader writes CSVHeader as the first row.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Format returns "csv".
func (e *CSVExporter) Format() string { return "csv" }

// Export writes records to w.
func (e *CSVExporter) Export(ctx context.Context, records []*evidence.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(CSVHeader); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	for i, record := range records {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return evidence.NewExportError("csv", len(records), err)
			}
		}
		if err := writer.Write(recordToRow(record)); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return evidence.NewExportError("csv", len(records), err)
	}
	return nil
}

func recordToRow(record *evidence.Record) []string {
	return []string{
		record.ID,
		record.RequestID,
		record.Timestamp.UTC().Format(time.RFC3339Nano),
		record.Category,
		record.BundleVersion,
		string(record.Fact),
		record.FactHash,
		strings.Join(record.MatchedPolicyIDs, ";"),
		string(record.Output),
		record.Outcome,
		record.Error,
		strconv.FormatFloat(record.DurationMs, 'f', 3, 64),
	}
}
