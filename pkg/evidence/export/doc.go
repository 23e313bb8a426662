// Package export writes evidence records as JSON or CSV.
//
//	exporter, err := export.New("csv")
//	if err != nil {
//	    return err
//	}
//	if err := exporter.Export(ctx, records, os.Stdout); err != nil {
//	    return err
//	}
//
// JSON output is always an array, so an archive of one record reads back
// the same way as an archive of many. Failures are reported as
// *evidence.ExportError.
package export
