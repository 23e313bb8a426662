package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/permitgate/pkg/cli"
	"mercator-hq/permitgate/pkg/evidence"
	"mercator-hq/permitgate/pkg/evidence/export"
	"mercator-hq/permitgate/pkg/evidence/query"
	"mercator-hq/permitgate/pkg/evidence/retention"
)

var evidenceFlags struct {
	timeRange     string
	category      string
	outcome       string
	policy        string
	requestID     string
	bundleVersion string
	limit         int
	offset        int
	order         string
	format        string
	output        string
	dryRun        bool
}

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Query evidence database",
	Long: `Query, summarize and prune evaluation evidence.

Every evaluation served by permitgate leaves a record: the fact, its hash,
the bundle version, the matched policies and the merged output.

Subcommands:
  query   - Query evidence records with filters
  report  - Summarize records by category, outcome and policy
  prune   - Apply the retention policy now

Examples:
  # Escort evaluations that matched a policy
  permitgate evidence query --category escort --outcome matched

  # Everything one HTTP request produced
  permitgate evidence query --request-id 6f1c...

  # Export a day to CSV
  permitgate evidence query --time-range "2026-03-01T00:00:00Z/2026-03-02T00:00:00Z" --format csv -o day.csv`,
}

var evidenceQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query evidence records",
	Long: `Query evidence records with various filters.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-03-01T00:00:00Z/2026-03-02T00:00:00Z"`,
	RunE: queryEvidence,
}

var evidenceReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize evidence records",
	RunE:  reportEvidence,
}

var evidencePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete records outside the retention policy",
	Long: `Apply evidence.retention immediately: delete records older than
retention.days and the oldest records beyond retention.max_records, archiving
them to retention.archive_path first when it is set.`,
	RunE: pruneEvidence,
}

func init() {
	rootCmd.AddCommand(evidenceCmd)
	evidenceCmd.AddCommand(evidenceQueryCmd, evidenceReportCmd, evidencePruneCmd)

	for _, c := range []*cobra.Command{evidenceQueryCmd, evidenceReportCmd} {
		c.Flags().StringVar(&evidenceFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
		c.Flags().StringVar(&evidenceFlags.category, "category", "", "filter by category")
		c.Flags().StringVar(&evidenceFlags.policy, "policy", "", "filter by matched policy id")
		c.Flags().StringVar(&evidenceFlags.bundleVersion, "bundle-version", "", "filter by bundle version")
	}

	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.outcome, "outcome", "", "filter by outcome (matched, no_match, error)")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.requestID, "request-id", "", "filter by request id")
	evidenceQueryCmd.Flags().IntVar(&evidenceFlags.limit, "limit", 0, "max results (default: evidence.query.default_limit)")
	evidenceQueryCmd.Flags().IntVar(&evidenceFlags.offset, "offset", 0, "pagination offset")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.order, "order", "desc", "timestamp order: asc, desc")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.format, "format", "text", "output format: text, json, csv")
	evidenceQueryCmd.Flags().StringVarP(&evidenceFlags.output, "output", "o", "", "output file (default: stdout)")

	evidencePruneCmd.Flags().BoolVar(&evidenceFlags.dryRun, "dry-run", false, "show the retention policy without deleting")
}

func openEvidenceFromConfig() (evidence.Storage, int, int, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, 0, 0, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, 0, 0, err
	}
	st, err := openEvidence(cfg, logger)
	if err != nil {
		return nil, 0, 0, err
	}
	return st, cfg.Evidence.Query.DefaultLimit, cfg.Evidence.Query.MaxLimit, nil
}

// buildQuery turns the filter flags into a query.
func buildQuery() (*evidence.Query, error) {
	q := &evidence.Query{
		Category:      evidenceFlags.category,
		Outcome:       evidenceFlags.outcome,
		PolicyID:      evidenceFlags.policy,
		RequestID:     evidenceFlags.requestID,
		BundleVersion: evidenceFlags.bundleVersion,
		Limit:         evidenceFlags.limit,
		Offset:        evidenceFlags.offset,
		SortOrder:     evidenceFlags.order,
	}

	if evidenceFlags.timeRange != "" {
		start, end, err := parseTimeRange(evidenceFlags.timeRange)
		if err != nil {
			return nil, err
		}
		q.StartTime, q.EndTime = &start, &end
	}
	return q, nil
}

func parseTimeRange(s string) (start, end time.Time, err error) {
	from, to, ok := strings.Cut(s, "/")
	if !ok {
		return start, end, fmt.Errorf("invalid time range format (expected: start/end)")
	}
	if start, err = time.Parse(time.RFC3339, from); err != nil {
		return start, end, fmt.Errorf("invalid start time: %w", err)
	}
	if end, err = time.Parse(time.RFC3339, to); err != nil {
		return start, end, fmt.Errorf("invalid end time: %w", err)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("invalid time range: end is before start")
	}
	return start, end, nil
}

func queryEvidence(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(evidenceFlags.format, cli.FormatText, cli.FormatJSON, cli.FormatCSV)
	if err != nil {
		return err
	}

	q, err := buildQuery()
	if err != nil {
		return err
	}

	st, defaultLimit, maxLimit, err := openEvidenceFromConfig()
	if err != nil {
		return err
	}
	defer st.Close()

	query.ApplyDefaults(q, defaultLimit)
	if err := query.Validate(q, maxLimit); err != nil {
		return err
	}

	ctx := context.Background()
	records, err := st.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("evidence", fmt.Errorf("query failed: %w", err))
	}
	total, err := st.Count(ctx, q)
	if err != nil {
		return cli.NewCommandError("evidence", fmt.Errorf("count failed: %w", err))
	}

	var out io.Writer = os.Stdout
	if evidenceFlags.output != "" {
		f, err := os.Create(evidenceFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch format {
	case cli.FormatJSON, cli.FormatCSV:
		name := string(format)
		if format == cli.FormatJSON {
			name = "json-pretty"
		}
		exp, err := export.New(name)
		if err != nil {
			return err
		}
		return exp.Export(ctx, records, out)
	default:
		return writeEvidenceText(out, records, total, q)
	}
}

func writeEvidenceText(w io.Writer, records []*evidence.Record, total int64, q *evidence.Query) error {
	if q.StartTime != nil && q.EndTime != nil {
		fmt.Fprintf(w, "Time range: %s to %s\n", q.StartTime.Format(time.RFC3339), q.EndTime.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Records: %d of %d\n\n", len(records), total)

	if len(records) == 0 {
		fmt.Fprintln(w, "No records found.")
		return nil
	}

	for i, r := range records {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Record ID: %s\n", r.ID)
		fmt.Fprintf(w, "Timestamp: %s\n", r.Timestamp.Format(time.RFC3339Nano))
		if r.RequestID != "" {
			fmt.Fprintf(w, "Request: %s\n", r.RequestID)
		}
		fmt.Fprintf(w, "Category: %s (bundle %s)\n", r.Category, r.BundleVersion)
		fmt.Fprintf(w, "Outcome: %s in %.3fms\n", r.Outcome, r.DurationMs)
		if len(r.MatchedPolicyIDs) > 0 {
			fmt.Fprintf(w, "Matched: %s\n", strings.Join(r.MatchedPolicyIDs, ", "))
		}
		fmt.Fprintf(w, "Fact: %s\n", r.Fact)
		if len(r.Output) > 0 {
			fmt.Fprintf(w, "Output: %s\n", r.Output)
		}
		if r.Error != "" {
			fmt.Fprintf(w, "Error: %s\n", r.Error)
		}
	}

	if shown := int64(q.Offset + len(records)); shown < total {
		fmt.Fprintf(w, "\n... %d more records. Use --limit and --offset for pagination.\n", total-shown)
	}
	return nil
}

// evidenceSummary aggregates records for the report subcommand.
type evidenceSummary struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	ByOutcome  map[string]int `json:"by_outcome"`
	ByPolicy   map[string]int `json:"by_policy"`
	ByBundle   map[string]int `json:"by_bundle"`
	AvgMs      float64        `json:"avg_duration_ms"`
}

func summarize(records []*evidence.Record) *evidenceSummary {
	s := &evidenceSummary{
		Total:      len(records),
		ByCategory: make(map[string]int),
		ByOutcome:  make(map[string]int),
		ByPolicy:   make(map[string]int),
		ByBundle:   make(map[string]int),
	}
	var totalMs float64
	for _, r := range records {
		s.ByCategory[r.Category]++
		s.ByOutcome[r.Outcome]++
		s.ByBundle[r.BundleVersion]++
		for _, id := range r.MatchedPolicyIDs {
			s.ByPolicy[id]++
		}
		totalMs += r.DurationMs
	}
	if len(records) > 0 {
		s.AvgMs = totalMs / float64(len(records))
	}
	return s
}

// WriteText implements cli.TextWriter.
func (s *evidenceSummary) WriteText(w io.Writer) error {
	fmt.Fprintln(w, "Evidence Report")
	fmt.Fprintln(w, "===============")
	fmt.Fprintf(w, "Generated: %s\n\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "Total Evaluations: %d\n", s.Total)
	fmt.Fprintf(w, "Average Duration: %.3fms\n", s.AvgMs)

	for _, section := range []struct {
		title  string
		counts map[string]int
	}{
		{"By Category", s.ByCategory},
		{"By Outcome", s.ByOutcome},
		{"By Bundle Version", s.ByBundle},
		{"Matched Policies", s.ByPolicy},
	} {
		fmt.Fprintf(w, "\n%s:\n", section.title)
		keys := make([]string, 0, len(section.counts))
		for k := range section.counts {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			pct := float64(section.counts[k]) / float64(max(s.Total, 1)) * 100
			fmt.Fprintf(w, "  %s: %d (%.0f%%)\n", k, section.counts[k], pct)
		}
	}
	return nil
}

func reportEvidence(cmd *cobra.Command, args []string) error {
	q, err := buildQuery()
	if err != nil {
		return err
	}
	q.Limit, q.Offset = 0, 0

	st, _, _, err := openEvidenceFromConfig()
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.Query(context.Background(), q)
	if err != nil {
		return cli.NewCommandError("evidence", fmt.Errorf("query failed: %w", err))
	}
	return cli.NewFormatter(cli.FormatText).FormatTo(os.Stdout, summarize(records))
}

func pruneEvidence(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	rc := cfg.Evidence.Retention
	fmt.Printf("Retention: %d days, max %d records", rc.Days, rc.MaxRecords)
	if rc.ArchivePath != "" {
		fmt.Printf(", archive to %s", rc.ArchivePath)
	}
	fmt.Println()
	if evidenceFlags.dryRun {
		return nil
	}

	st, err := openEvidence(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	deleted, err := retention.NewPruner(st, retention.ConfigFrom(rc), logger).Prune(context.Background())
	if err != nil {
		return cli.NewCommandError("evidence prune", err)
	}
	fmt.Printf("✓ Pruned %d records\n", deleted)
	return nil
}
