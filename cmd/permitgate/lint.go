package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/permitgate/pkg/cli"
	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/parser"
	"mercator-hq/permitgate/pkg/rules/source"
)

var lintFlags struct {
	strict bool
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint [bundle path...]",
	Short: "Validate rule bundles",
	Long: `Validate rule bundle files for syntax and semantic errors.

Each argument is a bundle file or a directory whose .yaml/.yml files form
one bundle. Lint reports every error with its location:
  - YAML syntax errors
  - Missing or malformed sections
  - Unknown attributes, illegal operators and mistyped operands
  - Invalid merge strategies and duplicate policy ids

Warnings flag bundles that load but are probably incomplete.

Examples:
  # Lint a bundle directory
  permitgate lint rules/

  # Strict mode (warnings as errors)
  permitgate lint rules/escort.yaml --strict

  # JSON output for CI/CD
  permitgate lint rules/ --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: lintBundles,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "treat warnings as errors")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json")
}

// ValidationResult is the lint result for one bundle path.
type ValidationResult struct {
	Path     string            `json:"path"`
	Version  string            `json:"version,omitempty"`
	Valid    bool              `json:"valid"`
	Policies int               `json:"policies"`
	Tests    int               `json:"tests"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// ValidationError is a single lint error or warning.
type ValidationError struct {
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Type       string `json:"type,omitempty"`
}

type lintReport struct {
	Results []ValidationResult `json:"results"`
	strict  bool
}

func lintBundles(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(lintFlags.format, cli.FormatText, cli.FormatJSON)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("at least one bundle path is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p := newParser(cfg)

	report := &lintReport{strict: lintFlags.strict}
	for _, path := range args {
		report.Results = append(report.Results, validateBundle(context.Background(), p, path))
	}

	if err := cli.NewFormatter(format).FormatTo(os.Stdout, report); err != nil {
		return err
	}

	errs, warns := report.counts()
	if errs > 0 || (lintFlags.strict && warns > 0) {
		return cli.NewCommandError("lint", fmt.Errorf("validation failed"))
	}
	return nil
}

func validateBundle(ctx context.Context, p *parser.Parser, path string) ValidationResult {
	result := ValidationResult{Path: path, Valid: true}

	b, err := source.NewFileSource(path, p).Load(ctx)
	if err != nil {
		result.Valid = false
		result.Errors = toValidationErrors(err)
		return result
	}
	result.Version = b.Version
	result.Policies = len(b.Policies)
	result.Tests = len(b.Tests)

	snap, err := engine.NewSnapshot(b.Registry, b.Catalog, b.Policies, b.Version)
	if err != nil {
		result.Valid = false
		result.Errors = toValidationErrors(err)
		return result
	}

	if len(b.Tests) == 0 {
		result.Warnings = append(result.Warnings, ValidationError{Message: "bundle declares no test cases"})
	}
	for _, cat := range snap.Catalog.Categories() {
		published := 0
		for _, pol := range snap.Policies(cat) {
			if pol.IsPublished() {
				published++
			}
		}
		if n := len(snap.Policies(cat)); n > 0 && published == 0 {
			result.Warnings = append(result.Warnings, ValidationError{
				Message: fmt.Sprintf("category %s has %d policies but none are published", cat, n),
			})
		}
	}
	return result
}

func toValidationErrors(err error) []ValidationError {
	var list *parser.ErrorList
	if errors.As(err, &list) {
		out := make([]ValidationError, 0, len(list.Errors))
		for _, e := range list.Errors {
			out = append(out, fromParserError(e))
		}
		return out
	}

	var perr *parser.Error
	if errors.As(err, &perr) {
		return []ValidationError{fromParserError(perr)}
	}
	return []ValidationError{{Message: err.Error()}}
}

func fromParserError(e *parser.Error) ValidationError {
	return ValidationError{
		File:       e.Location.File,
		Line:       e.Location.Line,
		Column:     e.Location.Column,
		Message:    e.Message,
		Suggestion: e.Suggestion,
		Type:       string(e.Type),
	}
}

func (r *lintReport) counts() (errs, warns int) {
	for _, res := range r.Results {
		errs += len(res.Errors)
		warns += len(res.Warnings)
	}
	return errs, warns
}

// WriteText implements cli.TextWriter.
func (r *lintReport) WriteText(w io.Writer) error {
	for _, res := range r.Results {
		fmt.Fprintf(w, "Validating %s...\n", res.Path)

		if res.Valid {
			fmt.Fprintf(w, "✓ Bundle %s loaded (%d policies, %d tests)\n", res.Version, res.Policies, res.Tests)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(w, "✗ Error: %s%s", e.Message, position(e))
			if e.Type != "" {
				fmt.Fprintf(w, " [%s]", e.Type)
			}
			fmt.Fprintln(w)
			if e.Suggestion != "" {
				fmt.Fprintf(w, "    %s\n", e.Suggestion)
			}
		}
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "⚠  Warning: %s%s\n", warn.Message, position(warn))
		}
		fmt.Fprintln(w)
	}

	errs, warns := r.counts()
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  %d error(s), %d warning(s)\n", errs, warns)
	if r.strict && warns > 0 {
		fmt.Fprintln(w, "  Strict mode enabled: treating warnings as errors")
	}
	return nil
}

func position(e ValidationError) string {
	switch {
	case e.File == "":
		return ""
	case e.Line == 0:
		return fmt.Sprintf(" (%s)", e.File)
	default:
		return fmt.Sprintf(" (%s:%d:%d)", e.File, e.Line, e.Column)
	}
}
