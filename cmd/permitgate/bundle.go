package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/permitgate/pkg/cli"
	"mercator-hq/permitgate/pkg/config"
	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/source"
)

var bundleFlags struct {
	db      string
	name    string
	version string
	format  string
}

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Manage the sqlite bundle store",
	Long: `Manage versioned rule bundles in the sqlite bundle store.

The store keeps every imported version of a named bundle. A server with
rules.source set to "sqlite" serves the most recently imported version.

Subcommands:
  import  - Validate and store a bundle version
  list    - List stored versions
  show    - Summarize a stored version

Examples:
  # Import a bundle directory as version 2026-03
  permitgate bundle import rules/ --version 2026-03

  # List versions of the "texas" bundle
  permitgate bundle list --name texas`,
}

var bundleImportCmd = &cobra.Command{
	Use:   "import <bundle path>",
	Short: "Validate and store a bundle version",
	Long: `Parse a bundle file or directory and store it as a new version.

The version defaults to the bundle's declared version. Versions are
immutable: importing an existing version fails.`,
	Args: cobra.ExactArgs(1),
	RunE: importBundle,
}

var bundleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored bundle versions, newest first",
	Args:  cobra.NoArgs,
	RunE:  listBundles,
}

var bundleShowCmd = &cobra.Command{
	Use:   "show <version>",
	Short: "Summarize a stored bundle version",
	Args:  cobra.ExactArgs(1),
	RunE:  showBundle,
}

func init() {
	rootCmd.AddCommand(bundleCmd)
	bundleCmd.AddCommand(bundleImportCmd, bundleListCmd, bundleShowCmd)

	bundleCmd.PersistentFlags().StringVar(&bundleFlags.db, "db", "", "bundle database (default: rules.sqlite.path)")
	bundleCmd.PersistentFlags().StringVar(&bundleFlags.name, "name", "", "bundle name (default: rules.sqlite.name)")
	bundleImportCmd.Flags().StringVar(&bundleFlags.version, "version", "", "version to store (default: the bundle's version)")
	bundleListCmd.Flags().StringVar(&bundleFlags.format, "format", "text", "output format: text, json, csv")
}

func openBundleStoreFromFlags() (*source.SQLiteSource, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if bundleFlags.db != "" {
		cfg.Rules.SQLite.Path = bundleFlags.db
	}
	if bundleFlags.name != "" {
		cfg.Rules.SQLite.Name = bundleFlags.name
	}
	src, err := openBundleStore(cfg, newParser(cfg))
	if err != nil {
		return nil, nil, err
	}
	return src, cfg, nil
}

func importBundle(cmd *cobra.Command, args []string) error {
	src, cfg, err := openBundleStoreFromFlags()
	if err != nil {
		return err
	}
	defer src.Close()

	ctx := context.Background()
	docs, err := source.ReadDocuments(ctx, args[0], newParser(cfg))
	if err != nil {
		return cli.NewCommandError("bundle import", err)
	}
	rev, err := src.Put(ctx, bundleFlags.version, docs)
	if err != nil {
		return cli.NewCommandError("bundle import", err)
	}

	fmt.Printf("✓ Stored %s@%s (revision %d, %d documents)\n", rev.Name, rev.Version, rev.ID, rev.Documents)
	return nil
}

type revisionRow struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Documents int       `json:"documents"`
}

type revisionList []revisionRow

// Header implements cli.Tabular.
func (l revisionList) Header() []string {
	return []string{"id", "name", "version", "created_at", "documents"}
}

// Rows implements cli.Tabular.
func (l revisionList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, r := range l {
		rows[i] = []string{
			strconv.FormatInt(r.ID, 10), r.Name, r.Version,
			r.CreatedAt.Format(time.RFC3339), strconv.Itoa(r.Documents),
		}
	}
	return rows
}

// WriteText implements cli.TextWriter.
func (l revisionList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		fmt.Fprintln(w, "No bundle versions stored")
		return nil
	}
	for i, r := range l {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-20s %s  %d documents  (revision %d)\n",
			marker, r.Version, r.CreatedAt.Format(time.RFC3339), r.Documents, r.ID)
	}
	return nil
}

func listBundles(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(bundleFlags.format, cli.FormatText, cli.FormatJSON, cli.FormatCSV)
	if err != nil {
		return err
	}

	src, _, err := openBundleStoreFromFlags()
	if err != nil {
		return err
	}
	defer src.Close()

	revs, err := src.Versions(context.Background())
	if err != nil {
		return cli.NewCommandError("bundle list", err)
	}

	list := make(revisionList, 0, len(revs))
	for _, r := range revs {
		list = append(list, revisionRow(r))
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, list)
}

func showBundle(cmd *cobra.Command, args []string) error {
	src, _, err := openBundleStoreFromFlags()
	if err != nil {
		return err
	}
	defer src.Close()

	b, err := src.LoadVersion(context.Background(), args[0])
	if err != nil {
		return cli.NewCommandError("bundle show", err)
	}
	snap, err := engine.NewSnapshot(b.Registry, b.Catalog, b.Policies, b.Version)
	if err != nil {
		return cli.NewCommandError("bundle show", err)
	}

	fmt.Printf("Bundle %s@%s\n", src.Name(), b.Version)
	fmt.Printf("  Attributes: %d\n", b.Registry.Len())
	fmt.Printf("  Policies:   %d (%d published)\n", snap.Len(), snap.PublishedCount())
	fmt.Printf("  Tests:      %d\n", len(b.Tests))
	for _, cat := range snap.Catalog.Categories() {
		if n := len(snap.Policies(cat)); n > 0 {
			fmt.Printf("    %-10s %d policies\n", cat, n)
		}
	}
	return nil
}
