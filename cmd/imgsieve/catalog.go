// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/imgsieve/internal/catalog"
	"github.com/pdiddy/imgsieve/pkg/types"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the cross-run extraction catalog (list, runs, export)",
	Long: `Catalog inspects the SQLite record written by scan --catalog-dir.
Use subcommands to list extracted images, review past runs, or export
the catalog to YAML or JSON.`,
}

// --- list subcommand ---

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cataloged extractions",
	RunE:  runCatalogList,
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	store, err := openCatalog(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Query(context.Background(), catalogOptsFromFlags(cmd))
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No cataloged extractions.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-12s  %-6s  %-40s  %s\n", "SHA256", "Format", "Output", "Source")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, e := range entries {
		sum := e.SHA256
		if len(sum) > 12 {
			sum = sum[:12]
		}
		out := e.OutputPath
		if len(out) > 40 {
			out = "..." + out[len(out)-37:]
		}
		fmt.Fprintf(os.Stdout, "%-12s  %-6s  %-40s  %s\n", sum, e.Format, out, e.Source)
	}
	fmt.Fprintf(os.Stdout, "\n%d entries\n", len(entries))
	return nil
}

// --- runs subcommand ---

var catalogRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded scan runs",
	RunE:  runCatalogRuns,
}

func runCatalogRuns(cmd *cobra.Command, args []string) error {
	store, err := openCatalog(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(context.Background())
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-20s  %8s  %9s  %7s  %6s\n",
		"Run", "Started", "Scanned", "Extracted", "Skipped", "Failed")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, r := range runs {
		fmt.Fprintf(os.Stdout, "%-36s  %-20s  %8d  %9d  %7d  %6d\n",
			r.RunID, r.StartedAt, r.Scanned, r.Extracted, r.Skipped, r.Failed)
	}
	return nil
}

// --- export subcommand ---

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog to YAML or JSON",
	Long: `Export writes the catalog (or a filtered subset) to standard output.
Supports the same filter flags as list.`,
	RunE: runCatalogExport,
}

func runCatalogExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openCatalog(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := catalogOptsFromFlags(cmd)

	switch format {
	case "yaml", "":
		return store.ExportYAML(context.Background(), os.Stdout, opts)
	case "json":
		return store.ExportJSON(context.Background(), os.Stdout, opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
}

// --- shared helpers ---

func openCatalog(cmd *cobra.Command) (*catalog.Store, error) {
	catalogDir, _ := cmd.Flags().GetString("catalog-dir")
	maxResults, _ := cmd.Flags().GetInt("max-results")

	return catalog.Open(types.CatalogConfig{
		CatalogDir: catalogDir,
		MaxResults: maxResults,
	})
}

func catalogOptsFromFlags(cmd *cobra.Command) catalog.QueryOptions {
	formatFilter, _ := cmd.Flags().GetString("image-format")
	runID, _ := cmd.Flags().GetString("run")
	limit, _ := cmd.Flags().GetInt("limit")

	return catalog.QueryOptions{
		Format: formatFilter,
		RunID:  runID,
		Limit:  limit,
	}
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	catalogCmd.PersistentFlags().String("catalog-dir", "catalog", "catalog directory (contains catalog.db)")
	catalogCmd.PersistentFlags().Int("max-results", 50, "maximum number of listed entries")

	// Filter flags shared by list and export.
	for _, c := range []*cobra.Command{catalogListCmd, catalogExportCmd} {
		c.Flags().String("image-format", "", "filter by image format")
		c.Flags().String("run", "", "filter by run ID")
		c.Flags().Int("limit", 0, "maximum entries (0 = use default)")
	}

	// Export flags.
	catalogExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	// Wire subcommands.
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogRunsCmd)
	catalogCmd.AddCommand(catalogExportCmd)

	rootCmd.AddCommand(catalogCmd)
}
