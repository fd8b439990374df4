// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/imgsieve/internal/catalog"
	"github.com/pdiddy/imgsieve/internal/enumerate"
	"github.com/pdiddy/imgsieve/internal/extract"
	"github.com/pdiddy/imgsieve/pkg/types"
)

const defaultTimeout = 30 * time.Second

var scanCmd = &cobra.Command{
	Use:   "scan [sources...]",
	Short: "Extract images from files, directories, and URLs",
	Long: `Scan enumerates each source (a file, a directory, or an http(s) URL),
classifies every candidate by content, and copies recognized images into
the output directory. A URL that serves an HTML page is expanded once
into its <img> references.

Identical content is extracted once per run; with --catalog-dir the
record persists and repeated scans skip content from earlier runs.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().String("out", "extracted", "output directory for extracted images")
	scanCmd.Flags().String("format", "", "keep only this format (jpeg, png, gif, webp, bmp, tiff)")
	scanCmd.Flags().BoolP("recursive", "r", false, "descend into subdirectories")
	scanCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 30s)")
	scanCmd.Flags().Int("workers", 0, "process candidates with N parallel workers (0 or 1 = sequential)")
	scanCmd.Flags().String("catalog-dir", "", "catalog directory for cross-run deduplication (empty = disabled)")
	scanCmd.Flags().String("summary", "", "write the run summary to this YAML file")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more sources (files, directories, or URLs)")
	}

	outDir, _ := cmd.Flags().GetString("out")
	formatFilter, _ := cmd.Flags().GetString("format")
	recursive, _ := cmd.Flags().GetBool("recursive")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = defaultTimeout
	}
	workers, _ := cmd.Flags().GetInt("workers")
	catalogDir, _ := cmd.Flags().GetString("catalog-dir")
	summaryPath, _ := cmd.Flags().GetString("summary")

	cfg := types.ScanConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout: timeout,
		},
		OutputDir:    outDir,
		FormatFilter: formatFilter,
		Recursive:    recursive,
		Workers:      workers,
	}

	var dedupe extract.Deduper
	var store *catalog.Store
	if catalogDir != "" {
		s, err := catalog.Open(types.CatalogConfig{CatalogDir: catalogDir})
		if err != nil {
			return fmt.Errorf("%w: %v", extract.ErrFatal, err)
		}
		defer s.Close()
		store = s
		dedupe = s
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failures := 0
	for _, arg := range args {
		src, err := enumerate.ParseSource(arg, recursive)
		if err != nil {
			return fmt.Errorf("%w: %v", extract.ErrFatal, err)
		}

		summary, err := extract.Run(ctx, src, cfg, dedupe, os.Stdout)
		if err != nil {
			return err
		}
		failures += summary.Failed

		if store != nil {
			if err := store.RecordRun(ctx, summary); err != nil {
				fmt.Fprintf(os.Stderr, "warning: recording run: %v\n", err)
			}
		}
		if summaryPath != "" {
			p := summaryFilePath(summaryPath, summary.RunID, len(args) > 1)
			if err := extract.WriteSummaryYAML(summary, p); err != nil {
				fmt.Fprintf(os.Stderr, "warning: writing summary: %v\n", err)
			}
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d candidate(s) failed extraction", failures)
	}
	return nil
}

// summaryFilePath resolves the --summary destination for one run. With a
// single source the flag value is used as given; with several sources each
// run gets its own file, suffixed with the run ID, so no summary overwrites
// another.
func summaryFilePath(base, runID string, multi bool) string {
	if !multi {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + runID + ext
}
