// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/imgsieve/pkg/types"
)

// Skip reasons recorded on ExtractionResult.Reason.
const (
	SkipNotAnImage     = "not-an-image"
	SkipFormatFiltered = "format-filtered"
	SkipDuplicate      = "duplicate"
	SkipUnreadableDir  = "unreadable-dir"
	SkipWebPage        = "web-page"
)

// Failure kinds recorded on ExtractionResult.ErrorKind.
const (
	FailUnreadableSource = "unreadable-source"
	FailNetwork          = "network"
	FailTimeout          = "timeout"
	FailWrite            = "write"
	FailNameCollision    = "name-collision-exhausted"
)

// Report accumulates one ExtractionResult per candidate observed and
// prints a stable status line for each as it arrives. It is safe for
// concurrent Add calls. Finalize returns the read-only summary; Add after
// Finalize is a programming error and panics.
// Per prd003-pipeline R4.
type Report struct {
	mu        sync.Mutex
	w         io.Writer
	runID     string
	source    string
	startedAt time.Time
	results   []types.ExtractionResult
	extracted int
	skipped   int
	failed    int
	finalized bool
}

// NewReport creates a Report for one run over source, writing per-item
// status lines to w.
func NewReport(source string, w io.Writer) *Report {
	if w == nil {
		w = io.Discard
	}
	return &Report{
		w:         w,
		runID:     uuid.NewString(),
		source:    source,
		startedAt: time.Now().UTC(),
	}
}

// RunID returns the unique identifier of this run.
func (r *Report) RunID() string { return r.runID }

// Add appends one result and prints its status line. Field order and
// labels are stable across runs so output stays scriptable.
func (r *Report) Add(res types.ExtractionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		panic("extract: Add on finalized report")
	}

	r.results = append(r.results, res)
	switch res.Outcome {
	case types.OutcomeExtracted:
		r.extracted++
		fmt.Fprintf(r.w, "extracted: %s -> %s (%s)\n", res.Source, res.OutputPath, res.Format)
	case types.OutcomeSkipped:
		r.skipped++
		fmt.Fprintf(r.w, "skipped: %s (%s)\n", res.Source, res.Reason)
	case types.OutcomeFailed:
		r.failed++
		fmt.Fprintf(r.w, "failed:  %s (%s: %s)\n", res.Source, res.ErrorKind, res.Error)
	default:
		panic(fmt.Sprintf("extract: result with unknown outcome %q", res.Outcome))
	}
}

// Finalize prints the summary line and returns the immutable RunSummary.
// Scanned always equals Extracted + Skipped + Failed: every observed
// candidate was recorded exactly once.
func (r *Report) Finalize() types.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = true

	s := types.RunSummary{
		RunID:      r.runID,
		Source:     r.source,
		StartedAt:  r.startedAt,
		FinishedAt: time.Now().UTC(),
		Scanned:    len(r.results),
		Extracted:  r.extracted,
		Skipped:    r.skipped,
		Failed:     r.failed,
		Results:    append([]types.ExtractionResult(nil), r.results...),
	}
	fmt.Fprintf(r.w, "\nScan summary: %d scanned, %d extracted, %d skipped, %d failed\n",
		s.Scanned, s.Extracted, s.Skipped, s.Failed)
	return s
}

// WriteSummaryYAML writes the run summary as a YAML manifest.
func WriteSummaryYAML(s types.RunSummary, path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
