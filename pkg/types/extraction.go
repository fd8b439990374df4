// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Outcome is the final disposition of one candidate.
// Per prd003-pipeline R3.1.
type Outcome string

const (
	OutcomeExtracted Outcome = "extracted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// ExtractionResult records the disposition of a single candidate. Exactly
// one result is appended per candidate observed; results are immutable once
// appended. Per prd003-pipeline R3.2.
type ExtractionResult struct {
	// Source is the path or URL the candidate came from.
	Source string `json:"source" yaml:"source"`

	// Format is the detected format tag ("jpeg", "png", ...), empty when
	// the candidate was not recognized as an image.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Outcome is extracted, skipped, or failed.
	Outcome Outcome `json:"outcome" yaml:"outcome"`

	// OutputPath is the committed output file for extracted candidates.
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`

	// Reason explains a skip ("not-an-image", "format-filtered",
	// "duplicate", "unreadable-dir", "web-page").
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// ErrorKind names the failure class ("unreadable-source", "network",
	// "timeout", "write", "name-collision-exhausted").
	ErrorKind string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`

	// Error is the underlying error message for failed candidates.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// SHA256 is the hex content digest of extracted candidates.
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`

	// SizeBytes is the number of bytes written for extracted candidates.
	SizeBytes int64 `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
}

// RunSummary is the finalized, read-only view of one extraction run.
// Invariant: Extracted + Skipped + Failed == Scanned.
// Per prd003-pipeline R4.1-R4.3.
type RunSummary struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id" yaml:"run_id"`

	// Source is the scanned path or URL as given on the command line.
	Source string `json:"source" yaml:"source"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	Scanned   int `json:"scanned" yaml:"scanned"`
	Extracted int `json:"extracted" yaml:"extracted"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Failed    int `json:"failed" yaml:"failed"`

	// Results lists every candidate disposition in observation order.
	Results []ExtractionResult `json:"results" yaml:"results"`
}

// Total returns the number of candidates observed.
func (s RunSummary) Total() int {
	return s.Scanned
}

// HasFailures reports whether any candidate failed.
func (s RunSummary) HasFailures() bool {
	return s.Failed > 0
}
