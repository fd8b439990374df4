// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings for stages that fetch remote resources.
type HTTPConfig struct {
	// Timeout is the per-request timeout applied to remote fetches.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "imgsieve/0.1"). Per prd002-acquisition R4.2.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ScanConfig holds settings for one extraction run.
// Per prd003-pipeline R1.1-R1.4, R5.1-R5.3.
type ScanConfig struct {
	HTTPConfig `yaml:",inline"`

	// OutputDir is the directory extracted images are written into.
	// Created (with parents) before the first write.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// FormatFilter restricts extraction to a single format tag
	// (case-insensitive, "jpg" and "jpeg" are equivalent). Empty means
	// every recognized image format matches.
	FormatFilter string `json:"format_filter,omitempty" yaml:"format_filter,omitempty"`

	// Recursive controls whether directory sources descend into
	// subdirectories.
	Recursive bool `json:"recursive" yaml:"recursive"`

	// Workers is the number of candidates processed concurrently.
	// Values below 2 select the sequential pipeline.
	Workers int `json:"workers" yaml:"workers"`

	// MaxNameAttempts bounds the numeric disambiguation loop when an
	// output name collides (default 1000).
	MaxNameAttempts int `json:"max_name_attempts" yaml:"max_name_attempts"`
}

// CatalogConfig holds settings for the extraction catalog.
// Per prd004-catalog R1.2.
type CatalogConfig struct {
	// CatalogDir is the directory holding the SQLite catalog database
	// and export files.
	CatalogDir string `json:"catalog_dir" yaml:"catalog_dir"`

	// MaxResults is the default maximum number of query results (default 50).
	MaxResults int `json:"max_results" yaml:"max_results"`
}
