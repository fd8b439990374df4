// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog persists extraction records across runs in a SQLite
// database so repeated scans can skip content they already extracted.
// Implements: prd004-catalog (R1-R4).
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/imgsieve/pkg/types"
)

const dbFile = "catalog.db"

// Store manages the extraction catalog SQLite database.
type Store struct {
	db         *sql.DB
	maxResults int
}

// Open opens or creates the catalog database at catalogDir/catalog.db,
// creating the schema if it does not exist.
func Open(cfg types.CatalogConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.CatalogDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	dbPath := filepath.Join(cfg.CatalogDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	s := &Store{db: db, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			source TEXT,
			started_at TEXT,
			finished_at TEXT,
			scanned INTEGER,
			extracted INTEGER,
			skipped INTEGER,
			failed INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS extractions (
			sha256 TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			format TEXT NOT NULL,
			output_path TEXT NOT NULL,
			size_bytes INTEGER,
			run_id TEXT,
			extracted_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_format ON extractions(format)`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_run_id ON extractions(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Seen returns the recorded output path for a content digest, if any.
func (s *Store) Seen(ctx context.Context, sum string) (string, bool, error) {
	var path string
	err := s.db.QueryRowContext(ctx,
		`SELECT output_path FROM extractions WHERE sha256 = ?`, sum,
	).Scan(&path)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying catalog: %w", err)
	}
	return path, true, nil
}

// Record persists one successful extraction. Recording the same digest
// twice keeps the first record.
func (s *Store) Record(ctx context.Context, res types.ExtractionResult, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO extractions (sha256, source, format, output_path, size_bytes, run_id, extracted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.SHA256, res.Source, res.Format, res.OutputPath, res.SizeBytes,
		runID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording extraction: %w", err)
	}
	return nil
}

// RecordRun persists the summary counts of a finished run.
func (s *Store) RecordRun(ctx context.Context, summary types.RunSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, source, started_at, finished_at, scanned, extracted, skipped, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, summary.Source,
		summary.StartedAt.UTC().Format(time.RFC3339),
		summary.FinishedAt.UTC().Format(time.RFC3339),
		summary.Scanned, summary.Extracted, summary.Skipped, summary.Failed,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Entry is one catalog record as returned by Query.
type Entry struct {
	SHA256      string `json:"sha256" yaml:"sha256"`
	Source      string `json:"source" yaml:"source"`
	Format      string `json:"format" yaml:"format"`
	OutputPath  string `json:"output_path" yaml:"output_path"`
	SizeBytes   int64  `json:"size_bytes" yaml:"size_bytes"`
	RunID       string `json:"run_id" yaml:"run_id"`
	ExtractedAt string `json:"extracted_at" yaml:"extracted_at"`
}

// QueryOptions narrows a catalog listing. Zero values select everything
// up to the store's result limit; Limit overrides that limit.
type QueryOptions struct {
	Format string
	RunID  string
	Limit  int
}

// Query lists catalog entries, newest first.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]Entry, error) {
	query := `SELECT sha256, source, format, output_path, size_bytes, run_id, extracted_at
		FROM extractions WHERE 1=1`
	var args []any

	if opts.Format != "" {
		query += ` AND format = ?`
		args = append(args, opts.Format)
	}
	if opts.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, opts.RunID)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.maxResults
	}
	query += ` ORDER BY extracted_at DESC, sha256 LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying extractions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SHA256, &e.Source, &e.Format, &e.OutputPath,
			&e.SizeBytes, &e.RunID, &e.ExtractedAt); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RunRecord is one stored run summary.
type RunRecord struct {
	RunID      string `json:"run_id" yaml:"run_id"`
	Source     string `json:"source" yaml:"source"`
	StartedAt  string `json:"started_at" yaml:"started_at"`
	FinishedAt string `json:"finished_at" yaml:"finished_at"`
	Scanned    int    `json:"scanned" yaml:"scanned"`
	Extracted  int    `json:"extracted" yaml:"extracted"`
	Skipped    int    `json:"skipped" yaml:"skipped"`
	Failed     int    `json:"failed" yaml:"failed"`
}

// Runs lists stored run summaries, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, source, started_at, finished_at, scanned, extracted, skipped, failed
		 FROM runs ORDER BY started_at DESC LIMIT ?`, s.maxResults)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.Source, &r.StartedAt, &r.FinishedAt,
			&r.Scanned, &r.Extracted, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
