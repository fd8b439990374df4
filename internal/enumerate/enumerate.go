// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enumerate turns a source argument into a sequence of candidate
// resources without inspecting their content.
// Implements: prd002-enumeration (R1-R4).
package enumerate

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// Kind classifies a parsed source.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Source is the normalized description of where to look for images.
// Immutable once constructed (R1.1).
type Source struct {
	Kind      Kind
	Path      string // local file or directory
	URL       string // remote resource
	Recursive bool   // descend into subdirectories (KindDir only)
}

func (s Source) String() string {
	if s.Kind == KindRemote {
		return s.URL
	}
	return s.Path
}

// ParseSource interprets a command-line argument as a Source. http and
// https URLs become remote sources; anything else must be an existing
// file or directory (R1.2). A missing path or an unsupported URL scheme
// is an error, which aborts the run before any candidate is produced.
func ParseSource(arg string, recursive bool) (Source, error) {
	if u, err := url.Parse(arg); err == nil && u.Scheme != "" && u.Host != "" {
		if u.Scheme != "http" && u.Scheme != "https" {
			return Source{}, fmt.Errorf("unsupported URL scheme %q in %s", u.Scheme, arg)
		}
		return Source{Kind: KindRemote, URL: arg}, nil
	}

	info, err := os.Stat(arg)
	if err != nil {
		return Source{}, fmt.Errorf("source %s: %w", arg, err)
	}
	if info.IsDir() {
		return Source{Kind: KindDir, Path: arg, Recursive: recursive}, nil
	}
	return Source{Kind: KindFile, Path: arg}, nil
}

// Candidate is one enumerated resource. When Err is non-nil the candidate
// is a marker for a directory that could not be read; the pipeline records
// it as skipped rather than aborting the traversal (R3.3).
type Candidate struct {
	// Path is the local file path, or the URL for remote candidates.
	Path string

	// Remote marks candidates that must be fetched over HTTP.
	Remote bool

	// Err is the enumeration error for unreadable-directory markers.
	Err error
}

// Walk produces the candidate sequence for src, invoking fn once per
// candidate. Returning a non-nil error from fn stops the walk and
// propagates the error (used for cancellation).
//
// Directory traversal is breadth-first with an explicit queue, so deep
// trees do not grow the call stack, and lexicographic within each
// directory (os.ReadDir order). Every regular file is visited at most
// once: directories and files are tracked by their symlink-resolved path,
// which also terminates symlink cycles (R2.1-R2.4).
//
// Walk is stateless; re-invoking it on an unchanged source reproduces the
// same set of candidates (R4.1).
func Walk(src Source, fn func(Candidate) error) error {
	switch src.Kind {
	case KindFile:
		return fn(Candidate{Path: src.Path})
	case KindRemote:
		return fn(Candidate{Path: src.URL, Remote: true})
	case KindDir:
		return walkDir(src, fn)
	default:
		return fmt.Errorf("unknown source kind %d", src.Kind)
	}
}

func walkDir(src Source, fn func(Candidate) error) error {
	visitedDirs := make(map[string]bool)
	visitedFiles := make(map[string]bool)
	queue := []string{src.Path}

	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		real, err := filepath.EvalSymlinks(dir)
		if err != nil {
			if err := fn(Candidate{Path: dir, Err: err}); err != nil {
				return err
			}
			continue
		}
		if visitedDirs[real] {
			continue
		}
		visitedDirs[real] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			if err := fn(Candidate{Path: dir, Err: err}); err != nil {
				return err
			}
			continue
		}

		for _, entry := range entries {
			p := filepath.Join(dir, entry.Name())

			typ := entry.Type()
			if typ&fs.ModeSymlink != 0 {
				info, err := os.Stat(p)
				if err != nil {
					// Broken link: let the pipeline record the
					// open failure against this candidate.
					if err := fn(Candidate{Path: p}); err != nil {
						return err
					}
					continue
				}
				if info.IsDir() {
					if src.Recursive {
						queue = append(queue, p)
					}
					continue
				}
				typ = info.Mode().Type()
			}

			if typ.IsDir() {
				if src.Recursive {
					queue = append(queue, p)
				}
				continue
			}
			if !typ.IsRegular() {
				continue
			}

			real, err := filepath.EvalSymlinks(p)
			if err == nil {
				if visitedFiles[real] {
					continue
				}
				visitedFiles[real] = true
			}

			if err := fn(Candidate{Path: p}); err != nil {
				return err
			}
		}
	}
	return nil
}
