// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pdiddy/imgsieve/internal/imageformat"
)

const defaultMaxNameAttempts = 1000

// ErrNameExhausted is returned when the numeric disambiguation loop finds
// no free name within the attempt bound.
var ErrNameExhausted = errors.New("no free output name after bounded attempts")

// outputStem derives a filesystem-safe filename stem for a candidate.
// Local paths use their basename; remote candidates use the last URL path
// element. Sources with no usable name fall back to a content-independent
// hash slug so the stem stays deterministic per source.
func outputStem(source string, remote bool) string {
	var base string
	if remote {
		u, err := url.Parse(source)
		if err != nil {
			return hashStem(source)
		}
		base = path.Base(u.Path)
	} else {
		base = filepath.Base(source)
	}
	// path.Base yields "/" for a root path and "." for an empty one;
	// neither is a usable stem.
	if base == "" || base == "." || base == "/" {
		return hashStem(source)
	}

	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = sanitizeStem(stem)
	if stem == "" {
		return hashStem(source)
	}
	return stem
}

// sanitizeStem keeps letters, digits, dot, dash, and underscore; anything
// else becomes a dash. Leading dots are dropped so output files are never
// hidden.
func sanitizeStem(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
	s = strings.TrimLeft(s, ".")
	// A stem of nothing but substitution dashes carries no name.
	if strings.Trim(s, "-") == "" {
		return ""
	}
	return s
}

func hashStem(source string) string {
	h := sha256.Sum256([]byte(source))
	return fmt.Sprintf("img-%x", h[:8])
}

// reserveName claims a free output path for stem+ext under dir, appending
// a numeric disambiguator on collision: stem.ext, stem-1.ext, stem-2.ext.
// The name is reserved by creating the file with O_EXCL, which is atomic
// even with concurrent workers; the caller renames the payload over the
// placeholder. Returns ErrNameExhausted after maxAttempts collisions.
func reserveName(dir, stem string, format imageformat.Format, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxNameAttempts
	}
	ext := format.Ext()

	for i := 0; i < maxAttempts; i++ {
		name := stem + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		p := filepath.Join(dir, name)

		f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return p, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s%s in %s (%d attempts)", ErrNameExhausted, stem, ext, dir, maxAttempts)
}
