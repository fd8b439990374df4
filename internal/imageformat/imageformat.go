// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package imageformat classifies byte content as a known image format.
// Implements: prd001-classification (R1-R3).
package imageformat

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format is a normalized image format tag. The zero value Unknown means
// the content was not recognized.
type Format string

const (
	Unknown Format = ""
	JPEG    Format = "jpeg"
	PNG     Format = "png"
	GIF     Format = "gif"
	WebP    Format = "webp"
	BMP     Format = "bmp"
	TIFF    Format = "tiff"
)

// SniffLen is the number of leading bytes Detect needs to classify any
// supported format. Callers may pass longer prefixes.
const SniffLen = 16

// segment is one byte pattern anchored at a fixed offset.
type segment struct {
	off     int
	pattern []byte
}

// rule matches a format when every segment matches. Rules are evaluated
// in declaration order; the first match wins (R1.3).
type rule struct {
	format   Format
	segments []segment
}

// rules lists the magic-number signatures in evaluation order. BMP comes
// last: its two-byte signature is the weakest.
var rules = []rule{
	{JPEG, []segment{{0, []byte{0xFF, 0xD8, 0xFF}}}},
	{PNG, []segment{{0, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}}}},
	{GIF, []segment{{0, []byte("GIF87a")}}},
	{GIF, []segment{{0, []byte("GIF89a")}}},
	{WebP, []segment{{0, []byte("RIFF")}, {8, []byte("WEBP")}}},
	{TIFF, []segment{{0, []byte{'I', 'I', 0x2A, 0x00}}}},
	{TIFF, []segment{{0, []byte{'M', 'M', 0x00, 0x2A}}}},
	{BMP, []segment{{0, []byte("BM")}}},
}

// Detect classifies prefix by its magic bytes. A short, empty, or
// unrecognized prefix yields Unknown, never an error (R1.1, R1.2).
// Detection is deterministic: the same bytes always yield the same tag.
func Detect(prefix []byte) Format {
	for _, r := range rules {
		if matches(prefix, r.segments) {
			return r.format
		}
	}
	return Unknown
}

func matches(prefix []byte, segments []segment) bool {
	for _, s := range segments {
		end := s.off + len(s.pattern)
		if len(prefix) < end || !bytes.Equal(prefix[s.off:end], s.pattern) {
			return false
		}
	}
	return true
}

// extensions maps lowercase filename extensions to format tags (R2.1).
var extensions = map[string]Format{
	".jpg":  JPEG,
	".jpeg": JPEG,
	".jpe":  JPEG,
	".png":  PNG,
	".gif":  GIF,
	".webp": WebP,
	".bmp":  BMP,
	".tif":  TIFF,
	".tiff": TIFF,
}

// FromExtension classifies name by its filename extension. It is the
// fallback when byte access is unavailable or Detect is inconclusive (R2.2).
func FromExtension(name string) Format {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// Normalize parses a user-supplied format filter. Matching is
// case-insensitive and accepts common aliases ("jpg", "tif"). The second
// return value is false when the string names no supported format (R3.1).
func Normalize(s string) (Format, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Unknown, false
	}
	if f, ok := extensions["."+s]; ok {
		return f, true
	}
	return Unknown, false
}

// Ext returns the canonical filename extension for the format, or "" for
// Unknown. Used when committing output files (R3.2).
func (f Format) Ext() string {
	switch f {
	case JPEG:
		return ".jpg"
	case PNG:
		return ".png"
	case GIF:
		return ".gif"
	case WebP:
		return ".webp"
	case BMP:
		return ".bmp"
	case TIFF:
		return ".tiff"
	default:
		return ""
	}
}

func (f Format) String() string {
	if f == Unknown {
		return "unknown"
	}
	return string(f)
}
