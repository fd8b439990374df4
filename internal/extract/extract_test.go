// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/imgsieve/internal/enumerate"
	"github.com/pdiddy/imgsieve/pkg/types"
)

// jpegBytes and pngBytes carry real magic numbers so the classifier
// recognizes them; the trailing payload makes contents distinct.
func jpegBytes(payload string) []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, payload...)
}

func pngBytes(payload string) []byte {
	return append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, payload...)
}

func writeTestFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func dirSource(t *testing.T, path string, recursive bool) enumerate.Source {
	t.Helper()
	src, err := enumerate.ParseSource(path, recursive)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func checkInvariant(t *testing.T, s types.RunSummary) {
	t.Helper()
	if s.Extracted+s.Skipped+s.Failed != s.Scanned {
		t.Errorf("count invariant violated: scanned=%d extracted=%d skipped=%d failed=%d",
			s.Scanned, s.Extracted, s.Skipped, s.Failed)
	}
	if len(s.Results) != s.Scanned {
		t.Errorf("len(Results)=%d, want scanned=%d", len(s.Results), s.Scanned)
	}
}

func TestRunMixedDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.jpg"), jpegBytes("one"))
	writeTestFile(t, filepath.Join(dir, "b.txt"), []byte("plain text, not an image"))
	writeTestFile(t, filepath.Join(dir, "c.png"), pngBytes("two"))

	out := t.TempDir()
	var buf bytes.Buffer
	s, err := Run(context.Background(), dirSource(t, dir, false), types.ScanConfig{OutputDir: out}, nil, &buf)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariant(t, s)

	if s.Extracted != 2 || s.Skipped != 1 || s.Failed != 0 {
		t.Errorf("summary = %d extracted, %d skipped, %d failed; want 2/1/0", s.Extracted, s.Skipped, s.Failed)
	}
	for _, r := range s.Results {
		if r.Outcome == types.OutcomeSkipped && r.Reason != SkipNotAnImage {
			t.Errorf("skip reason for %s = %q, want %q", r.Source, r.Reason, SkipNotAnImage)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "a.jpg")); err != nil {
		t.Errorf("a.jpg missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "c.png")); err != nil {
		t.Errorf("c.png missing: %v", err)
	}
}

func TestRunFormatFilter(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.jpg"), jpegBytes("one"))
	writeTestFile(t, filepath.Join(dir, "b.txt"), []byte("text"))
	writeTestFile(t, filepath.Join(dir, "c.png"), pngBytes("two"))

	out := t.TempDir()
	cfg := types.ScanConfig{OutputDir: out, FormatFilter: "PNG"}
	s, err := Run(context.Background(), dirSource(t, dir, false), cfg, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariant(t, s)

	if s.Extracted != 1 || s.Skipped != 2 || s.Failed != 0 {
		t.Errorf("summary = %d/%d/%d, want 1 extracted, 2 skipped, 0 failed", s.Extracted, s.Skipped, s.Failed)
	}
	if _, err := os.Stat(filepath.Join(out, "c.png")); err != nil {
		t.Errorf("c.png missing: %v", err)
	}

	// With a filter set, non-matching candidates are filter misses even
	// when their content is not an image at all.
	for _, r := range s.Results {
		if r.Outcome == types.OutcomeSkipped && r.Reason != SkipFormatFiltered {
			t.Errorf("skip reason for %s = %q, want %q", r.Source, r.Reason, SkipFormatFiltered)
		}
	}
}

func TestRunInvalidFilterIsFatal(t *testing.T) {
	dir := t.TempDir()
	cfg := types.ScanConfig{OutputDir: t.TempDir(), FormatFilter: "svg"}
	_, err := Run(context.Background(), dirSource(t, dir, false), cfg, nil, nil)
	if !errors.Is(err, ErrFatal) {
		t.Errorf("err = %v, want ErrFatal", err)
	}
}

func TestRunNameCollisionDisambiguates(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "one", "a.jpg"), jpegBytes("first"))
	writeTestFile(t, filepath.Join(dir, "two", "a.jpg"), jpegBytes("second"))

	out := t.TempDir()
	s, err := Run(context.Background(), dirSource(t, dir, true), types.ScanConfig{OutputDir: out}, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariant(t, s)

	if s.Extracted != 2 || s.Failed != 0 {
		t.Fatalf("summary = %d extracted, %d failed; want 2/0", s.Extracted, s.Failed)
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 2 {
		t.Fatalf("output files = %v, want 2 distinct names", names)
	}
	if names[0] == names[1] {
		t.Errorf("output names collide: %v", names)
	}
}

func TestRunDuplicateContentSkipped(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.jpg"), jpegBytes("same"))
	writeTestFile(t, filepath.Join(dir, "b.jpg"), jpegBytes("same"))

	s, err := Run(context.Background(), dirSource(t, dir, false), types.ScanConfig{OutputDir: t.TempDir()}, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariant(t, s)

	if s.Extracted != 1 || s.Skipped != 1 {
		t.Errorf("summary = %d extracted, %d skipped; want 1/1", s.Extracted, s.Skipped)
	}
	found := false
	for _, r := range s.Results {
		if r.Reason == SkipDuplicate {
			found = true
		}
	}
	if !found {
		t.Error("no result with duplicate skip reason")
	}
}

func TestRunUnreadableSourceIsIsolated(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root; permission bits are not enforced")
	}
	dir := t.TempDir()
	locked := filepath.Join(dir, "a.jpg")
	writeTestFile(t, locked, jpegBytes("locked"))
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o644) })
	writeTestFile(t, filepath.Join(dir, "b.png"), pngBytes("ok"))

	s, err := Run(context.Background(), dirSource(t, dir, false), types.ScanConfig{OutputDir: t.TempDir()}, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariant(t, s)

	if s.Failed != 1 || s.Extracted != 1 {
		t.Errorf("summary = %d extracted, %d failed; want 1/1", s.Extracted, s.Failed)
	}
	for _, r := range s.Results {
		if r.Outcome == types.OutcomeFailed && r.ErrorKind != FailUnreadableSource {
			t.Errorf("failure kind = %q, want %q", r.ErrorKind, FailUnreadableSource)
		}
	}
}

func TestRunUnwritableOutputIsFatal(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root; permission bits are not enforced")
	}
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.jpg"), jpegBytes("one"))

	out := filepath.Join(t.TempDir(), "readonly")
	if err := os.MkdirAll(out, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(out, 0o755) })

	s, err := Run(context.Background(), dirSource(t, dir, false), types.ScanConfig{OutputDir: out}, nil, nil)
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("err = %v, want ErrFatal", err)
	}
	if s.Scanned != 0 {
		t.Errorf("scanned = %d candidates before aborting, want 0", s.Scanned)
	}
}

func TestRunNoPartialFilesAfterFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root; permission bits are not enforced")
	}
	dir := t.TempDir()
	locked := filepath.Join(dir, "a.jpg")
	writeTestFile(t, locked, jpegBytes("locked"))
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o644) })

	out := t.TempDir()
	if _, err := Run(context.Background(), dirSource(t, dir, false), types.ScanConfig{OutputDir: out}, nil, nil); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("partial file left behind: %s", e.Name())
		}
	}
}

func TestRunRemoteImage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes("remote"))
	}))
	defer ts.Close()

	src, err := enumerate.ParseSource(ts.URL+"/gallery/cat.png", false)
	if err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()
	cfg := types.ScanConfig{HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second}, OutputDir: out}
	s, err := Run(context.Background(), src, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariant(t, s)

	if s.Extracted != 1 {
		t.Fatalf("extracted = %d, want 1", s.Extracted)
	}
	if _, err := os.Stat(filepath.Join(out, "cat.png")); err != nil {
		t.Errorf("cat.png missing: %v", err)
	}
}

func TestRunRemotePageExpansion(t *testing.T) {
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	defer ts.Close()

	mux.HandleFunc("/gallery", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html><html><body>
			<img src="/img/one.jpg">
			<img src="%s/img/two.png">
			<img src="data:image/gif;base64,R0lGOD">
		</body></html>`, ts.URL)
	})
	mux.HandleFunc("/img/one.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write(jpegBytes("one"))
	})
	mux.HandleFunc("/img/two.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngBytes("two"))
	})

	src, err := enumerate.ParseSource(ts.URL+"/gallery", false)
	if err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()
	cfg := types.ScanConfig{HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second}, OutputDir: out}
	s, err := Run(context.Background(), src, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariant(t, s)

	// The page itself is skipped; its two http(s) images are extracted;
	// the data: URI is dropped during expansion.
	if s.Extracted != 2 || s.Skipped != 1 || s.Failed != 0 {
		t.Errorf("summary = %d/%d/%d, want 2 extracted, 1 skipped, 0 failed", s.Extracted, s.Skipped, s.Failed)
	}
	pageSkipped := false
	for _, r := range s.Results {
		if r.Reason == SkipWebPage {
			pageSkipped = true
		}
	}
	if !pageSkipped {
		t.Error("page candidate not recorded with web-page skip reason")
	}
}

func TestRunRemoteNotFound(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	src, err := enumerate.ParseSource(ts.URL+"/missing.jpg", false)
	if err != nil {
		t.Fatal(err)
	}
	cfg := types.ScanConfig{HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second}, OutputDir: t.TempDir()}
	s, err := Run(context.Background(), src, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariant(t, s)

	if s.Failed != 1 {
		t.Fatalf("failed = %d, want 1", s.Failed)
	}
	if s.Results[0].ErrorKind != FailNetwork {
		t.Errorf("kind = %q, want %q", s.Results[0].ErrorKind, FailNetwork)
	}
}

func TestRunRemoteTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer ts.Close()

	src, err := enumerate.ParseSource(ts.URL+"/slow.jpg", false)
	if err != nil {
		t.Fatal(err)
	}
	cfg := types.ScanConfig{HTTPConfig: types.HTTPConfig{Timeout: 30 * time.Millisecond}, OutputDir: t.TempDir()}
	s, err := Run(context.Background(), src, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariant(t, s)

	if s.Failed != 1 {
		t.Fatalf("failed = %d, want 1", s.Failed)
	}
	if s.Results[0].ErrorKind != FailTimeout {
		t.Errorf("kind = %q, want %q", s.Results[0].ErrorKind, FailTimeout)
	}
}

// memoryDeduper is a test double for the catalog.
type memoryDeduper struct {
	seen     map[string]string
	recorded int
}

func (d *memoryDeduper) Seen(_ context.Context, sum string) (string, bool, error) {
	p, ok := d.seen[sum]
	return p, ok, nil
}

func (d *memoryDeduper) Record(_ context.Context, res types.ExtractionResult, _ string) error {
	d.seen[res.SHA256] = res.OutputPath
	d.recorded++
	return nil
}

func TestRunCrossRunDedup(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.jpg"), jpegBytes("persistent"))

	dedupe := &memoryDeduper{seen: make(map[string]string)}
	cfg := types.ScanConfig{OutputDir: t.TempDir()}

	first, err := Run(context.Background(), dirSource(t, dir, false), cfg, dedupe, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.Extracted != 1 || dedupe.recorded != 1 {
		t.Fatalf("first run: %d extracted, %d recorded; want 1/1", first.Extracted, dedupe.recorded)
	}

	second, err := Run(context.Background(), dirSource(t, dir, false), cfg, dedupe, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkInvariant(t, second)
	if second.Extracted != 0 || second.Skipped != 1 {
		t.Errorf("second run: %d extracted, %d skipped; want 0/1", second.Extracted, second.Skipped)
	}
}

func TestRunParallelWorkers(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		writeTestFile(t, filepath.Join(dir, fmt.Sprintf("img-%02d.png", i)), pngBytes(fmt.Sprintf("payload-%d", i)))
	}
	writeTestFile(t, filepath.Join(dir, "notes.txt"), []byte("text"))

	out := t.TempDir()
	cfg := types.ScanConfig{OutputDir: out, Workers: 4}
	s, err := Run(context.Background(), dirSource(t, dir, false), cfg, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariant(t, s)

	if s.Extracted != 20 || s.Skipped != 1 || s.Failed != 0 {
		t.Errorf("summary = %d/%d/%d, want 20 extracted, 1 skipped, 0 failed", s.Extracted, s.Skipped, s.Failed)
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 20 {
		t.Errorf("output has %d files, want 20", len(entries))
	}
}

func TestRunParallelSameNameDistinctOutputs(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 8; i++ {
		writeTestFile(t, filepath.Join(dir, fmt.Sprintf("sub%d", i), "a.jpg"), jpegBytes(fmt.Sprintf("body-%d", i)))
	}

	out := t.TempDir()
	cfg := types.ScanConfig{OutputDir: out, Workers: 4, Recursive: true}
	s, err := Run(context.Background(), dirSource(t, dir, true), cfg, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkInvariant(t, s)

	if s.Extracted != 8 || s.Failed != 0 {
		t.Fatalf("summary = %d extracted, %d failed; want 8/0", s.Extracted, s.Failed)
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool)
	for _, e := range entries {
		if names[e.Name()] {
			t.Fatalf("duplicate output name %s", e.Name())
		}
		names[e.Name()] = true
	}
	if len(names) != 8 {
		t.Errorf("output has %d distinct names, want 8", len(names))
	}
}

func TestRunCancellation(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.jpg"), jpegBytes("one"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := Run(ctx, dirSource(t, dir, false), types.ScanConfig{OutputDir: t.TempDir()}, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	checkInvariant(t, s)
}

func TestRunExtensionFallback(t *testing.T) {
	// Headerless content with an image extension classifies by extension.
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "odd.png"), []byte("no magic here"))

	s, err := Run(context.Background(), dirSource(t, dir, false), types.ScanConfig{OutputDir: t.TempDir()}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Extracted != 1 {
		t.Errorf("extracted = %d, want 1 via extension fallback", s.Extracted)
	}
	if s.Results[0].Format != "png" {
		t.Errorf("format = %q, want png", s.Results[0].Format)
	}
}
