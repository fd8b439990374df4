// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract runs the image extraction pipeline: enumerate
// candidates, classify, filter, copy matches into the output directory,
// and record one result per candidate.
// Implements: prd003-pipeline (R1-R5).
package extract

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/pdiddy/imgsieve/internal/enumerate"
	"github.com/pdiddy/imgsieve/internal/fetch"
	"github.com/pdiddy/imgsieve/internal/imageformat"
	"github.com/pdiddy/imgsieve/pkg/types"
)

// ErrFatal marks errors that abort the whole run before or during setup
// (unwritable output directory, invalid filter). The CLI maps these to a
// distinct exit code. Per prd003-pipeline R1.4.
var ErrFatal = errors.New("fatal")

// Deduper answers whether content has been extracted before and records
// new extractions. A nil Deduper disables cross-run deduplication; in-run
// deduplication always applies.
type Deduper interface {
	// Seen returns the existing output path for a content digest, if any.
	Seen(ctx context.Context, sha256 string) (string, bool, error)

	// Record persists one successful extraction.
	Record(ctx context.Context, res types.ExtractionResult, runID string) error
}

// runner holds the per-run state shared by workers.
type runner struct {
	cfg    types.ScanConfig
	filter imageformat.Format
	client *http.Client
	report *Report
	dedupe Deduper
	w      io.Writer

	seenMu sync.Mutex
	seen   map[string]bool // in-run content digests
}

// Run executes one extraction run over src and returns the finalized
// summary. Setup failures return an error wrapping ErrFatal with a zero
// summary; per-candidate failures are recorded in the summary and never
// abort the run. Cancelling ctx stops issuing new candidates promptly;
// in-flight candidates finish (or roll back) before Run returns, and the
// partial summary is still finalized and returned alongside ctx's error.
func Run(ctx context.Context, src enumerate.Source, cfg types.ScanConfig, dedupe Deduper, w io.Writer) (types.RunSummary, error) {
	if w == nil {
		w = io.Discard
	}

	var filter imageformat.Format
	if cfg.FormatFilter != "" {
		f, ok := imageformat.Normalize(cfg.FormatFilter)
		if !ok {
			return types.RunSummary{}, fmt.Errorf("%w: unsupported format filter %q", ErrFatal, cfg.FormatFilter)
		}
		filter = f
	}

	// The output directory must exist and be writable before the first
	// candidate is processed; anything less is fatal since there is
	// nowhere to write.
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return types.RunSummary{}, fmt.Errorf("%w: creating output directory %s: %v", ErrFatal, cfg.OutputDir, err)
	}
	probe, err := os.CreateTemp(cfg.OutputDir, ".imgsieve-probe-*")
	if err != nil {
		return types.RunSummary{}, fmt.Errorf("%w: output directory %s is not writable: %v", ErrFatal, cfg.OutputDir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	r := &runner{
		cfg:    cfg,
		filter: filter,
		client: &http.Client{Timeout: cfg.Timeout},
		report: NewReport(src.String(), w),
		dedupe: dedupe,
		w:      w,
		seen:   make(map[string]bool),
	}

	runErr := r.runAll(ctx, src)
	summary := r.report.Finalize()
	return summary, runErr
}

// runAll drives the walk, sequentially or through a bounded worker pool.
func (r *runner) runAll(ctx context.Context, src enumerate.Source) error {
	if r.cfg.Workers < 2 {
		return enumerate.Walk(src, func(c enumerate.Candidate) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.process(ctx, c)
			return nil
		})
	}

	ch := make(chan enumerate.Candidate)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range ch {
				r.process(ctx, c)
			}
		}()
	}

	walkErr := enumerate.Walk(src, func(c enumerate.Candidate) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- c:
			return nil
		}
	})
	close(ch)
	wg.Wait()
	return walkErr
}

// process handles exactly one candidate and records exactly one result
// for it (plus one per page-expanded image for HTML candidates). Errors
// never propagate past a candidate boundary.
func (r *runner) process(ctx context.Context, c enumerate.Candidate) {
	if c.Err != nil {
		r.report.Add(types.ExtractionResult{
			Source:  c.Path,
			Outcome: types.OutcomeSkipped,
			Reason:  SkipUnreadableDir,
		})
		return
	}
	if c.Remote {
		r.processRemote(ctx, c.Path, 0)
		return
	}
	r.processLocal(ctx, c.Path)
}

func (r *runner) processLocal(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		r.fail(path, FailUnreadableSource, err)
		return
	}
	defer f.Close()

	br := bufio.NewReader(f)
	prefix, _ := br.Peek(imageformat.SniffLen)

	format := imageformat.Detect(prefix)
	if format == imageformat.Unknown {
		format = imageformat.FromExtension(path)
	}
	// With a filter set, anything that is not the wanted format is a
	// filter miss, unrecognized content included.
	if r.filter != imageformat.Unknown && format != r.filter {
		r.skip(path, SkipFormatFiltered)
		return
	}
	if format == imageformat.Unknown {
		r.skip(path, SkipNotAnImage)
		return
	}

	r.write(ctx, path, false, br, format)
}

// processRemote fetches a URL candidate. A body that turns out to be an
// HTML page is expanded once (depth 0 only): every <img> reference
// becomes its own candidate and the page itself is recorded as skipped.
func (r *runner) processRemote(ctx context.Context, rawURL string, depth int) {
	resp, err := fetch.Get(ctx, r.client, rawURL, r.cfg.HTTPConfig)
	if err != nil {
		kind := FailNetwork
		if fetch.IsTimeout(err) {
			kind = FailTimeout
		}
		r.fail(rawURL, kind, err)
		return
	}
	defer resp.Body.Close()

	br := bufio.NewReader(resp.Body)
	prefix, _ := br.Peek(imageformat.SniffLen)

	format := imageformat.Detect(prefix)
	if format == imageformat.Unknown {
		if depth == 0 && looksLikeHTML(resp.Header.Get("Content-Type"), prefix) {
			r.expandPage(ctx, rawURL, resp, br)
			return
		}
		format = imageformat.FromExtension(resp.Request.URL.Path)
	}
	if r.filter != imageformat.Unknown && format != r.filter {
		r.skip(rawURL, SkipFormatFiltered)
		return
	}
	if format == imageformat.Unknown {
		r.skip(rawURL, SkipNotAnImage)
		return
	}

	r.write(ctx, rawURL, true, br, format)
}

func (r *runner) expandPage(ctx context.Context, pageURL string, resp *http.Response, body io.Reader) {
	urls, err := imageURLs(resp.Request.URL, body)
	if err != nil {
		r.fail(pageURL, FailNetwork, fmt.Errorf("parsing page: %w", err))
		return
	}
	r.skip(pageURL, SkipWebPage)
	for _, u := range urls {
		if ctx.Err() != nil {
			return
		}
		r.processRemote(ctx, u, 1)
	}
}

// write copies body through a sha256 digest into a temp file inside the
// output directory, drops duplicates, and commits the temp file under a
// collision-safe name. A failed item never leaves a partial file behind.
func (r *runner) write(ctx context.Context, source string, remote bool, body io.Reader, format imageformat.Format) {
	tmp, err := os.CreateTemp(r.cfg.OutputDir, ".imgsieve-*.tmp")
	if err != nil {
		r.fail(source, FailWrite, err)
		return
	}
	tmpPath := tmp.Name()
	discard := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	h := sha256.New()
	n, readErr, writeErr := copyHash(tmp, body, h)
	if readErr != nil {
		discard()
		r.fail(source, readFailureKind(remote, readErr), readErr)
		return
	}
	if writeErr != nil {
		discard()
		r.fail(source, FailWrite, writeErr)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		r.fail(source, FailWrite, err)
		return
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if !r.claim(ctx, sum) {
		os.Remove(tmpPath)
		r.skip(source, SkipDuplicate)
		return
	}

	out, err := reserveName(r.cfg.OutputDir, outputStem(source, remote), format, r.cfg.MaxNameAttempts)
	if err != nil {
		os.Remove(tmpPath)
		r.release(sum)
		kind := FailWrite
		if errors.Is(err, ErrNameExhausted) {
			kind = FailNameCollision
		}
		r.fail(source, kind, err)
		return
	}
	if err := os.Rename(tmpPath, out); err != nil {
		os.Remove(tmpPath)
		os.Remove(out)
		r.release(sum)
		r.fail(source, FailWrite, err)
		return
	}

	res := types.ExtractionResult{
		Source:     source,
		Format:     string(format),
		Outcome:    types.OutcomeExtracted,
		OutputPath: out,
		SHA256:     sum,
		SizeBytes:  n,
	}
	r.report.Add(res)

	if r.dedupe != nil {
		if err := r.dedupe.Record(ctx, res, r.report.RunID()); err != nil {
			fmt.Fprintf(r.w, "warning: catalog record failed for %s: %v\n", source, err)
		}
	}
}

// claim marks a content digest as extracted. It returns false when the
// digest was already claimed in this run or recorded by the Deduper in a
// previous one. The check-and-set is atomic so concurrent workers cannot
// both claim the same content.
func (r *runner) claim(ctx context.Context, sum string) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if r.seen[sum] {
		return false
	}
	if r.dedupe != nil {
		if _, ok, err := r.dedupe.Seen(ctx, sum); err == nil && ok {
			return false
		}
	}
	r.seen[sum] = true
	return true
}

// release undoes a claim after a failed commit so identical content can
// still be extracted later in the run.
func (r *runner) release(sum string) {
	r.seenMu.Lock()
	delete(r.seen, sum)
	r.seenMu.Unlock()
}

func (r *runner) skip(source, reason string) {
	r.report.Add(types.ExtractionResult{
		Source:  source,
		Outcome: types.OutcomeSkipped,
		Reason:  reason,
	})
}

func (r *runner) fail(source, kind string, err error) {
	r.report.Add(types.ExtractionResult{
		Source:    source,
		Outcome:   types.OutcomeFailed,
		ErrorKind: kind,
		Error:     err.Error(),
	})
}

// copyHash copies src to dst while feeding h, reporting read and write
// failures separately so the pipeline can classify them.
func copyHash(dst io.Writer, src io.Reader, h hash.Hash) (written int64, readErr, writeErr error) {
	buf := make([]byte, 32*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, nil, werr
			}
			if wn < n {
				return written, nil, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil, nil
		}
		if rerr != nil {
			return written, rerr, nil
		}
	}
}

// readFailureKind classifies a mid-copy read failure: timeouts on remote
// bodies count as timeouts, other remote failures as network errors, and
// local failures as unreadable sources.
func readFailureKind(remote bool, err error) string {
	if !remote {
		return FailUnreadableSource
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return FailTimeout
	}
	return FailNetwork
}
