// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch retrieves remote resources for the extraction pipeline.
// Implements: prd002-acquisition (R4).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/pdiddy/imgsieve/internal/httputil"
	"github.com/pdiddy/imgsieve/pkg/types"
)

const defaultUserAgent = "imgsieve/0.1"

// acceptHeader advertises image content first, mirroring what browsers
// send; some hosts refuse requests without it.
const acceptHeader = "image/webp,image/apng,image/*,*/*;q=0.8"

// Kind classifies a fetch failure so the pipeline can record it.
type Kind string

const (
	KindNetwork Kind = "network"
	KindTimeout Kind = "timeout"
	KindHTTP    Kind = "http"
)

// Error is a fetch failure with the URL and failure class attached.
type Error struct {
	URL    string
	Kind   Kind
	Status int // non-zero for KindHTTP
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("fetching %s: HTTP %d", e.URL, e.Status)
	case KindTimeout:
		return fmt.Sprintf("fetching %s: timed out", e.URL)
	default:
		return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a fetch timeout.
func IsTimeout(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindTimeout
}

// Get retrieves rawURL and returns the open response. The caller owns the
// body. Rate-limited responses (429/503) are retried with bounded backoff;
// any other non-2xx status is an *Error of KindHTTP. Timeouts, including
// the client-level timeout from cfg, surface as KindTimeout so the
// pipeline can record them distinctly (R4.3).
func Get(ctx context.Context, client *http.Client, rawURL string, cfg types.HTTPConfig) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Kind: KindNetwork, Err: err}
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", acceptHeader)

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, &Error{URL: rawURL, Kind: classify(err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &Error{URL: rawURL, Kind: KindHTTP, Status: resp.StatusCode}
	}
	return resp, nil
}

// classify distinguishes timeouts from other transport failures.
func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
