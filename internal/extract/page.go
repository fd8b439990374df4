// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// looksLikeHTML reports whether a fetched body is a web page rather than
// an image, judged by the Content-Type header or the leading bytes.
func looksLikeHTML(contentType string, prefix []byte) bool {
	if strings.Contains(contentType, "text/html") {
		return true
	}
	head := bytes.ToLower(bytes.TrimLeft(prefix, " \t\r\n"))
	return bytes.HasPrefix(head, []byte("<!doctype")) || bytes.HasPrefix(head, []byte("<html"))
}

// imageURLs extracts the src of every <img> element in body, resolved
// against base. Relative and protocol-relative references are made
// absolute; non-HTTP schemes (data:, file:) are dropped. The returned
// list preserves document order with duplicates removed.
func imageURLs(base *url.URL, body io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var urls []string
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		s := abs.String()
		if !seen[s] {
			seen[s] = true
			urls = append(urls, s)
		}
	})
	return urls, nil
}
