package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"marketglass/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

// Scraper is the contract every source adapter implements. An adapter
// fetches and parses one provider's pages into a category bucket. Adapters
// hold no cross-call state; caching is centralized in the cache layer.
type Scraper interface {
	Name() domain.SourceID
	Categories() []domain.Category
	Fetch(ctx context.Context, categories []domain.Category) (domain.Bucket, error)
}

var (
	errNoSupportedCategories = fmt.Errorf("none of the requested categories are supported")
	errTableNotFound         = fmt.Errorf("quote table not found in page")
)

// AdapterError classifies a source failure so callers can tell "source is
// down" apart from "source changed its page structure".
type AdapterError struct {
	Source domain.SourceID
	Kind   domain.ErrorKind
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Classify extracts the error kind from an adapter error, defaulting to
// network for untyped failures.
func Classify(err error) domain.ErrorKind {
	if ae, ok := err.(*AdapterError); ok {
		return ae.Kind
	}
	return domain.ErrorNetwork
}

// browserHeaders mimic a desktop browser; the upstream sites serve reduced
// or blocked pages to obvious bots.
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// fetchHTML performs one GET and parses the body into a goquery document.
// Failures come back as *AdapterError with the kind already classified.
func fetchHTML(ctx context.Context, client *http.Client, source domain.SourceID, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &AdapterError{Source: source, Kind: domain.ErrorNetwork, Err: err}
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &AdapterError{Source: source, Kind: domain.ErrorNetwork, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &AdapterError{Source: source, Kind: domain.ErrorBlocked, Err: fmt.Errorf("GET %s -> %d", url, resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &AdapterError{Source: source, Kind: domain.ErrorNetwork, Err: fmt.Errorf("GET %s -> %d", url, resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &AdapterError{Source: source, Kind: domain.ErrorParseMismatch, Err: err}
	}
	return doc, nil
}

// requestedIn filters the adapter's supported categories down to the
// requested set, preserving the adapter's canonical order.
func requestedIn(supported []domain.Category, requested []domain.Category) []domain.Category {
	if len(requested) == 0 {
		return supported
	}
	want := make(map[domain.Category]struct{}, len(requested))
	for _, c := range requested {
		want[c] = struct{}{}
	}
	out := make([]domain.Category, 0, len(supported))
	for _, c := range supported {
		if _, ok := want[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// cellText returns the trimmed text of the n-th td in a row selection.
func cellText(cells *goquery.Selection, n int) string {
	return trimmed(cells.Eq(n).Text())
}

// trimmed collapses runs of whitespace; scraped cells often carry stray
// newlines and padding.
func trimmed(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
