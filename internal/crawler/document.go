package crawler

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Document is a downloaded page as handed from the download stage to the
// extract stage. It is immutable once returned by a Fetcher and may be
// shared between goroutines.
type Document struct {
	// URL is the address that was requested.
	URL string `json:"url"`

	// FinalURL is the address the content was served from after redirects.
	// Relative links are resolved against it. Empty means URL.
	FinalURL string `json:"final_url,omitempty"`

	// StatusCode is the HTTP status code, or 0 for non-HTTP fetchers.
	StatusCode int `json:"status_code,omitempty"`

	// ContentType is the media type reported by the server.
	ContentType string `json:"content_type,omitempty"`

	// Body holds the (possibly truncated) response body.
	Body []byte `json:"-"`

	// Digest is a hex encoded content hash of Body.
	Digest string `json:"digest,omitempty"`

	// FetchedAt is the time the download finished.
	FetchedAt time.Time `json:"fetched_at"`
}

// BaseURL returns the URL relative links should be resolved against.
func (d *Document) BaseURL() string {
	if d.FinalURL != "" {
		return d.FinalURL
	}
	return d.URL
}

// Fetcher downloads a single URL.
// Implementations must be safe for concurrent use. A returned error is
// reported as a TransportError for that URL; the crawler never retries.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Document, error)
}

// LinkExtractor returns the URLs a document references, in document order.
// Duplicate links within one document are preserved; cross-document
// de-duplication is done by the crawler. Implementations must be safe for
// concurrent use.
type LinkExtractor interface {
	Extract(ctx context.Context, doc *Document) ([]string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, rawURL string) (*Document, error)

// Fetch calls f(ctx, rawURL).
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	return f(ctx, rawURL)
}

// LinkExtractorFunc adapts a function to the LinkExtractor interface.
type LinkExtractorFunc func(ctx context.Context, doc *Document) ([]string, error)

// Extract calls f(ctx, doc).
func (f LinkExtractorFunc) Extract(ctx context.Context, doc *Document) ([]string, error) {
	return f(ctx, doc)
}

// HostOf returns the lower-cased host name of rawURL, without port.
// Unparseable URLs map to the empty host, which is throttled like any other.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
