package fetcher

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/webcrawler/internal/crawler"
	"golang.org/x/crypto/sha3"
	"golang.org/x/net/html/charset"
)

const (
	// DefaultUserAgent identifies the crawler to servers.
	DefaultUserAgent = "webcrawler/1.0 (+https://github.com/nao1215/webcrawler)"

	// DefaultMaxBodySize is the number of body bytes kept per page.
	DefaultMaxBodySize int64 = 10 * 1024 * 1024
)

// HTTPFetcher downloads pages with an *http.Client.
// It is safe for concurrent use.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	userAgents  map[string]string
	headers     map[string]string
	hostHeaders map[string]map[string]string
	maxBodySize int64
	logger      *slog.Logger
}

var _ crawler.Fetcher = (*HTTPFetcher)(nil)

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient sets the HTTP client. http.DefaultClient is used otherwise.
func WithClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHostUserAgents overrides the User-Agent for specific hosts.
func WithHostUserAgents(uas map[string]string) Option {
	return func(f *HTTPFetcher) {
		for host, ua := range uas {
			if ua != "" {
				f.userAgents[lowerHost(host)] = ua
			}
		}
	}
}

// WithHeaders adds request headers sent to every host.
func WithHeaders(headers map[string]string) Option {
	return func(f *HTTPFetcher) {
		f.headers = headers
	}
}

// WithHostHeaders adds request headers for specific hosts. They override
// headers of the same name given to WithHeaders.
func WithHostHeaders(headers map[string]map[string]string) Option {
	return func(f *HTTPFetcher) {
		for host, h := range headers {
			if len(h) > 0 {
				f.hostHeaders[lowerHost(host)] = h
			}
		}
	}
}

// WithMaxBodySize limits the number of body bytes read per response.
// Longer bodies are truncated. Non-positive values are ignored.
func WithMaxBodySize(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

// New creates an HTTPFetcher.
func New(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:      http.DefaultClient,
		userAgent:   DefaultUserAgent,
		userAgents:  make(map[string]string),
		hostHeaders: make(map[string]map[string]string),
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}

	if len(f.headers) > 0 || len(f.hostHeaders) > 0 {
		base := f.client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *f.client
		wrapped.Transport = &headerTransport{base: base, defaults: f.headers, perHost: f.hostHeaders}
		f.client = &wrapped
	}
	return f
}

// Fetch performs a GET request for rawURL and returns the response as a
// Document. Non-2xx responses fail with *StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*crawler.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgentFor(req.URL.Hostname()))
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096) //nolint:errcheck
		return nil, &StatusError{Code: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	body = f.toUTF8(rawURL, body, contentType)

	digest := sha3.Sum256(body)
	doc := &crawler.Document{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
		Digest:      hex.EncodeToString(digest[:]),
		FetchedAt:   time.Now(),
	}
	if doc.FinalURL == rawURL {
		doc.FinalURL = ""
	}

	f.logger.Debug("fetched",
		"url", rawURL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"content_type", contentType,
	)
	return doc, nil
}

func (f *HTTPFetcher) userAgentFor(host string) string {
	if ua, ok := f.userAgents[lowerHost(host)]; ok {
		return ua
	}
	return f.userAgent
}

// toUTF8 converts text bodies to UTF-8 using the declared or sniffed
// charset. Binary bodies and bodies that cannot be converted are returned
// unchanged.
func (f *HTTPFetcher) toUTF8(rawURL string, body []byte, contentType string) []byte {
	if !isText(contentType) {
		return body
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		f.logger.Debug("charset detection failed", "url", rawURL, "error", err)
		return body
	}
	converted, err := io.ReadAll(r)
	if err != nil {
		f.logger.Debug("charset conversion failed", "url", rawURL, "error", err)
		return body
	}
	return converted
}

// isText reports whether contentType names a textual media type. An empty
// content type is treated as text so servers that omit it still get
// their links extracted.
func isText(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/xhtml+xml" ||
		mediaType == "application/xml"
}

func lowerHost(host string) string {
	return strings.ToLower(host)
}
