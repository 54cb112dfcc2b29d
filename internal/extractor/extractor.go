package extractor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"strings"

	"github.com/nao1215/webcrawler/internal/crawler"
)

// HTMLExtractor extracts <a href> links from HTML documents.
// It holds no mutable state and is safe for concurrent use.
type HTMLExtractor struct {
	sameHost  bool
	rules     Rules
	hostRules map[string]Rules
	logger    *slog.Logger
}

// Rules are the glob patterns applied to link paths.
type Rules struct {
	// Ignore drops links whose path matches any pattern.
	Ignore []string

	// Follow, when not empty, keeps only links whose path matches a pattern.
	Follow []string
}

func (r Rules) empty() bool {
	return len(r.Ignore) == 0 && len(r.Follow) == 0
}

var _ crawler.LinkExtractor = (*HTMLExtractor)(nil)

// Option configures an HTMLExtractor.
type Option func(*HTMLExtractor)

// WithSameHost drops links that leave the host of the page they were
// found on.
func WithSameHost(sameHost bool) Option {
	return func(e *HTMLExtractor) {
		e.sameHost = sameHost
	}
}

// WithIgnorePatterns drops links whose path matches any of the glob
// patterns (for example "/logout*" or "*.pdf").
func WithIgnorePatterns(patterns []string) Option {
	return func(e *HTMLExtractor) {
		e.rules.Ignore = patterns
	}
}

// WithFollowPatterns keeps only links whose path matches at least one of
// the glob patterns. An empty list keeps everything.
func WithFollowPatterns(patterns []string) Option {
	return func(e *HTMLExtractor) {
		e.rules.Follow = patterns
	}
}

// WithHostRules replaces the ignore and follow patterns for links that
// point at the given hosts.
func WithHostRules(rules map[string]Rules) Option {
	return func(e *HTMLExtractor) {
		for host, r := range rules {
			e.hostRules[strings.ToLower(host)] = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *HTMLExtractor) {
		e.logger = logger
	}
}

// New creates an HTMLExtractor.
func New(opts ...Option) *HTMLExtractor {
	e := &HTMLExtractor{hostRules: make(map[string]Rules)}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Extract returns the links of doc in document order. Documents that are
// not HTML have no links. An unparseable base URL is an error.
func (e *HTMLExtractor) Extract(ctx context.Context, doc *crawler.Document) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !isHTML(doc.ContentType) {
		e.logger.Debug("skipping non-HTML document", "url", doc.URL, "content_type", doc.ContentType)
		return nil, nil
	}

	base, err := url.Parse(doc.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	found, err := Parse(base, bytes.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	links := found
	if e.sameHost || !e.rules.empty() || len(e.hostRules) > 0 {
		links = e.filter(base, links)
	}

	e.logger.Debug("extracted links",
		"url", doc.URL,
		"found", len(found),
		"kept", len(links),
	)
	return links, nil
}

func (e *HTMLExtractor) filter(base *url.URL, links []string) []string {
	kept := make([]string, 0, len(links))
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		if e.sameHost && !strings.EqualFold(u.Hostname(), base.Hostname()) {
			continue
		}
		r := e.rules
		if hr, ok := e.hostRules[strings.ToLower(u.Hostname())]; ok {
			r = hr
		}
		if !allowed(u.Path, r.Ignore, r.Follow) {
			continue
		}
		kept = append(kept, link)
	}
	return kept
}

// isHTML reports whether contentType is an HTML media type. Documents
// without a content type are assumed to be HTML.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
