package model

import (
	"errors"
	"maps"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/nao1215/webcrawler/internal/crawler"
	"github.com/nao1215/webcrawler/internal/fetcher"
)

// FailureKind classifies why a URL is listed in a report's failures.
type FailureKind string

const (
	// FailureTransport means the document could not be downloaded.
	FailureTransport FailureKind = "transport"

	// FailureExtraction means the document was downloaded but its links
	// could not be extracted.
	FailureExtraction FailureKind = "extraction"

	// FailureOther covers errors of any other type.
	FailureOther FailureKind = "other"
)

// CrawlReport is the outcome of crawling one root URL.
type CrawlReport struct {
	// RootURL is the URL the crawl started from.
	RootURL string `json:"root_url"`

	// MaxDepth is the depth limit of the crawl. The root is depth 1.
	MaxDepth int `json:"max_depth"`

	// StartedAt is when the crawl started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the crawl returned.
	FinishedAt time.Time `json:"finished_at"`

	// Downloaded lists the downloaded URLs in breadth-first order.
	Downloaded []string `json:"downloaded"`

	// Digests maps downloaded URLs to the hex content digest of the page.
	Digests map[string]string `json:"digests,omitempty"`

	// Failures lists the URLs that failed, sorted by URL.
	Failures []Failure `json:"failures,omitempty"`

	// Interrupted is true when the crawl was cancelled before it finished.
	Interrupted bool `json:"interrupted"`

	// Error is set when the crawl could not be run at all.
	Error string `json:"error,omitempty"`
}

// Failure is one URL that could not be crawled.
type Failure struct {
	URL     string      `json:"url"`
	Kind    FailureKind `json:"kind"`
	Status  int         `json:"status,omitempty"`
	Message string      `json:"message"`
}

// NewCrawlReport converts the result of crawling rootURL into a report.
// err is the error returned by the crawl call itself, if any.
func NewCrawlReport(rootURL string, maxDepth int, startedAt time.Time, res crawler.Result, err error) *CrawlReport {
	report := &CrawlReport{
		RootURL:     rootURL,
		MaxDepth:    maxDepth,
		StartedAt:   startedAt,
		FinishedAt:  startedAt.Add(res.Duration),
		Downloaded:  append([]string{}, res.Downloaded...),
		Interrupted: res.Interrupted,
	}
	if len(res.Digests) > 0 {
		report.Digests = maps.Clone(res.Digests)
	}
	if err != nil {
		report.Error = err.Error()
	}
	for _, u := range res.FailedURLs() {
		report.Failures = append(report.Failures, newFailure(u, res.Errors[u]))
	}
	return report
}

func newFailure(rawURL string, err error) Failure {
	f := Failure{URL: rawURL, Kind: FailureOther, Message: err.Error()}

	var (
		te *crawler.TransportError
		ee *crawler.ExtractionError
		se *fetcher.StatusError
	)
	switch {
	case errors.As(err, &te):
		f.Kind = FailureTransport
		f.Message = te.Err.Error()
	case errors.As(err, &ee):
		f.Kind = FailureExtraction
		f.Message = ee.Err.Error()
	}
	if errors.As(err, &se) {
		f.Status = se.Code
	}
	return f
}

// Duration returns the wall-clock time of the crawl.
func (r *CrawlReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the crawl ran to completion.
func (r *CrawlReport) Succeeded() bool {
	return r.Error == "" && !r.Interrupted
}

// FailureCount returns the number of failures of the given kind.
func (r *CrawlReport) FailureCount(kind FailureKind) int {
	n := 0
	for _, f := range r.Failures {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

// HostSummary counts the downloaded and failed URLs of one host.
type HostSummary struct {
	Host       string `json:"host"`
	Downloaded int    `json:"downloaded"`
	Failed     int    `json:"failed"`
}

// Hosts groups the report's URLs by host, busiest host first. Hosts with
// equal totals are ordered by name.
func (r *CrawlReport) Hosts() []HostSummary {
	byHost := make(map[string]*HostSummary)
	get := func(rawURL string) *HostSummary {
		host := hostName(rawURL)
		s, ok := byHost[host]
		if !ok {
			s = &HostSummary{Host: host}
			byHost[host] = s
		}
		return s
	}
	for _, u := range r.Downloaded {
		get(u).Downloaded++
	}
	for _, f := range r.Failures {
		get(f.URL).Failed++
	}

	hosts := make([]HostSummary, 0, len(byHost))
	for _, s := range byHost {
		hosts = append(hosts, *s)
	}
	sort.Slice(hosts, func(i, j int) bool {
		ti := hosts[i].Downloaded + hosts[i].Failed
		tj := hosts[j].Downloaded + hosts[j].Failed
		if ti != tj {
			return ti > tj
		}
		return hosts[i].Host < hosts[j].Host
	})
	return hosts
}

func hostName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}
