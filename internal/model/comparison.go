package model

import (
	"sort"
	"time"
)

// Trend directions of a Comparison.
const (
	TrendImproved  = "improved"
	TrendWorsened  = "worsened"
	TrendUnchanged = "unchanged"
)

// Comparison describes how a newer crawl of a root URL differs from an
// older one.
type Comparison struct {
	RootURL  string       `json:"root_url"`
	Previous CrawlSummary `json:"previous"`
	Current  CrawlSummary `json:"current"`

	// NewPages were downloaded only in the current crawl.
	NewPages []string `json:"new_pages,omitempty"`

	// MissingPages were downloaded only in the previous crawl.
	MissingPages []string `json:"missing_pages,omitempty"`

	// ChangedPages were downloaded in both crawls with different content.
	// Pages without a digest in either report are never listed.
	ChangedPages []string `json:"changed_pages,omitempty"`

	// NewFailures failed only in the current crawl.
	NewFailures []Failure `json:"new_failures,omitempty"`

	// ResolvedFailures failed only in the previous crawl.
	ResolvedFailures []Failure `json:"resolved_failures,omitempty"`

	// Trend is TrendImproved when the failure count dropped, TrendWorsened
	// when it grew and TrendUnchanged otherwise.
	Trend string `json:"trend"`
}

// CrawlSummary holds the headline numbers of one report.
type CrawlSummary struct {
	StartedAt   time.Time `json:"started_at"`
	Downloaded  int       `json:"downloaded"`
	Failed      int       `json:"failed"`
	Interrupted bool      `json:"interrupted"`
}

// Summarize returns the headline numbers of r.
func Summarize(r *CrawlReport) CrawlSummary {
	return CrawlSummary{
		StartedAt:   r.StartedAt,
		Downloaded:  len(r.Downloaded),
		Failed:      len(r.Failures),
		Interrupted: r.Interrupted,
	}
}

// Compare returns the differences between two reports of the same root.
// All lists in the result are sorted by URL.
func Compare(previous, current *CrawlReport) *Comparison {
	c := &Comparison{
		RootURL:  current.RootURL,
		Previous: Summarize(previous),
		Current:  Summarize(current),
	}

	c.NewPages = difference(current.Downloaded, previous.Downloaded)
	c.MissingPages = difference(previous.Downloaded, current.Downloaded)
	c.ChangedPages = changedPages(previous, current)
	c.NewFailures = failureDifference(current.Failures, previous.Failures)
	c.ResolvedFailures = failureDifference(previous.Failures, current.Failures)

	switch {
	case c.Current.Failed < c.Previous.Failed:
		c.Trend = TrendImproved
	case c.Current.Failed > c.Previous.Failed:
		c.Trend = TrendWorsened
	default:
		c.Trend = TrendUnchanged
	}
	return c
}

// HasChanges reports whether any page, its content or a failure differs.
func (c *Comparison) HasChanges() bool {
	return len(c.NewPages)+len(c.MissingPages)+len(c.ChangedPages)+
		len(c.NewFailures)+len(c.ResolvedFailures) > 0
}

// changedPages returns the URLs whose digest differs between the reports.
func changedPages(previous, current *CrawlReport) []string {
	var out []string
	for _, u := range current.Downloaded {
		cur, ok := current.Digests[u]
		if !ok {
			continue
		}
		if prev, ok := previous.Digests[u]; ok && prev != cur {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

// difference returns the elements of a that are not in b, sorted.
func difference(a, b []string) []string {
	seen := make(map[string]struct{}, len(b))
	for _, s := range b {
		seen[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// failureDifference returns the failures in a whose URL does not fail in b.
func failureDifference(a, b []Failure) []Failure {
	seen := make(map[string]struct{}, len(b))
	for _, f := range b {
		seen[f.URL] = struct{}{}
	}
	var out []Failure
	for _, f := range a {
		if _, ok := seen[f.URL]; !ok {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}
