package crawler

import (
	"context"
	"sync/atomic"
)

// Stats contains counters accumulated by a Crawler over all of its runs.
type Stats struct {
	// Fetches is the number of calls made to the Fetcher.
	Fetches int64

	// FetchFailures is the number of those calls that returned an error.
	FetchFailures int64

	// Extractions is the number of calls made to the LinkExtractor.
	Extractions int64

	// Duplicates is the number of nodes skipped because their URL had
	// already been dispatched in the same run.
	Duplicates int64

	// Interrupted is the number of nodes abandoned because of cancellation
	// or shutdown.
	Interrupted int64

	// Hosts is the number of distinct hosts downloads were admitted for.
	Hosts int

	// Queued is the number of download and extraction tasks waiting for a
	// worker.
	Queued int
}

type counters struct {
	fetches       atomic.Int64
	fetchFailures atomic.Int64
	extractions   atomic.Int64
	duplicates    atomic.Int64
	interrupted   atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Fetches:       c.fetches.Load(),
		FetchFailures: c.fetchFailures.Load(),
		Extractions:   c.extractions.Load(),
		Duplicates:    c.duplicates.Load(),
		Interrupted:   c.interrupted.Load(),
	}
}

// countingFetcher records every call that reaches the real Fetcher.
type countingFetcher struct {
	Fetcher
	stats *counters
}

func (f *countingFetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	f.stats.fetches.Add(1)
	doc, err := f.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		f.stats.fetchFailures.Add(1)
	}
	return doc, err
}

type countingExtractor struct {
	LinkExtractor
	stats *counters
}

func (e *countingExtractor) Extract(ctx context.Context, doc *Document) ([]string, error) {
	e.stats.extractions.Add(1)
	return e.LinkExtractor.Extract(ctx, doc)
}
