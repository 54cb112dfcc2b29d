package crawler

import (
	"sort"
	"time"
)

// Result is the outcome of one crawl run.
type Result struct {
	// Downloaded lists every successfully downloaded URL exactly once, in
	// breadth-first discovery order starting with the root.
	Downloaded []string

	// Digests maps each downloaded URL to the content digest its fetcher
	// reported. URLs whose document carried no digest are absent.
	Digests map[string]string

	// Errors maps each failed URL to its *TransportError or *ExtractionError.
	Errors map[string]error

	// Interrupted is true when the run was cancelled or the crawler closed
	// before the traversal finished. Downloaded and Errors then hold the
	// part of the graph that was walked.
	Interrupted bool

	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

func newResult() Result {
	return Result{
		Downloaded: make([]string, 0),
		Digests:    make(map[string]string),
		Errors:     make(map[string]error),
	}
}

// FailedURLs returns the keys of Errors in lexical order.
func (r Result) FailedURLs() []string {
	urls := make([]string, 0, len(r.Errors))
	for u := range r.Errors {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}
