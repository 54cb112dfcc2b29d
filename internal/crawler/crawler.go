package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Default pool sizes used when no option overrides them.
const (
	DefaultDownloaders = 8
	DefaultExtractors  = 4
	DefaultPerHost     = 2
)

// Crawler downloads a URL graph breadth-first up to a given depth.
//
// A Crawler owns two fixed-size worker pools and one host throttle, shared
// by all runs started with Download, so the per-host cap holds across
// concurrent runs. Each run has its own visited registry and coalescing
// caches, so concurrent runs do not see each other's URLs.
type Crawler struct {
	fetcher   Fetcher
	extractor LinkExtractor

	downloaders int
	extractors  int
	perHost     int
	hostLimits  map[string]int
	hostOf      func(string) string
	logger      *slog.Logger

	throttle     *HostThrottle
	downloadPool *workerPool
	extractPool  *workerPool

	closed    atomic.Bool
	closeOnce sync.Once

	stats counters
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithDownloaders sets the number of download workers.
func WithDownloaders(n int) Option {
	return func(c *Crawler) {
		c.downloaders = n
	}
}

// WithExtractors sets the number of link extraction workers.
func WithExtractors(n int) Option {
	return func(c *Crawler) {
		c.extractors = n
	}
}

// WithPerHost sets how many downloads may run concurrently against one host.
func WithPerHost(n int) Option {
	return func(c *Crawler) {
		c.perHost = n
	}
}

// WithHostLimits overrides the per-host download limit for specific hosts.
// Non-positive values are ignored.
func WithHostLimits(limits map[string]int) Option {
	return func(c *Crawler) {
		c.hostLimits = limits
	}
}

// WithHostFunc replaces HostOf as the function that maps a URL to the key
// used for per-host admission control.
func WithHostFunc(fn func(string) string) Option {
	return func(c *Crawler) {
		if fn != nil {
			c.hostOf = fn
		}
	}
}

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// New creates a Crawler and starts its worker pools. Pool sizes and the
// per-host limit must be positive; otherwise an error wrapping
// ErrInvalidArgument is returned. Close must be called to stop the workers.
func New(fetcher Fetcher, extractor LinkExtractor, opts ...Option) (*Crawler, error) {
	c := &Crawler{
		fetcher:     fetcher,
		extractor:   extractor,
		downloaders: DefaultDownloaders,
		extractors:  DefaultExtractors,
		perHost:     DefaultPerHost,
		hostOf:      HostOf,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	switch {
	case fetcher == nil:
		return nil, fmt.Errorf("%w: fetcher is nil", ErrInvalidArgument)
	case extractor == nil:
		return nil, fmt.Errorf("%w: link extractor is nil", ErrInvalidArgument)
	case c.downloaders <= 0:
		return nil, fmt.Errorf("%w: download concurrency must be positive, got %d", ErrInvalidArgument, c.downloaders)
	case c.extractors <= 0:
		return nil, fmt.Errorf("%w: extract concurrency must be positive, got %d", ErrInvalidArgument, c.extractors)
	case c.perHost <= 0:
		return nil, fmt.Errorf("%w: per-host concurrency must be positive, got %d", ErrInvalidArgument, c.perHost)
	}

	c.throttle = NewHostThrottle(c.perHost, c.hostLimits)
	c.downloadPool = newWorkerPool("download", c.downloaders, c.logger)
	c.extractPool = newWorkerPool("extract", c.extractors, c.logger)

	c.logger.Debug("crawler started",
		"downloaders", c.downloaders,
		"extractors", c.extractors,
		"per_host", c.perHost,
	)
	return c, nil
}

// Download crawls rootURL breadth-first down to maxDepth (the root is depth
// 1) and returns the URLs downloaded, in discovery order, together with the
// per-URL failures.
//
// Per-URL failures never fail the call. The error is non-nil only when
// maxDepth < 1 (ErrInvalidArgument) or the crawler was already closed
// (ErrClosed). Cancelling ctx, or closing the crawler mid-run, stops the
// walk and returns the partial result with Result.Interrupted set.
func (c *Crawler) Download(ctx context.Context, rootURL string, maxDepth int) (Result, error) {
	if maxDepth < 1 {
		return Result{}, fmt.Errorf("%w: max depth must be at least 1, got %d", ErrInvalidArgument, maxDepth)
	}
	if c.closed.Load() {
		return Result{}, ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	r := c.newRun(ctx)
	root := newNode(rootURL, 1, maxDepth)

	c.logger.Info("crawl started", "url", rootURL, "max_depth", maxDepth)

	// The root is always first-seen in its own run.
	r.visited.Store(rootURL, struct{}{})
	r.submitDownload(root)

	result := gather(ctx, root, c.logger)
	result.Duration = time.Since(started)

	c.logger.Info("crawl finished",
		"url", rootURL,
		"downloaded", len(result.Downloaded),
		"errors", len(result.Errors),
		"interrupted", result.Interrupted,
		"elapsed", result.Duration,
	)
	return result, nil
}

// Close stops both worker pools. Queued work is abandoned and the affected
// nodes are reported as interrupted; downloads and extractions already
// running are allowed to finish. Close blocks until all workers have exited
// and is safe to call more than once.
func (c *Crawler) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.downloadPool.shutdown()
		c.extractPool.shutdown()
		c.downloadPool.wait()
		c.extractPool.wait()
		c.logger.Debug("crawler closed")
	})
	return nil
}

// Stats returns counters accumulated over all runs of this crawler,
// together with the current host and queue gauges.
func (c *Crawler) Stats() Stats {
	s := c.stats.snapshot()
	s.Hosts = c.throttle.Hosts()
	s.Queued = c.downloadPool.pending() + c.extractPool.pending()
	return s
}

// run is the state of one Download call.
type run struct {
	c   *Crawler
	ctx context.Context

	visited   sync.Map // url -> struct{}
	downloads *downloadCoordinator
	extracts  *extractCoordinator
}

func (c *Crawler) newRun(ctx context.Context) *run {
	return &run{
		c:         c,
		ctx:       ctx,
		downloads: newDownloadCoordinator(&countingFetcher{Fetcher: c.fetcher, stats: &c.stats}, c.throttle, c.hostOf, c.logger),
		extracts:  newExtractCoordinator(&countingExtractor{LinkExtractor: c.extractor, stats: &c.stats}, c.logger),
	}
}

// dispatch registers n in the visited registry and queues its download.
// A URL already dispatched in this run marks n as a duplicate.
func (r *run) dispatch(n *Node) {
	if _, seen := r.visited.LoadOrStore(n.url, struct{}{}); seen {
		r.c.stats.duplicates.Add(1)
		n.markDuplicate()
		return
	}
	r.submitDownload(n)
}

func (r *run) submitDownload(n *Node) {
	r.submit(r.c.downloadPool, n, func() { r.download(n) })
}

func (r *run) submit(p *workerPool, n *Node, fn func()) {
	interrupt := func() {
		r.c.stats.interrupted.Add(1)
		n.markInterrupted()
	}
	if err := p.submit(task{run: fn, abort: interrupt}); err != nil {
		r.c.logger.Debug("submit rejected", "url", n.url, "error", err)
		interrupt()
	}
}

func (r *run) download(n *Node) {
	if r.ctx.Err() != nil {
		r.c.stats.interrupted.Add(1)
		n.markInterrupted()
		return
	}

	doc, err := r.downloads.request(r.ctx, n.url)
	switch {
	case errors.Is(err, ErrInterrupted):
		r.c.stats.interrupted.Add(1)
		n.markInterrupted()
	case err != nil:
		r.c.logger.Warn("download failed", "url", n.url, "depth", n.depth, "error", err)
		n.fail(err)
	case n.IsLeaf():
		n.complete(doc)
	default:
		r.submit(r.c.extractPool, n, func() { r.extract(n, doc) })
	}
}

func (r *run) extract(n *Node, doc *Document) {
	if r.ctx.Err() != nil {
		r.c.stats.interrupted.Add(1)
		n.markInterrupted()
		return
	}

	links, err := r.extracts.request(r.ctx, n.url, doc)
	switch {
	case errors.Is(err, ErrInterrupted):
		r.c.stats.interrupted.Add(1)
		n.markInterrupted()
		return
	case err != nil:
		r.c.logger.Warn("link extraction failed", "url", n.url, "depth", n.depth, "error", err)
		n.fail(err)
		return
	}

	children := make([]*Node, len(links))
	for i, link := range links {
		children[i] = newNode(link, n.depth+1, n.maxDepth)
	}
	n.completeWithChildren(doc, children)

	for _, child := range children {
		r.dispatch(child)
	}
}
