package crawler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency is the number of roots crawled at once by a
// BatchProcessor unless WithConcurrency says otherwise.
const DefaultBatchConcurrency = 4

// BatchResult is the outcome of crawling one root of a batch.
type BatchResult struct {
	// RootURL is the root the run started from.
	RootURL string

	// MaxDepth is the depth limit the root was crawled with.
	MaxDepth int

	// StartedAt is when the root's run started.
	StartedAt time.Time

	// Result is the run's result. It is the zero Result when Err is set.
	Result Result

	// Err is the error returned by Crawler.Download, if any.
	Err error
}

// BatchProcessor crawls several roots on one Crawler. Each root gets its own
// run, so the roots do not share a visited registry, but they share the
// crawler's worker pools.
type BatchProcessor struct {
	crawler     *Crawler
	concurrency int
	depthFor    func(string) int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets the logger used for batch progress.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets how many roots are crawled at the same time.
// Non-positive values are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithDepthFunc sets a function that picks the depth limit per root. A
// non-positive return value falls back to the maxDepth passed to Process.
func WithDepthFunc(fn func(rootURL string) int) BatchOption {
	return func(b *BatchProcessor) {
		b.depthFor = fn
	}
}

// NewBatchProcessor returns a BatchProcessor that runs its crawls on c.
func NewBatchProcessor(c *Crawler, opts ...BatchOption) *BatchProcessor {
	b := &BatchProcessor{
		crawler:     c,
		concurrency: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Process crawls every root to maxDepth and returns one BatchResult per
// root, in the order of roots. A failing root does not stop the others.
// The returned error is non-nil only when ctx was cancelled; roots that had
// not started by then are reported with Err set to the context error.
func (b *BatchProcessor) Process(ctx context.Context, roots []string, maxDepth int) ([]BatchResult, error) {
	results := make([]BatchResult, len(roots))
	err := b.ProcessWithCallback(ctx, roots, maxDepth, func(i int, r BatchResult) {
		results[i] = r
	})
	return results, err
}

// ProcessWithCallback is like Process but hands each BatchResult to fn as
// soon as its root finishes. fn receives the index of the root in roots and
// is called from several goroutines, but never twice for the same index.
func (b *BatchProcessor) ProcessWithCallback(ctx context.Context, roots []string, maxDepth int, fn func(int, BatchResult)) error {
	b.logger.Info("starting batch crawl", "roots", len(roots), "concurrency", b.concurrency)
	started := time.Now()

	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for i, root := range roots {
		g.Go(func() error {
			depth := b.depth(root, maxDepth)
			if err := ctx.Err(); err != nil {
				fn(i, BatchResult{RootURL: root, MaxDepth: depth, StartedAt: time.Now(), Err: err})
				return nil
			}

			b.logger.Debug("crawling root", "url", root, "index", i+1, "total", len(roots), "max_depth", depth)
			startedAt := time.Now()
			res, err := b.crawler.Download(ctx, root, depth)
			if err != nil {
				b.logger.Warn("root failed", "url", root, "error", err)
			}
			fn(i, BatchResult{RootURL: root, MaxDepth: depth, StartedAt: startedAt, Result: res, Err: err})
			return nil
		})
	}
	// Tasks never return an error; per-root failures live in BatchResult.
	_ = g.Wait() //nolint:errcheck

	b.logger.Info("batch crawl finished", "roots", len(roots), "elapsed", time.Since(started))
	return ctx.Err()
}

func (b *BatchProcessor) depth(root string, fallback int) int {
	if b.depthFor != nil {
		if d := b.depthFor(root); d > 0 {
			return d
		}
	}
	return fallback
}
