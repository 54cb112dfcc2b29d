package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

type extractOutcome struct {
	links []string
	err   error
}

// extractCoordinator coalesces concurrent extractions of the same URL the way
// downloadCoordinator coalesces fetches, without host throttling.
type extractCoordinator struct {
	extractor LinkExtractor
	logger    *slog.Logger

	group singleflight.Group
	cache sync.Map // url -> *extractOutcome
}

func newExtractCoordinator(extractor LinkExtractor, logger *slog.Logger) *extractCoordinator {
	return &extractCoordinator{
		extractor: extractor,
		logger:    logger,
	}
}

// request returns the links of doc, which must be the document downloaded
// for rawURL. Failures are returned as *ExtractionError and cached.
// The returned slice is shared between callers and must not be modified.
func (c *extractCoordinator) request(ctx context.Context, rawURL string, doc *Document) ([]string, error) {
	if out, ok := c.cached(rawURL); ok {
		return out.links, out.err
	}

	v, err, _ := c.group.Do(rawURL, func() (any, error) {
		if out, ok := c.cached(rawURL); ok {
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(ErrInterrupted, err)
		}

		links, err := c.extractor.Extract(ctx, doc)
		out := &extractOutcome{links: links}
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrInterrupted, err)
			}
			var ee *ExtractionError
			if !errors.As(err, &ee) {
				ee = &ExtractionError{URL: rawURL, Err: err}
			}
			c.logger.Debug("extraction failed", "url", rawURL, "error", err)
			out = &extractOutcome{err: ee}
		}
		c.cache.Store(rawURL, out)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	out := v.(*extractOutcome) //nolint:forcetypeassert // only *extractOutcome is stored
	return out.links, out.err
}

func (c *extractCoordinator) cached(rawURL string) (*extractOutcome, bool) {
	v, ok := c.cache.Load(rawURL)
	if !ok {
		return nil, false
	}
	return v.(*extractOutcome), true //nolint:forcetypeassert // only *extractOutcome is stored
}
