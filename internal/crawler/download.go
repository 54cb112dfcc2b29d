package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// downloadOutcome is the cached result of one fetch. Exactly one of doc and
// err is set.
type downloadOutcome struct {
	doc *Document
	err error
}

// downloadCoordinator guarantees at most one in-flight fetch per URL.
//
// Concurrent requests for the same URL join the leader's singleflight call
// and receive the identical outcome without consuming a host permit of their
// own. Once published, outcomes (failures included) are served from cache
// for the rest of the run.
type downloadCoordinator struct {
	fetcher  Fetcher
	throttle *HostThrottle
	hostOf   func(string) string
	logger   *slog.Logger

	group singleflight.Group
	cache sync.Map // url -> *downloadOutcome
}

func newDownloadCoordinator(fetcher Fetcher, throttle *HostThrottle, hostOf func(string) string, logger *slog.Logger) *downloadCoordinator {
	return &downloadCoordinator{
		fetcher:  fetcher,
		throttle: throttle,
		hostOf:   hostOf,
		logger:   logger,
	}
}

// request returns the document for rawURL. A failed fetch is returned as a
// *TransportError. If ctx is done before the fetch could start, the error
// wraps ErrInterrupted and nothing is cached.
func (c *downloadCoordinator) request(ctx context.Context, rawURL string) (*Document, error) {
	if out, ok := c.cached(rawURL); ok {
		return out.doc, out.err
	}

	v, err, shared := c.group.Do(rawURL, func() (any, error) {
		// A previous leader may have published between our cache miss and
		// joining the group.
		if out, ok := c.cached(rawURL); ok {
			return out, nil
		}
		out, err := c.fetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		c.cache.Store(rawURL, out)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("joined in-flight download", "url", rawURL)
	}
	out := v.(*downloadOutcome) //nolint:forcetypeassert // only *downloadOutcome is stored
	return out.doc, out.err
}

func (c *downloadCoordinator) fetch(ctx context.Context, rawURL string) (*downloadOutcome, error) {
	host := c.hostOf(rawURL)

	var (
		doc      *Document
		fetchErr error
	)
	err := c.throttle.WithPermit(ctx, host, func() error {
		c.logger.Debug("downloading", "url", rawURL, "host", host)
		doc, fetchErr = c.fetcher.Fetch(ctx, rawURL)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if fetchErr != nil {
		// A fetch aborted by cancellation says nothing about the URL.
		if ctx.Err() != nil {
			return nil, errors.Join(ErrInterrupted, fetchErr)
		}
		var te *TransportError
		if !errors.As(fetchErr, &te) {
			te = &TransportError{URL: rawURL, Err: fetchErr}
		}
		c.logger.Debug("download failed", "url", rawURL, "error", fetchErr)
		return &downloadOutcome{err: te}, nil
	}
	if doc == nil {
		return &downloadOutcome{err: &TransportError{URL: rawURL, Err: errors.New("fetcher returned no document")}}, nil
	}
	return &downloadOutcome{doc: doc}, nil
}

func (c *downloadCoordinator) cached(rawURL string) (*downloadOutcome, bool) {
	v, ok := c.cache.Load(rawURL)
	if !ok {
		return nil, false
	}
	return v.(*downloadOutcome), true //nolint:forcetypeassert // only *downloadOutcome is stored
}
