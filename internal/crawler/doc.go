// Package crawler implements a concurrent, depth-bounded web crawler.
//
// # Architecture
//
// A crawl run is a breadth-first traversal of the link graph rooted at one
// URL. Every URL reached at some depth becomes a Node. Nodes move through a
// two-stage pipeline backed by two fixed-size worker pools:
//
//	download pool: Fetcher.Fetch        (bounded per origin host)
//	extract pool:  LinkExtractor.Extract (unbounded per host)
//
// Extraction produces child nodes one level deeper, which are dispatched
// back into the download pool. Leaf nodes (depth == max depth) are
// downloaded but never extracted.
//
// # Components
//
//   - Node: traversal state for one URL at one depth, completed exactly once
//   - HostThrottle: per-host admission control built on weighted semaphores
//   - downloadCoordinator / extractCoordinator: coalesce concurrent requests
//     for the same URL and cache the outcome for the rest of the run
//   - Crawler: owns the worker pools and drives dispatch
//   - gather: walks the node tree level by level and builds the Result
//
// # Ordering
//
// Downloads and extractions complete in any order. Result.Downloaded is
// nevertheless reported in breadth-first discovery order because the
// collector walks the node tree, not the completion stream.
//
// # Usage
//
//	c, err := crawler.New(fetcher, extractor,
//	    crawler.WithDownloaders(8),
//	    crawler.WithExtractors(4),
//	    crawler.WithPerHost(2),
//	)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	result, err := c.Download(ctx, "https://example.com/", 3)
package crawler
