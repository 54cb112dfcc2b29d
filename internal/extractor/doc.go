// Package extractor finds the outgoing links of downloaded HTML pages.
//
// HTMLExtractor implements crawler.LinkExtractor on top of the
// golang.org/x/net/html tokenizer-backed parser. Links come from <a href>
// elements, are resolved against the page's final URL (or its <base>
// element), lose their fragment, and are returned in document order with
// duplicates preserved. Only http and https targets are kept.
//
// Optional filters restrict the crawl to the page's own host and apply
// glob ignore/follow patterns to link paths:
//
//	ex := extractor.New(
//		extractor.WithSameHost(true),
//		extractor.WithIgnorePatterns([]string{"/logout*", "*.pdf"}),
//	)
package extractor
