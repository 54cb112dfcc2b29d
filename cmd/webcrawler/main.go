// Package main provides the entry point for the webcrawler CLI.
//
// webcrawler downloads every page reachable from one or more root URLs up
// to a depth limit, with bounded concurrency per host, and reports what was
// downloaded and what failed.
//
// Usage:
//
//	webcrawler crawl <url>...
//	webcrawler compare <url>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
