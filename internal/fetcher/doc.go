// Package fetcher downloads pages over HTTP for the crawler.
//
// HTTPFetcher implements crawler.Fetcher. It sends a configurable
// User-Agent, injects per-host headers, caps the number of body bytes
// read, converts text bodies to UTF-8 and stamps each document with a
// SHA3-256 digest. Responses outside the 2xx range are returned as
// *StatusError so the crawler records them as transport failures.
//
// Requests can be routed through a SOCKS5 proxy (for example a local Tor
// daemon) by building the client with NewClient.
package fetcher
