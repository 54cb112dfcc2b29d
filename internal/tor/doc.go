// Package tor runs an embedded Tor daemon for crawls that should leave
// through the Tor network.
//
// The daemon is started with tornago and exposes a SOCKS5 listener on a
// port chosen by the OS. Its address is handed to the HTTP fetcher like any
// other SOCKS5 proxy, so nothing else in the crawl knows about Tor. Onion
// services are reachable this way as well as clearnet hosts.
package tor
