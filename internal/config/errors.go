package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when no root URL was given.
	ErrNoTarget = errors.New("no target specified: provide at least one URL")

	// ErrInvalidTarget is returned when a root URL is not an absolute
	// http or https URL.
	ErrInvalidTarget = errors.New("invalid target: must be an absolute http or https URL")

	// ErrInvalidDepth is returned when the crawl depth is below 1.
	ErrInvalidDepth = errors.New("invalid depth: must be at least 1")

	// ErrInvalidDownloaders is returned when the download worker count is
	// not positive.
	ErrInvalidDownloaders = errors.New("invalid downloaders: must be positive")

	// ErrInvalidExtractors is returned when the extract worker count is not
	// positive.
	ErrInvalidExtractors = errors.New("invalid extractors: must be positive")

	// ErrInvalidPerHost is returned when the per-host download limit is not
	// positive.
	ErrInvalidPerHost = errors.New("invalid per-host limit: must be positive")

	// ErrInvalidBatchSize is returned when the number of roots crawled at
	// once is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are given.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the body size limit is negative.
	// Zero selects the default.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidProxyAddress is returned when the SOCKS5 proxy address is
	// not in "host:port" form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected host:port")

	// ErrConflictingProxies is returned when both --tor and --proxy are
	// given.
	ErrConflictingProxies = errors.New("conflicting proxies: --tor and --proxy cannot be used together")

	// ErrInvalidTorStartupTimeout is returned when the embedded Tor
	// bootstrap timeout is not positive.
	ErrInvalidTorStartupTimeout = errors.New("invalid Tor startup timeout: must be positive")
)
