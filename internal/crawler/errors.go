package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned synchronously when a crawl is requested
	// with parameters that can never succeed, such as a max depth below 1.
	// No work is dispatched when this error is returned.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInterrupted reports that a run was cancelled before a node could be
	// processed. It is a run-level signal and never appears in Result.Errors.
	ErrInterrupted = errors.New("crawl interrupted")

	// ErrClosed is returned when work is submitted to a crawler (or one of its
	// worker pools) after Close has been called.
	ErrClosed = errors.New("crawler closed")
)

// TransportError records a failed download of a single URL.
// It is recorded in Result.Errors and does not abort the crawl.
type TransportError struct {
	// URL is the address that could not be downloaded.
	URL string

	// Err is the underlying failure reported by the Fetcher.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying fetch error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExtractionError records a document whose links could not be extracted.
// The node is reported as failed and nothing below it is traversed.
type ExtractionError struct {
	// URL is the address of the document that could not be processed.
	URL string

	// Err is the underlying failure reported by the LinkExtractor.
	Err error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract links from %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying extraction error.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}
