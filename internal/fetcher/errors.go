package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidProxyAddress is returned when a proxy address is not in
// "host:port" form.
var ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

// StatusError is returned for responses whose status code is not 2xx.
type StatusError struct {
	// Code is the HTTP status code.
	Code int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}
