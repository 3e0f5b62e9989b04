package fetch

import (
	"errors"
	"fmt"
)

// ErrBrowserClosed is returned by BrowserFetcher after Close.
var ErrBrowserClosed = errors.New("browser fetcher is closed")

// TransportError reports that no response was obtained for a URL: DNS, connect,
// TLS, timeout, proxy or body read failures, or a failed browser navigation.
// A response with an error status code is not a TransportError.
type TransportError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
