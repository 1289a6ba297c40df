package errors

import (
	stdErrors "errors"
	"fmt"
)

// HTTPStatusError represents a non-2xx response from an upstream API
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status from %s (HTTP %d)", e.URL, e.StatusCode)
}

// NewHTTPStatusError creates a new HTTPStatusError for the given URL and status
func NewHTTPStatusError(url string, statusCode int) *HTTPStatusError {
	return &HTTPStatusError{URL: url, StatusCode: statusCode}
}

// IsHTTPStatusError reports whether err is an HTTPStatusError (even when wrapped).
func IsHTTPStatusError(err error) bool {
	var statusErr *HTTPStatusError
	return stdErrors.As(err, &statusErr)
}
