package restapi

import (
	"errors"
	"fmt"
)

// APIError is a non-2xx response from a remote API. It carries the full
// request and response detail so failures in unattended runs can be
// diagnosed from logs.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsClientError reports whether err is an *APIError with a 4xx status.
func IsClientError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
