package alabites

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound indicates the backend has no record matching the query.
var ErrNotFound = errors.New("alabites: resource not found")

// APIError captures a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("alabites: %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("alabites: %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Temporary reports whether the failure is worth retrying.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}
