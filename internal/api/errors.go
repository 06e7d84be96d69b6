package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotAuthenticated is returned when no usable access token exists
var ErrNotAuthenticated = errors.New("not authenticated, run 'egnyte auth login' first")

// Error is an API-level failure carrying the HTTP status
type Error struct {
	StatusCode int
	Message    string
	Path       string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("egnyte api: %d %s (%s)", e.StatusCode, e.Message, e.Path)
	}
	return fmt.Sprintf("egnyte api: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a remote 404
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsRateLimited reports whether err is a remote 429
func IsRateLimited(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// IsAuthError reports whether err is a remote 401 or 403
func IsAuthError(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}
