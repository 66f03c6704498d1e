package billing

import (
	"errors"
	"fmt"
)

// HTTPError is returned for any response outside the 2xx range.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
}

func (e *HTTPError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("http error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("http error: %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// IsHTTPError reports whether err is an *HTTPError with the given status.
// A zero status matches any HTTPError.
func IsHTTPError(err error, status int) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return status == 0 || httpErr.StatusCode == status
}
