package baas

import (
	"fmt"

	"github.com/pkg/errors"
)

// APIError is returned when the platform answers with an unexpected status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not
// an API error (a connectivity failure, for example).
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
