package types

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

var _ Response = (*ResponseMeta)(nil)

// Response interface contains general methods for retrieving response info.
type Response interface {
	// GetStatusCode returns response status code.
	GetStatusCode() int

	// GetReason return response status message
	// corresponding to the HTTP status code.
	GetReason() string

	// GetHeaders returns response headers.
	GetHeaders() http.Header

	// GetContent returns response content body.
	GetContent() []byte
}

// ResponseMeta holds a fully read response.
type ResponseMeta struct {
	StatusCode   int
	StatusReason string
	Headers      http.Header
	Content      []byte
}

func (r *ResponseMeta) GetStatusCode() int {
	return r.StatusCode
}

func (r *ResponseMeta) GetReason() string {
	return r.StatusReason
}

func (r *ResponseMeta) GetHeaders() http.Header {
	return r.Headers
}

func (r *ResponseMeta) GetContent() []byte {
	return r.Content
}

// IsSuccess reports a 2xx status code.
func IsSuccess(r Response) bool {
	return r.GetStatusCode() >= 200 && r.GetStatusCode() < 300
}

// DecodeJSON decodes the response body into v.
func DecodeJSON(r Response, v any) error {
	if err := json.Unmarshal(r.GetContent(), v); err != nil {
		return errors.Wrap(err, "couldn't decode response body")
	}

	return nil
}
