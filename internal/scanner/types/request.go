package types

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Request describes one call to an external collaborator.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string

	Body []byte
}

func NewRequest(method, url string) *Request {
	return &Request{
		Method:  method,
		URL:     url,
		Headers: make(map[string]string),
	}
}

// WithHeader sets a request header and returns the request.
func (r *Request) WithHeader(name, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[name] = value
	return r
}

// WithJSON encodes v as the request body and sets the content type.
func (r *Request) WithJSON(v any) (*Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't encode request body")
	}

	r.Body = body
	return r.WithHeader("Content-Type", "application/json"), nil
}

// HTTPRequest builds the *http.Request for r.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't create request")
	}

	for name, value := range r.Headers {
		req.Header.Set(name, value)
	}

	return req, nil
}
