package clients

import (
	"context"

	"github.com/mailoreply/smoketest/internal/scanner/types"
)

// HTTPClient is an interface that defines methods for sending HTTP requests.
type HTTPClient interface {
	// SendRequest sends a prepared request and returns the fully read
	// response. Non-2xx statuses are not errors.
	SendRequest(ctx context.Context, req *types.Request) (types.Response, error)
}
