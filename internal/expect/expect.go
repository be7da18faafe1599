// Package expect holds the assertions shared by checks: status codes,
// required fields, jq expressions over JSON answers and graduated scores.
package expect

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/mailoreply/smoketest/internal/helpers"
	"github.com/mailoreply/smoketest/internal/scanner/clients/baas"
	"github.com/mailoreply/smoketest/internal/scanner/types"
)

// ResponseDetails describes a response for a result: the status code and
// the beginning of the body.
func ResponseDetails(resp types.Response) map[string]any {
	if resp == nil {
		return map[string]any{}
	}

	return map[string]any{
		"status_code": resp.GetStatusCode(),
		"response":    helpers.Truncate(string(resp.GetContent()), helpers.DefaultTruncateLength),
	}
}

// ErrorDetails describes a failed collaborator call. Platform errors carry
// their status code and response body.
func ErrorDetails(err error) map[string]any {
	details := map[string]any{"error": err.Error()}

	var apiErr *baas.APIError
	if errors.As(err, &apiErr) {
		details["status_code"] = apiErr.StatusCode
		details["response"] = apiErr.Body
	}

	return details
}

// Status returns an error unless the response status is one of codes.
// Without codes any 2xx status is accepted.
func Status(resp types.Response, codes ...int) error {
	if len(codes) == 0 {
		if types.IsSuccess(resp) {
			return nil
		}
		return errors.Errorf("unexpected status code %d", resp.GetStatusCode())
	}

	for _, code := range codes {
		if resp.GetStatusCode() == code {
			return nil
		}
	}

	return errors.Errorf("unexpected status code %d, expected %v", resp.GetStatusCode(), codes)
}

// MissingFields returns the names of fields absent from doc, sorted.
func MissingFields(doc map[string]any, fields ...string) []string {
	var missing []string
	for _, f := range fields {
		if _, ok := doc[f]; !ok {
			missing = append(missing, f)
		}
	}

	sort.Strings(missing)
	return missing
}

// Equal returns an error describing the mismatch when got != want.
func Equal[T comparable](what string, got, want T) error {
	if got != want {
		return fmt.Errorf("%s mismatch: expected %v, got %v", what, want, got)
	}
	return nil
}
