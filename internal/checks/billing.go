package checks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mailoreply/smoketest/internal/db"
	"github.com/mailoreply/smoketest/internal/expect"
	"github.com/mailoreply/smoketest/internal/helpers"
	"github.com/mailoreply/smoketest/internal/scanner"
	"github.com/mailoreply/smoketest/internal/scanner/types"
)

const defaultFunctionsPath = "/.netlify/functions"

// paymentEndpoints lists the payment function routes; required ones must
// exist for the check to pass.
var paymentEndpoints = []struct {
	route    string
	required bool
}{
	{"create-checkout-session", true},
	{"create-portal-session", true},
	{"webhook", false},
}

func (s *suite) paymentCheck() *scanner.Check {
	return scanner.NewCheck(PaymentEndpoints, s.checkPaymentEndpoints)
}

func (s *suite) webhookCheck() *scanner.Check {
	return scanner.NewCheck(WorkflowWebhook, s.checkWorkflowWebhook)
}

func (s *suite) checkPaymentEndpoints(ctx context.Context, env *scanner.Env) *db.Result {
	functionsPath := s.Config.FunctionsPath
	if functionsPath == "" {
		functionsPath = defaultFunctionsPath
	}
	base := helpers.JoinURL(helpers.JoinURL(s.Config.AppURL, functionsPath), "stripe-api")

	details := make(map[string]any, len(paymentEndpoints))
	var missing []string

	for _, endpoint := range paymentEndpoints {
		req, err := types.NewRequest(http.MethodPost, helpers.JoinURL(base, endpoint.route)).
			WithJSON(map[string]any{"probe": true})
		if err != nil {
			return db.Fail(PaymentEndpoints, err.Error(), nil)
		}

		resp, err := s.HTTP.SendRequest(ctx, req)

		exists := false
		switch {
		case err != nil:
			details[endpoint.route] = map[string]any{"exists": false, "error": err.Error()}
		default:
			// Probes are rejected by the functions; anything but 404
			// proves the route is deployed.
			exists = resp.GetStatusCode() != http.StatusNotFound
			details[endpoint.route] = map[string]any{"exists": exists, "status_code": resp.GetStatusCode()}
		}

		if !exists && endpoint.required {
			missing = append(missing, endpoint.route)
		}
	}

	if len(missing) > 0 {
		return db.Fail(PaymentEndpoints, fmt.Sprintf("Payment endpoints not deployed: %s", strings.Join(missing, ", ")), details)
	}

	return db.Pass(PaymentEndpoints, "Payment endpoints are deployed", details)
}

func (s *suite) checkWorkflowWebhook(ctx context.Context, env *scanner.Env) *db.Result {
	payload := map[string]any{
		"event":     "smoke_test",
		"source":    "smoketest",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	req, err := types.NewRequest(http.MethodPost, s.Config.WorkflowWebhookURL).WithJSON(payload)
	if err != nil {
		return db.Fail(WorkflowWebhook, err.Error(), nil)
	}

	resp, err := s.HTTP.SendRequest(ctx, req)
	if err != nil {
		return db.Fail(WorkflowWebhook, fmt.Sprintf("Workflow webhook is not reachable: %v", err), expect.ErrorDetails(err))
	}

	if err := expect.Status(resp); err != nil {
		return db.Fail(WorkflowWebhook, fmt.Sprintf("Workflow webhook rejected the payload: %v", err), expect.ResponseDetails(resp))
	}

	return db.Pass(WorkflowWebhook, "Workflow webhook accepted the payload", map[string]any{
		"status_code": resp.GetStatusCode(),
	})
}
