package checks

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/mailoreply/smoketest/internal/db"
	"github.com/mailoreply/smoketest/internal/expect"
	"github.com/mailoreply/smoketest/internal/helpers"
	"github.com/mailoreply/smoketest/internal/scanner"
	"github.com/mailoreply/smoketest/internal/scanner/types"
)

// spaMountID is the id of the element the single page application mounts
// into.
const spaMountID = "root"

func (s *suite) appChecks() []*scanner.Check {
	return []*scanner.Check{
		scanner.NewCheck(APIHealth, s.checkHealth),
		scanner.NewCheck(APIPing, s.checkPing),
		scanner.NewCheck(SettingsPage, s.checkSettingsPage),
	}
}

func (s *suite) get(ctx context.Context, path string) (types.Response, error) {
	return s.HTTP.SendRequest(ctx, types.NewRequest(http.MethodGet, helpers.JoinURL(s.Config.AppURL, path)))
}

func (s *suite) checkHealth(ctx context.Context, env *scanner.Env) *db.Result {
	resp, err := s.get(ctx, "/health")
	if err != nil {
		return db.Fail(APIHealth, fmt.Sprintf("Health endpoint is not reachable: %v", err), expect.ErrorDetails(err))
	}

	if err := expect.Status(resp, http.StatusOK); err != nil {
		return db.Fail(APIHealth, fmt.Sprintf("Health endpoint failed: %v", err), expect.ResponseDetails(resp))
	}

	var doc map[string]any
	if err := types.DecodeJSON(resp, &doc); err != nil {
		return db.Fail(APIHealth, "Health endpoint did not return a JSON object", expect.ResponseDetails(resp))
	}

	if missing := expect.MissingFields(doc, "status", "service", "timestamp"); len(missing) > 0 {
		return db.Fail(APIHealth, fmt.Sprintf("Health response is missing fields: %s", strings.Join(missing, ", ")),
			map[string]any{"missing": missing})
	}

	ok, err := expect.JQBool(ctx, resp.GetContent(), `.status == "ok"`)
	if err != nil {
		return db.Fail(APIHealth, err.Error(), expect.ResponseDetails(resp))
	}
	if !ok {
		return db.Fail(APIHealth, fmt.Sprintf("Health status not OK: %v", doc["status"]), map[string]any{
			"status":  doc["status"],
			"service": doc["service"],
		})
	}

	return db.Pass(APIHealth, "Health endpoint reports status ok", map[string]any{
		"service": doc["service"],
	})
}

func (s *suite) checkPing(ctx context.Context, env *scanner.Env) *db.Result {
	resp, err := s.get(ctx, "/api/ping")
	if err != nil {
		return db.Fail(APIPing, fmt.Sprintf("Ping endpoint is not reachable: %v", err), expect.ErrorDetails(err))
	}

	if err := expect.Status(resp, http.StatusOK); err != nil {
		return db.Fail(APIPing, fmt.Sprintf("Ping endpoint failed: %v", err), expect.ResponseDetails(resp))
	}

	var doc map[string]any
	if err := types.DecodeJSON(resp, &doc); err != nil {
		return db.Fail(APIPing, "Ping endpoint did not return a JSON object", expect.ResponseDetails(resp))
	}

	message, ok := doc["message"].(string)
	if !ok || message == "" {
		return db.Fail(APIPing, "Ping response has no message", expect.ResponseDetails(resp))
	}

	return db.Pass(APIPing, fmt.Sprintf("Ping endpoint answered: %s", helpers.Truncate(message, 80)), nil)
}

func (s *suite) checkSettingsPage(ctx context.Context, env *scanner.Env) *db.Result {
	resp, err := s.get(ctx, "/settings")
	if err != nil {
		return db.Fail(SettingsPage, fmt.Sprintf("Settings page is not reachable: %v", err), expect.ErrorDetails(err))
	}

	if err := expect.Status(resp, http.StatusOK); err != nil {
		return db.Fail(SettingsPage, fmt.Sprintf("Settings page failed: %v", err), expect.ResponseDetails(resp))
	}

	found, err := hasElementWithID(resp.GetContent(), spaMountID)
	if err != nil {
		return db.Fail(SettingsPage, fmt.Sprintf("Settings page is not valid HTML: %v", err), expect.ResponseDetails(resp))
	}
	if !found {
		return db.Fail(SettingsPage, fmt.Sprintf("Settings page has no element with id %q", spaMountID), expect.ResponseDetails(resp))
	}

	return db.Pass(SettingsPage, "Settings page is served with the application mount point", map[string]any{
		"content_type": resp.GetHeaders().Get("Content-Type"),
	})
}

func hasElementWithID(document []byte, id string) (bool, error) {
	root, err := html.Parse(bytes.NewReader(document))
	if err != nil {
		return false, err
	}

	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				if attr.Key == "id" && attr.Val == id {
					return true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	return walk(root), nil
}
