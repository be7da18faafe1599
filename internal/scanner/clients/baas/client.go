package baas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/mailoreply/smoketest/internal/helpers"
	"github.com/mailoreply/smoketest/internal/scanner/clients"
	"github.com/mailoreply/smoketest/internal/scanner/types"
)

const (
	restPath = "/rest/v1"
	authPath = "/auth/v1"
)

// Credentials select the key a request is made with. APIKey is always
// sent; Bearer defaults to APIKey when empty.
type Credentials struct {
	APIKey string
	Bearer string
}

// Client talks to the REST, auth and RPC endpoints of the platform.
type Client struct {
	http clients.HTTPClient

	baseURL    string
	anonKey    string
	serviceKey string
}

func NewClient(httpClient clients.HTTPClient, baseURL, anonKey, serviceKey string) *Client {
	return &Client{
		http:       httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		anonKey:    anonKey,
		serviceKey: serviceKey,
	}
}

// Anon returns the credentials of an unauthenticated client.
func (c *Client) Anon() Credentials {
	return Credentials{APIKey: c.anonKey}
}

// User returns the credentials of a signed in user.
func (c *Client) User(accessToken string) Credentials {
	return Credentials{APIKey: c.anonKey, Bearer: accessToken}
}

// Service returns service role credentials. ok is false when no service
// key is configured.
func (c *Client) Service() (creds Credentials, ok bool) {
	if c.serviceKey == "" {
		return Credentials{}, false
	}
	return Credentials{APIKey: c.serviceKey}, true
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(method, path string, query url.Values, creds Credentials) *types.Request {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	bearer := creds.Bearer
	if bearer == "" {
		bearer = creds.APIKey
	}

	return types.NewRequest(method, u).
		WithHeader("apikey", creds.APIKey).
		WithHeader("Authorization", "Bearer "+bearer).
		WithHeader("Accept", "application/json")
}

// do sends req and turns any non-2xx status into an *APIError.
func (c *Client) do(ctx context.Context, req *types.Request) (types.Response, error) {
	resp, err := c.http.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	if !types.IsSuccess(resp) {
		return resp, &APIError{
			StatusCode: resp.GetStatusCode(),
			Body:       helpers.Truncate(string(resp.GetContent()), helpers.DefaultTruncateLength),
		}
	}

	return resp, nil
}

// Ping requests the REST root.
func (c *Client) Ping(ctx context.Context) (types.Response, error) {
	return c.do(ctx, c.newRequest(http.MethodGet, restPath+"/", nil, c.Anon()))
}

// Probe requests one row of table and returns the status code whatever it
// is. Only connectivity failures are returned as errors.
func (c *Client) Probe(ctx context.Context, creds Credentials, table string) (int, error) {
	query := url.Values{"limit": []string{"1"}}

	resp, err := c.http.SendRequest(ctx, c.newRequest(http.MethodGet, restPath+"/"+table, query, creds))
	if err != nil {
		return 0, err
	}

	return resp.GetStatusCode(), nil
}

// Select returns the rows of table matching query, e.g.
// url.Values{"id": {"eq.42"}}.
func (c *Client) Select(ctx context.Context, creds Credentials, table string, query url.Values) ([]map[string]any, error) {
	resp, err := c.do(ctx, c.newRequest(http.MethodGet, restPath+"/"+table, query, creds))
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := types.DecodeJSON(resp, &rows); err != nil {
		return nil, err
	}

	return rows, nil
}

// Insert writes row into table and returns the stored representation.
// With upsert set, an existing row with the same key is updated instead.
func (c *Client) Insert(ctx context.Context, creds Credentials, table string, row any, upsert bool) ([]map[string]any, error) {
	prefer := "return=representation"
	if upsert {
		prefer += ",resolution=merge-duplicates"
	}

	req, err := c.newRequest(http.MethodPost, restPath+"/"+table, nil, creds).
		WithHeader("Prefer", prefer).
		WithJSON(row)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if len(resp.GetContent()) == 0 {
		return rows, nil
	}
	if err := types.DecodeJSON(resp, &rows); err != nil {
		return nil, err
	}

	return rows, nil
}

// Update applies patch to the rows of table matching query and returns the
// updated rows. An empty query is refused like in Delete.
func (c *Client) Update(ctx context.Context, creds Credentials, table string, query url.Values, patch any) ([]map[string]any, error) {
	if len(query) == 0 {
		return nil, errors.Errorf("refusing to update %s without a filter", table)
	}

	req, err := c.newRequest(http.MethodPatch, restPath+"/"+table, query, creds).
		WithHeader("Prefer", "return=representation").
		WithJSON(patch)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if len(resp.GetContent()) == 0 {
		return rows, nil
	}
	if err := types.DecodeJSON(resp, &rows); err != nil {
		return nil, err
	}

	return rows, nil
}

// Delete removes the rows of table matching query. An empty query is
// refused so that a bug cannot wipe a table.
func (c *Client) Delete(ctx context.Context, creds Credentials, table string, query url.Values) error {
	if len(query) == 0 {
		return errors.Errorf("refusing to delete from %s without a filter", table)
	}

	_, err := c.do(ctx, c.newRequest(http.MethodDelete, restPath+"/"+table, query, creds))
	return err
}

// RPC calls a stored procedure and returns its raw JSON answer.
func (c *Client) RPC(ctx context.Context, creds Credentials, function string, args any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}

	req, err := c.newRequest(http.MethodPost, restPath+"/rpc/"+function, nil, creds).WithJSON(args)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	return json.RawMessage(resp.GetContent()), nil
}

// Eq builds a PostgREST equality filter.
func Eq(column, value string) url.Values {
	return url.Values{column: []string{"eq." + value}}
}
