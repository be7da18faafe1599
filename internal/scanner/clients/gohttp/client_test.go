package gohttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailoreply/smoketest/internal/config"
	"github.com/mailoreply/smoketest/internal/scanner/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Get("/headers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Env", r.Header.Get("X-Env"))
		w.Header().Set("X-Seen-Extra", r.Header.Get("X-Extra"))
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	})
	r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return srv
}

func TestSendRequestHeaders(t *testing.T) {
	srv := newTestServer(t)

	client, err := NewClient(&config.Config{
		Workers:     1,
		HTTPHeaders: map[string]string{"X-Env": "config", "X-Extra": "config"},
		AddHeader:   "X-Extra: flag",
	})
	require.NoError(t, err)

	req := types.NewRequest(http.MethodGet, srv.URL+"/headers").WithHeader("X-Env", "request")

	resp, err := client.SendRequest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.GetStatusCode())
	assert.Equal(t, "OK", resp.GetReason())
	assert.Equal(t, "request", resp.GetHeaders().Get("X-Seen-Env"))
	assert.Equal(t, "flag", resp.GetHeaders().Get("X-Seen-Extra"))
}

func TestSendRequestJSONBody(t *testing.T) {
	srv := newTestServer(t)

	client, err := NewClient(&config.Config{Workers: 1})
	require.NoError(t, err)

	req, err := types.NewRequest(http.MethodPost, srv.URL+"/echo").WithJSON(map[string]string{"event": "smoke"})
	require.NoError(t, err)

	resp, err := client.SendRequest(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, types.IsSuccess(resp))

	var decoded map[string]string
	require.NoError(t, types.DecodeJSON(resp, &decoded))
	assert.Equal(t, "smoke", decoded["event"])
}

func TestSendRequestTimeout(t *testing.T) {
	srv := newTestServer(t)

	client, err := NewClient(&config.Config{Workers: 1, RequestTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.SendRequest(context.Background(), types.NewRequest(http.MethodGet, srv.URL+"/slow"))
	assert.Error(t, err)
}

func TestNewClientBadProxy(t *testing.T) {
	_, err := NewClient(&config.Config{Proxy: "://bad"})
	assert.Error(t, err)
}
