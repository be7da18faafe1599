package gohttp

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mailoreply/smoketest/internal/config"
	"github.com/mailoreply/smoketest/internal/helpers"
	"github.com/mailoreply/smoketest/internal/scanner/clients"
	"github.com/mailoreply/smoketest/internal/scanner/types"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxRedirects          = 10

	// responses larger than this are cut; checks only look at small JSON
	// documents and page heads.
	maxBodySize = 4 << 20
)

var _ clients.HTTPClient = (*Client)(nil)

type Client struct {
	client  *http.Client
	headers map[string]string
}

func NewClient(cfg *config.Config) (*Client, error) {
	tr := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: !cfg.TLSVerify},
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        cfg.Workers * 2,
		MaxIdleConnsPerHost: cfg.Workers * 2, // net.http hardcodes DefaultMaxIdleConnsPerHost to 2!
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't parse proxy URL")
		}

		tr.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	client := &http.Client{
		Transport: tr,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return errors.New("max redirect number exceeded")
			}
			return nil
		},
	}

	configuredHeaders := helpers.DeepCopyMap(cfg.HTTPHeaders)

	customHeader := strings.SplitN(cfg.AddHeader, ":", 2)
	if len(customHeader) > 1 {
		header := strings.TrimSpace(customHeader[0])
		value := strings.TrimSpace(customHeader[1])
		configuredHeaders[header] = value
	}

	return &Client{
		client:  client,
		headers: configuredHeaders,
	}, nil
}

// SendRequest sends req. Configured headers are applied first, so headers
// set on the request itself take precedence.
func (c *Client) SendRequest(ctx context.Context, req *types.Request) (types.Response, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	for header, value := range c.headers {
		if httpReq.Header.Get(header) == "" {
			httpReq.Header.Set(header, value)
		}
	}

	if host, ok := c.headers["Host"]; ok {
		httpReq.Host = host
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "sending http request")
	}

	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}

	reasonIndex := strings.Index(resp.Status, " ")
	reason := resp.Status[reasonIndex+1:]

	response := &types.ResponseMeta{
		StatusCode:   resp.StatusCode,
		StatusReason: reason,
		Headers:      resp.Header,
		Content:      bodyBytes,
	}

	return response, nil
}
