// Package kuma provides access to the public status page API of an Uptime
// Kuma server.
package kuma

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const maxResponseSize = 16 << 20

// Interface is the interface of a status page API client. Responses are
// returned undecoded, decoding is up to the caller.
type Interface interface {
	// StatusPage fetches the status page with slug.
	StatusPage(ctx context.Context, slug string) ([]byte, error)

	// Heartbeats fetches the heartbeat lists and uptimes of the monitors
	// shown on the status page with slug.
	Heartbeats(ctx context.Context, slug string) ([]byte, error)
}

// StatusError is returned for responses with a non-2xx status code.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: http %d", e.URL, e.Code)
}

// Client is a status page API client.
type Client struct {
	baseURL *url.URL
	client  *http.Client
	timeout time.Duration
}

// NewClient creates a new *Client for the server at serverURL. Each request
// is bound to timeout in addition to the caller's context.
func NewClient(serverURL string, timeout time.Duration) (*Client, error) {
	baseURL, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid server url %q", serverURL)
	}

	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, errors.Errorf("server url %q must use http or https", serverURL)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Transport: transport},
		timeout: timeout,
	}

	return c, nil
}

// StatusPage implements Interface.
func (c *Client) StatusPage(ctx context.Context, slug string) ([]byte, error) {
	return c.get(ctx, "/api/status-page/"+url.PathEscape(slug))
}

// Heartbeats implements Interface.
func (c *Client) Heartbeats(ctx context.Context, slug string) ([]byte, error) {
	return c.get(ctx, "/api/status-page/heartbeat/"+url.PathEscape(slug))
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := c.baseURL.String() + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, URL: u}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read response of %s", path)
	}

	return body, nil
}
