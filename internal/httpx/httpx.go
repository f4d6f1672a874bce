// Package httpx is the JSON-over-HTTP plumbing shared by the backend clients.
// Transport failures and non-2xx statuses wrap protocol.ErrNetwork; bodies
// that do not decode wrap protocol.ErrMalformedResponse.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Abdullah1738/itheum-agent/protocol"
)

const (
	maxBodyBytes     = 4 << 20
	maxErrSnippetLen = 256
	defaultTimeout   = 30 * time.Second
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %s %s: http %d", protocol.ErrNetwork, e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s: %s %s: http %d: %s", protocol.ErrNetwork, e.Method, e.URL, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return protocol.ErrNetwork }

type Client struct {
	HTTP *http.Client
}

func New(httpClient *http.Client) *Client {
	return &Client{HTTP: httpClient}
}

var defaultHTTP = &http.Client{Timeout: defaultTimeout}

func (c *Client) httpClient() *http.Client {
	if c != nil && c.HTTP != nil {
		return c.HTTP
	}
	return defaultHTTP
}

func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	return c.Do(ctx, http.MethodGet, url, header, nil, out)
}

func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	return c.Do(ctx, http.MethodPost, url, h, bytes.NewReader(body), out)
}

// Do sends the request and decodes a JSON response into out (skipped when
// out is nil).
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", protocol.ErrNetwork, method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %s %s: read body: %w", protocol.ErrNetwork, method, url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, URL: url, Code: resp.StatusCode, Body: snippet(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s %s: %w", protocol.ErrMalformedResponse, method, url, err)
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrSnippetLen {
		s = s[:maxErrSnippetLen] + "..."
	}
	return s
}

// BaseURL trims trailing slashes and defaults a bare host to http.
func BaseURL(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "/")
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	return s
}
