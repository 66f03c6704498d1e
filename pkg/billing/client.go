// Package billing is a thin JSON client for the pricing, subscription and
// credit endpoints of the quill API.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/quill-hq/quill/pkg/httpclient"
)

const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	AuthToken string
}

// RequestOptions describes a single call. Zero values mean GET, no body and no extra headers.
type RequestOptions struct {
	Method  string
	Body    any
	Headers map[string]string
}

// Observer is notified once per request. status is 0 when the transport failed.
type Observer func(method, path string, status int, elapsed time.Duration)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default resty transport.
func WithHTTPClient(hc httpclient.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithObserver installs a per-request hook.
func WithObserver(obs Observer) Option {
	return func(c *Client) { c.observer = obs }
}

// Client performs authenticated JSON requests against a base URL.
// It is safe for concurrent use.
type Client struct {
	baseURL  string
	token    atomic.Pointer[string]
	http     httpclient.Client
	observer Observer
}

// New builds a Client. The base URL is used verbatim as a prefix.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("billing: base url is required")
	}

	c := &Client{baseURL: base}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.NewRestyClient(0)
	}
	c.SetAuthToken(cfg.AuthToken)
	return c, nil
}

// SetAuthToken replaces the bearer token used by subsequent requests.
// An empty token removes the Authorization header.
func (c *Client) SetAuthToken(token string) {
	c.token.Store(&token)
}

// AuthToken returns the current token.
func (c *Client) AuthToken() string {
	if p := c.token.Load(); p != nil {
		return *p
	}
	return ""
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Request issues one call to baseURL+path. On a 2xx response the JSON body is
// decoded into out (which may be nil). Any other status yields *HTTPError and
// the body is left unread.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}

	req := httpclient.Request{
		Method:  method,
		URL:     c.baseURL + path,
		Headers: c.headers(opts.Headers),
	}
	if opts.Body != nil {
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		req.Body = json.RawMessage(payload)
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.observe(method, path, 0, start)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	status := resp.StatusCode()
	c.observe(method, path, status, start)

	if status < 200 || status > 299 {
		return &HTTPError{StatusCode: status, Method: method, Path: path}
	}

	body := bytes.TrimSpace(resp.Body())
	if out == nil {
		if len(body) > 0 && !json.Valid(body) {
			return fmt.Errorf("%s %s: response is not valid json", method, path)
		}
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// headers merges extra headers with the fixed ones. Content-Type and
// Authorization always take the client's values.
func (c *Client) headers(extra map[string]string) map[string]string {
	h := make(map[string]string, len(extra)+2)
	for k, v := range extra {
		if strings.EqualFold(k, headerContentType) || strings.EqualFold(k, headerAuthorization) {
			continue
		}
		h[k] = v
	}
	h[headerContentType] = contentTypeJSON
	if token := c.AuthToken(); token != "" {
		h[headerAuthorization] = "Bearer " + token
	}
	return h
}

func (c *Client) observe(method, path string, status int, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer(method, path, status, time.Since(start))
}
