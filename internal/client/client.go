// Package client provides the HTTP client for the coffee-chain backend API:
// bearer auth, typed errors, and session teardown on 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/metrics"
)

// DefaultTimeout bounds every backend call. Expiry fails the call like any
// other network error; nothing is retried.
const DefaultTimeout = 10 * time.Second

// Client talks to the backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu             sync.RWMutex
	authToken      string
	onUnauthorized func()
}

// Config holds client configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	AuthToken string

	// HTTPClient overrides the default client. Portal sessions share one so
	// they share a connection pool.
	HTTPClient *http.Client

	// OnUnauthorized runs after any authenticated call gets a 401.
	OnUnauthorized func()
}

// NewHTTPClient builds the pooled HTTP client used for backend calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &logging.Transport{Base: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		}},
	}
}

// New creates a new client.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = NewHTTPClient(cfg.Timeout)
	}
	return &Client{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:     hc,
		authToken:      cfg.AuthToken,
		onUnauthorized: cfg.OnUnauthorized,
	}
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the current bearer token.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// SetUnauthorizedHandler replaces the 401 handler.
func (c *Client) SetUnauthorizedHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// applyAuth adds the auth header to a request if a token is set and
// returns the token it sent.
func (c *Client) applyAuth(req *http.Request) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	return c.authToken
}

// unauthorized drops the token and runs the 401 handler, unless the token
// was replaced while the rejected request was in flight.
func (c *Client) unauthorized(sent string) bool {
	c.mu.Lock()
	if sent == "" || c.authToken != sent {
		c.mu.Unlock()
		return false
	}
	c.authToken = ""
	fn := c.onUnauthorized
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	return true
}

// request describes one backend call.
type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	json        any
	body        io.Reader
	contentType string
	header      http.Header

	// anonymous calls (login) neither send the token nor tear the session
	// down on 401.
	anonymous bool
}

// do executes r and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, r, out)
	metrics.RecordAPICall(r.op, outcome(err), time.Since(start))
	return err
}

func (c *Client) roundTrip(ctx context.Context, r request, out any) error {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	body := r.body
	contentType := r.contentType
	if r.json != nil {
		data, err := json.Marshal(r.json)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", r.op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("%s: %w", r.op, err)
	}
	for k, v := range r.header {
		req.Header[k] = v
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	var sent string
	if !r.anonymous {
		sent = c.applyAuth(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &APIError{Op: r.op, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(r.op, resp)
		if resp.StatusCode == http.StatusUnauthorized && !r.anonymous {
			if c.unauthorized(sent) {
				logging.WithContext(ctx).Warn("backend rejected token, tearing session down",
					logging.String("op", r.op))
			} else {
				logging.WithContext(ctx).Debug("ignoring 401 for a replaced token",
					logging.String("op", r.op))
			}
		}
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", r.op, err)
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return KindOf(err).String()
}
