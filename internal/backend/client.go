package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jpalmerr/billpoll/billing"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits shared by all sessions polling the backend
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = rate.Limit(10)
	defaultBurst     = 5
)

// StatusError is returned for non-2xx responses other than 402.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Client is a billing.Backend backed by HTTP.
//
// Client uses per-request timeouts via context rather than a global timeout.
// Response bodies are limited to 1MB.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	headers    map[string]string
	timeout    time.Duration
	limiter    *rate.Limiter
}

var _ billing.Backend = (*Client)(nil)

// Option configures a [Client].
type Option func(*Client) error

// WithHeaders sets headers sent with every request, for example an
// Authorization token.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) error {
		for k, v := range headers {
			if strings.TrimSpace(k) == "" {
				return errors.New("header name cannot be empty")
			}
			c.headers[k] = v
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout. Defaults to 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithRateLimit sets the sustained request rate and burst size.
// Defaults to 10 requests per second with a burst of 5. A non-positive
// rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) error {
		limit := rate.Limit(rps)
		if rps <= 0 {
			limit = rate.Inf
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// New creates a Client for the billing server at baseURL.
//
// The client is configured with connection pooling limits:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("base URL must have a host")
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		headers: make(map[string]string),
		timeout: defaultTimeout,
		limiter: rate.NewLimiter(defaultRateLimit, defaultBurst),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// TeamSubscriptions implements billing.Backend.
func (c *Client) TeamSubscriptions(ctx context.Context) ([]billing.TeamSubscription, error) {
	var out []billing.TeamSubscription
	if err := c.do(ctx, http.MethodGet, "/api/team-subscriptions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TeamSlots implements billing.Backend.
func (c *Client) TeamSlots(ctx context.Context) ([]billing.Slot, error) {
	var out []billing.Slot
	if err := c.do(ctx, http.MethodGet, "/api/team-slots", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type addSlotsRequest struct {
	Quantity int `json:"quantity"`
}

// AddSlots implements billing.Backend.
func (c *Client) AddSlots(ctx context.Context, teamSubscriptionID string, quantity int) error {
	path := "/api/team-subscriptions/" + url.PathEscape(teamSubscriptionID) + "/slots"
	return c.do(ctx, http.MethodPost, path, addSlotsRequest{Quantity: quantity}, nil)
}

type checkoutRequest struct {
	PlanID   string `json:"plan_id"`
	Quantity int    `json:"quantity"`
}

// Checkout implements billing.Backend.
func (c *Client) Checkout(ctx context.Context, planID string, quantity int) (billing.HostedPage, error) {
	var page billing.HostedPage
	if err := c.do(ctx, http.MethodPost, "/api/checkout", checkoutRequest{PlanID: planID, Quantity: quantity}, &page); err != nil {
		return billing.HostedPage{}, err
	}
	return page, nil
}

type paymentUIResponse struct {
	Show bool `json:"show"`
}

// ShowPaymentUI implements billing.Backend.
func (c *Client) ShowPaymentUI(ctx context.Context) (bool, error) {
	var out paymentUIResponse
	if err := c.do(ctx, http.MethodGet, "/api/payment-ui", nil, &out); err != nil {
		return false, err
	}
	return out.Show, nil
}

// AccountStatement implements billing.Backend.
func (c *Client) AccountStatement(ctx context.Context) (billing.AccountStatement, error) {
	var out billing.AccountStatement
	if err := c.do(ctx, http.MethodGet, "/api/account-statement", nil, &out); err != nil {
		return billing.AccountStatement{}, err
	}
	return out, nil
}

type errorResponse struct {
	Message string `json:"message"`
}

// do sends one JSON request and decodes the response into out, if non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	target := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: request failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response body: %w", method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		var e errorResponse
		if err := json.Unmarshal(data, &e); err != nil || e.Message == "" {
			e.Message = strings.TrimSpace(string(data))
		}
		return &billing.PaymentError{Message: e.Message}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

// Close closes all idle connections in the client's connection pool.
// Safe to call multiple times; the client remains usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
