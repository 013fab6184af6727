package analytics

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/fleetpulse/fleetpulse/agent/internal/config"
)

const (
	apiKeyHeader    = "X-API-KEY"
	maxErrorBody    = 4 << 10
	retryBaseDelay  = 200 * time.Millisecond
	retryMaxDelay   = 2 * time.Second
	breakerInterval = time.Minute
)

// ErrCircuitOpen is returned without contacting the service while the
// circuit breaker is open.
var ErrCircuitOpen = errors.New("analytics: circuit open")

// APIError is a non-2xx response from the analytics service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("analytics: API error %d: %s", e.Status, e.Message)
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Client issues authenticated queries against the analytics service.
// It is safe for concurrent use; the seven domain queries of one collection
// share a single Client.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	attempts uint
	now      func() time.Time // injectable for deterministic tests
}

// New builds a Client for the resolved credentials. Every request carries the
// token in the X-API-KEY header and is bounded by cfg.Timeout.
func New(cfg config.AnalyticsConfig, creds config.Credentials) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	c := &Client{
		baseURL:  creds.BaseURL,
		http:     buildHTTPClient(cfg, creds.Token),
		limiter:  rate.NewLimiter(limit, max(cfg.Burst, 1)),
		attempts: cfg.RetryAttempts,
		now:      time.Now,
	}
	if c.attempts == 0 {
		c.attempts = 1
	}

	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = config.DefaultBreakerFailures
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "analytics",
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsOutage(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("analytics: circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// authRoundTripper injects the API key into every outgoing request.
type authRoundTripper struct {
	base  http.RoundTripper
	token string
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(apiKeyHeader, t.token)
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client with auth, TLS and timeout applied.
func buildHTTPClient(cfg config.AnalyticsConfig, token string) *http.Client {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base:  &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment},
			token: token,
		},
		Timeout: cfg.Timeout,
	}
}

// get issues a GET with query parameters and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.call(ctx, http.MethodGet, path, query, nil, out)
}

// post issues a POST with a JSON body and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodPost, path, nil, body, out)
}

// call runs one logical request through the rate limiter, the circuit
// breaker and the retry policy.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("analytics: rate limiter: %w", err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.withRetry(ctx, func() error {
			return c.roundTrip(ctx, method, path, query, body, out)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s %s", ErrCircuitOpen, method, path)
	}
	return err
}

// withRetry repeats fn up to c.attempts times for transient failures and
// returns the last underlying error.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	if c.attempts <= 1 {
		return fn()
	}

	var last error
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return retryDelay(n)
		}),
	)
	err := r.Do(func() error {
		last = fn()
		if last != nil && !isTransient(last) {
			return retry.Unrecoverable(last)
		}
		return last
	})
	if err != nil && last != nil {
		return last
	}
	return err
}

// roundTrip performs a single HTTP exchange.
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("analytics: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("analytics: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("analytics: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("analytics: decode %s response: %w", path, err)
	}
	return nil
}

// isTransient reports whether err is worth retrying: transport failures,
// timeouts, 429 and 5xx responses.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var syntaxErr *json.SyntaxError
	return !errors.As(err, &syntaxErr)
}

// countsAsOutage reports whether err should count toward opening the breaker.
// Client-side 4xx errors and caller cancellation say nothing about the
// service's availability.
func countsAsOutage(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// retryDelay is a truncated exponential backoff: 200ms, 400ms, 800ms … 2s.
func retryDelay(n uint) time.Duration {
	if n > 4 {
		return retryMaxDelay
	}
	d := retryBaseDelay << n
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	return d
}
