package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// UserAgent is sent on every outbound request.
const UserAgent = "weather-ingest/1.0"

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

// DefaultBackoff retries five times starting at 500ms.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      5,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
}

var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var retryableMethods = map[string]bool{
	http.MethodGet:  true,
	http.MethodPost: true,
}

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker open")

	errRetryableStatus = errors.New("retryable status")
	errNoHTTPClient    = errors.New("http client not configured")
	errInvalidConfig   = errors.New("invalid backoff configuration")
)

// Client issues outbound requests with bounded retries, exponential backoff
// and a circuit breaker.
type Client struct {
	cfg     HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates a Client. name labels the circuit breaker. The breaker
// never trips within a single call's retry budget.
func NewClient(name string, cfg HTTPClientConfig) *Client {
	threshold := uint32(5)
	if n := cfg.Backoff.MaxRetries + 1; n > int(threshold) {
		threshold = uint32(n)
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > threshold
		},
	})
	return &Client{cfg: cfg, circuit: cb}
}

// Fetch issues a GET for baseURL with the given query parameters.
func (c *Client) Fetch(ctx context.Context, baseURL string, query url.Values) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, baseURL, query)
}

// Do executes the request, retrying retryable statuses and transport errors
// for GET and POST. When the retry budget is exhausted, or the breaker opens
// part way through, the last response received is returned; with no response
// at all the last error is. Non-retryable statuses are returned as-is. The
// caller owns the response body.
func (c *Client) Do(ctx context.Context, method, baseURL string, query url.Values) (*http.Response, error) {
	if c.cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if c.cfg.Backoff.MaxRetries < 0 || c.cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	target := withQuery(baseURL, query)
	maxRetries := c.cfg.Backoff.MaxRetries
	if !retryableMethods[method] {
		maxRetries = 0
	}

	// last is the most recent retryable response, kept open so it can be
	// returned if no later attempt does better.
	var last *http.Response

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			discard(last)
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			discard(last)
			return nil, err
		}
		req.Header.Set("User-Agent", UserAgent)
		req.Header.Set("Accept", "application/json")

		var resp *http.Response
		_, err = c.circuit.Execute(func() (interface{}, error) {
			r, execErr := c.cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			resp = r
			if retryableStatuses[r.StatusCode] {
				return nil, fmt.Errorf("%w: %d", errRetryableStatus, r.StatusCode)
			}
			return r, nil
		})

		if err == nil {
			discard(last)
			return resp, nil
		}

		// If circuit is open, stop retrying.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			if last != nil {
				return last, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}

		if resp != nil {
			discard(last)
			last = resp
		} else if ctx.Err() != nil {
			discard(last)
			return nil, err
		}

		if attempt >= maxRetries {
			if last != nil {
				return last, nil
			}
			return nil, err
		}

		timer := time.NewTimer(c.delay(attempt, resp))
		select {
		case <-ctx.Done():
			timer.Stop()
			discard(last)
			return nil, ctx.Err()
		case <-timer.C:
			// continue to next attempt
		}
	}
}

// delay is InitialInterval*2^attempt capped at MaxInterval. A Retry-After in
// seconds on the previous response takes precedence.
func (c *Client) delay(attempt int, resp *http.Response) time.Duration {
	b := c.cfg.Backoff
	d := b.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
	if resp != nil {
		if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs >= 0 {
			d = time.Duration(secs) * time.Second
		}
	}
	if b.MaxInterval > 0 && d > b.MaxInterval {
		d = b.MaxInterval
	}
	return d
}

func withQuery(baseURL string, query url.Values) string {
	if len(query) == 0 {
		return baseURL
	}
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + query.Encode()
}

func discard(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
