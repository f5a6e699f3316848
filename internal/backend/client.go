// Package backend is the typed REST client for the device polling backend.
// Every response is passed through internal/normalize before it leaves
// this package, so callers only see canonical records.
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

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 2048
	maxBody        = 16 << 20
)

// Method is the polling transport the backend uses to reach a device.
type Method string

const (
	MethodSNMP Method = "snmp"
	MethodCLI  Method = "cli"
)

// Valid reports whether m is a polling method the backend accepts.
func (m Method) Valid() bool {
	return m == MethodSNMP || m == MethodCLI
}

// ParseMethod converts user input into a Method. Matching ignores case
// and surrounding space.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	return m, m.Valid()
}

// HTTPError is returned for any non-2xx backend response.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("backend %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// StatusCode extracts the HTTP status from err when it wraps an *HTTPError.
func StatusCode(err error) (int, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status, true
	}
	return 0, false
}

// ErrNoRecord is returned when a single-record endpoint answers 2xx with a
// body that holds no object.
var ErrNoRecord = errors.New("backend returned no record")

// Config controls how the client reaches the backend.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64
	Burst     int
	HTTP      *http.Client
	Logger    *zap.Logger
	Observer  RequestObserver
}

// RequestObserver receives the outcome of every backend request. Status is
// zero when the request failed before a response arrived.
type RequestObserver interface {
	ObserveBackendRequest(path string, status int, elapsed time.Duration)
}

// Client talks to the polling backend over HTTP.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
	observer RequestObserver
}

// New constructs a Client. The base URL is required.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("backend base url is required")
	}
	parsed, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend base url %q: scheme must be http or https", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{baseURL: parsed, http: httpClient, logger: logger, observer: cfg.Observer}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// StreamURL derives the white-list alert socket address from the base URL.
func (c *Client) StreamURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/white_list/ws"
	u.RawQuery = ""
	return u.String()
}

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("backend rate limit: %w", err)
		}
	}

	// path is already escaped.
	endpoint, err := url.Parse(c.baseURL.String() + path)
	if err != nil {
		return nil, fmt.Errorf("build %s url: %w", path, err)
	}
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(path, 0, time.Since(start))
		return nil, fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.observe(path, resp.StatusCode, time.Since(start))

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	return data, nil
}

func (c *Client) observe(path string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveBackendRequest(path, status, elapsed)
	}
}
