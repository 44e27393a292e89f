// Package client provides the HTTP client used to talk to the GetOrganized
// (SharePoint) taxonomy endpoints, with NTLM authentication, request pacing
// and typed errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/Azure/go-ntlmssp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for remote API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termsync_http_requests_total",
		Help: "Total remote API requests by path and status",
	}, []string{"path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "termsync_http_request_duration_seconds",
		Help:    "Remote API request duration in seconds by path",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"path"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termsync_http_errors_total",
		Help: "Total remote API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

const contentTypeJSON = "application/json; charset=UTF-8"

var formDigestPattern = regexp.MustCompile(`formDigestValue":"([^"]+)"`)

// Config holds the client configuration.
type Config struct {
	// Username and Password are sent through NTLM negotiation.
	Username string
	Password string

	// Timeout for a single request (default: 60s).
	Timeout time.Duration

	// RateLimit is the maximum sustained requests per second (0 disables pacing).
	RateLimit float64

	// RateBurst is the maximum burst size when RateLimit is set.
	RateBurst int

	// UserAgent header sent with every request.
	UserAgent string

	// Transport is the underlying round tripper (default: http.DefaultTransport).
	// NTLM negotiation is always layered on top of it.
	Transport http.RoundTripper
}

// DefaultConfig returns a configuration with the timeouts the remote system expects.
func DefaultConfig(username, password string) Config {
	return Config{
		Username:  username,
		Password:  password,
		Timeout:   60 * time.Second,
		RateLimit: 10,
		RateBurst: 5,
		UserAgent: "go-term-sync/1.0",
	}
}

// Client performs authenticated requests against the remote taxonomy API.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: ntlmssp.Negotiator{RoundTripper: base},
		},
		limiter: limiter,
		config:  cfg,
		logger:  logger.With().Str("component", "go-client").Logger(),
	}, nil
}

// Post sends a POST request and returns the body of a 2xx response.
// A nil body sends an empty request. Any other outcome is a *TransportError.
func (c *Client) Post(ctx context.Context, rawURL string, headers map[string]string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req)
}

// PostJSON sends a POST request and decodes the JSON response into out.
// Malformed bodies are reported as *DecodeError.
func (c *Client) PostJSON(ctx context.Context, rawURL string, headers map[string]string, body, out any) error {
	data, err := c.Post(ctx, rawURL, headers, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{URL: rawURL, Err: err}
	}
	return nil
}

// FetchPage retrieves one page of a paginated listing.
func (c *Client) FetchPage(ctx context.Context, rawURL string) ([]byte, error) {
	return c.Post(ctx, rawURL, nil, nil)
}

// FormDigest obtains the request digest token that mutating calls must carry
// in the X-RequestDigest header.
func (c *Client) FormDigest(ctx context.Context, rawURL string) (string, error) {
	data, err := c.Post(ctx, rawURL, map[string]string{"Content-Type": contentTypeJSON}, nil)
	if err != nil {
		return "", &AuthError{URL: rawURL, Err: err}
	}

	m := formDigestPattern.FindSubmatch(data)
	if m == nil {
		return "", &AuthError{URL: rawURL, Err: ErrDigestNotFound}
	}

	c.logger.Debug().Str("url", rawURL).Msg("Form digest obtained")
	return string(m[1]), nil
}

// do executes the request, classifies failures and records metrics.
func (c *Client) do(req *http.Request) ([]byte, error) {
	ctx := req.Context()
	path := req.URL.Path
	rawURL := req.URL.String()

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{URL: rawURL, ErrorClass: ErrorClassNetwork, Message: "rate limiter", Err: err}
		}
	}

	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)

	c.logger.Debug().
		Str("method", req.Method).
		Str("url", rawURL).
		Msg("Executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(path, "network_error").Inc()
		c.logger.Error().Err(err).Str("url", rawURL).Msg("HTTP request failed")
		return nil, &TransportError{URL: rawURL, ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &TransportError{URL: rawURL, StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("url", rawURL).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Remote request error")
		return nil, &TransportError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    truncate(string(data), 512),
		}
	}

	return data, nil
}

// classifyStatus categorizes a non-2xx status code.
func classifyStatus(code int) ErrorClass {
	if code >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
