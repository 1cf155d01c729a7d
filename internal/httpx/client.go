package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/bakkerme/free-game-notifier/internal/observability/otelx"
	"github.com/bakkerme/free-game-notifier/internal/retry"
	"github.com/go-resty/resty/v2"
)

// Options configures the shared HTTP client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// Attempts is the number of tries for a GET; transport errors, 429 and 5xx are retried.
	Attempts int
	// BaseDelay overrides the first backoff delay. Tests set it low.
	BaseDelay time.Duration
}

// StatusError is a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, Truncate(e.Body, 200))
}

// Truncate shortens s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// Client wraps a resty client with retrying GETs.
type Client struct {
	http   *resty.Client
	retry  retry.Config
	logger *slog.Logger
}

// New builds a client for collectors. tracerName names the spans emitted for its requests.
func New(logger *slog.Logger, opts Options, tracerName string) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http: NewResty(opts, tracerName),
		retry: retry.Config{
			Attempts:  max(opts.Attempts, 1),
			BaseDelay: opts.BaseDelay,
			MaxDelay:  5 * time.Second,
		},
		logger: logger,
	}
}

// NewResty returns an instrumented resty client with the timeout and user agent applied.
func NewResty(opts Options, tracerName string) *resty.Client {
	client := resty.New()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	client.SetHeader("Accept-Language", "en-US,en;q=0.9")
	otelx.InstrumentResty(client, tracerName)
	return client
}

// Resty exposes the underlying client for non-GET calls.
func (c *Client) Resty() *resty.Client {
	return c.http
}

// Get fetches url and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, url string, query map[string]string) ([]byte, error) {
	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("retrying request", "url", url, "attempt", attempt, "wait", wait, "error", err)
	}

	var body []byte
	err := retry.Do(ctx, cfg, func() error {
		res, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(query).
			Get(url)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(err)
			}
			return err
		}
		if res.IsError() {
			serr := &StatusError{URL: url, StatusCode: res.StatusCode(), Body: res.String()}
			if res.StatusCode() == http.StatusTooManyRequests || res.StatusCode() >= 500 {
				return serr
			}
			return retry.Permanent(serr)
		}
		body = res.Body()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
