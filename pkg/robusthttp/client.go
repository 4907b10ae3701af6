package robusthttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Adapts slog to the retryablehttp leveled logger interface.
type LeveledSlog struct {
	inner *slog.Logger
}

// intermediate failures are logged at WARN, because the caller gets the final error anyways
func (l LeveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

func (l LeveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

type config struct {
	retry   *retryablehttp.Client
	timeout time.Duration
}

type Option func(*config)

// WithMaxRetries sets the maximum number of retries. Zero disables retries entirely.
func WithMaxRetries(maxRetries int) Option {
	return func(c *config) {
		c.retry.RetryMax = maxRetries
	}
}

func WithRetryWait(waitMin, waitMax time.Duration) Option {
	return func(c *config) {
		c.retry.RetryWaitMin = waitMin
		c.retry.RetryWaitMax = waitMax
	}
}

// WithTimeout sets the overall per-request timeout of the returned client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.retry.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: logger})
	}
}

// WithTransport replaces the pooled transport. Mostly useful for tests.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.retry.HTTPClient.Transport = transport
	}
}

func WithRetryPolicy(policy retryablehttp.CheckRetry) Option {
	return func(c *config) {
		c.retry.CheckRetry = policy
	}
}

// Creates an HTTP client for talking to ledger nodes, DID resolvers and peer services. The
// returned client has the stdlib http.Client interface, with retryablehttp logic and otelhttp
// tracing internally.
//
// Defaults to a small number of retries on connection errors and 5xx (except 501). Clients on the
// verification path should pass WithMaxRetries(0): failures there are reported, not retried.
func NewClient(options ...Option) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: slog.Default().With("subsystem", "RobustHTTPClient")})
	retryClient.CheckRetry = DefaultRetryPolicy
	// hand the final response back to the caller instead of a generic "giving up" error
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	cfg := config{
		retry:   retryClient,
		timeout: 10 * time.Second,
	}
	for _, option := range options {
		option(&cfg)
	}

	client := retryClient.StandardClient()
	client.Timeout = cfg.timeout
	return client
}

// DefaultRetryPolicy wraps retryablehttp.DefaultRetryPolicy, treating `429 Too Many Requests`
// as non-retryable so the caller can decide how to back off.
func DefaultRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
