package saldo

import (
	"net/http"
	"time"
)

// RetryCondition determines whether a request should be retried.
type RetryCondition func(resp *http.Response, err error) bool

// Middleware wraps the underlying transport for cross-cutting concerns.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option represents a configuration option.
type Option func(*Client)

// CacheCondition determines whether a request is eligible for caching.
type CacheCondition func(req *http.Request) bool

// CoalesceCondition determines whether a request is eligible for coalescing
// with identical concurrent in-flight requests.
type CoalesceCondition func(req *http.Request) bool

// KeyFunc derives a routing key (host, route, ...) from a request. Used by
// the rate limiter registry to select a limiter per key.
type KeyFunc func(req *http.Request) string

// RetryHooks are invoked synchronously at the retry loop's decision points.
// OnRetry fires before each backoff sleep; OnExhausted fires exactly once
// when the loop gives up on a retryable error.
type RetryHooks struct {
	OnRetry     func(attempt int, delay time.Duration, err error)
	OnExhausted func(attempts int, err error)
}

// Context keys for per-request cache control.
type contextKey string

const (
	// CacheControlKey carries a *CacheControl override in a request context.
	CacheControlKey contextKey = "saldo_cache_control"
)

// CacheControl holds per-request cache overrides.
type CacheControl struct {
	Enabled bool
	TTL     time.Duration
}
