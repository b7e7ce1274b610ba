package saldo

import (
	"fmt"
	"net/http"
	"time"
)

// Default configuration values applied by New.
const (
	DefaultMaxRetries        = 3
	DefaultInitialBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff        = 10 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultJitter            = 0.1

	// DefaultOverallTimeout bounds a whole call, attempts and backoff
	// included, when the request context carries no deadline.
	DefaultOverallTimeout = 30 * time.Second

	// DefaultMinRequestTimeout is the least wall time a single attempt is
	// ever granted from the budget.
	DefaultMinRequestTimeout = 1 * time.Second

	DefaultCacheTTL         = 5 * time.Minute
	DefaultCoalescingWindow = 1 * time.Second
)

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithBackoffMultiplier sets the backoff multiplier.
func WithBackoffMultiplier(f float64) Option {
	return func(c *Client) {
		c.backoffMultiplier = f
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithBackoffStrategy selects the delay algorithm for the default retry
// policy.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(c *Client) {
		c.backoffStrategy = strategy
	}
}

// WithRetryPolicy replaces the default retry policy entirely.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithRetryCondition sets a custom retry condition for the default policy.
func WithRetryCondition(fn RetryCondition) Option {
	return func(c *Client) {
		c.retryCondition = fn
	}
}

// WithRetryHooks installs observers for retry scheduling and exhaustion.
func WithRetryHooks(hooks RetryHooks) Option {
	return func(c *Client) {
		c.retryHooks = hooks
	}
}

// WithTimeout sets the overall timeout budget for a call, covering every
// attempt and backoff sleep. A sooner request context deadline wins.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.overallTimeout = d
	}
}

// WithMinRequestTimeout sets the per-attempt floor carved from the budget.
func WithMinRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.minRequestTimeout = d
	}
}

// WithCircuitBreaker sets the default circuit breaker configuration shared
// by every endpoint.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breakerConfig = config
	}
}

// WithCircuitBreakerOverrides sets per-endpoint breaker configurations
// selected by glob patterns against host+path.
func WithCircuitBreakerOverrides(overrides ...CircuitBreakerOverride) Option {
	return func(c *Client) {
		c.breakerOverrides = append(c.breakerOverrides, overrides...)
	}
}

// WithConnectionPool sets the connection pool limits.
func WithConnectionPool(config ConnectionPoolConfig) Option {
	return func(c *Client) {
		c.poolConfig = config
	}
}

// WithRateLimiter enables the sliding-window rate limiter.
func WithRateLimiter(config RateLimiterConfig) Option {
	return func(c *Client) {
		c.limiter = NewSlidingWindowLimiter(config)
	}
}

// WithLimiter sets a custom admission strategy, such as a token bucket.
func WithLimiter(limiter Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithRateLimiterRegistry routes requests to per-key limiters. Takes
// precedence over a single limiter when both are set.
func WithRateLimiterRegistry(registry *RateLimiterRegistry) Option {
	return func(c *Client) {
		c.limiterRegistry = registry
	}
}

// WithCache enables caching with the default in-memory cache.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewInMemoryCache(0)
		c.cacheTTL = ttl
	}
}

// WithCustomCache sets a custom cache implementation.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithCacheKeyFunc sets a custom fingerprint function for cache and
// coalescing keys.
func WithCacheKeyFunc(fn FingerprintFunc) Option {
	return func(c *Client) {
		c.cacheKeyFunc = fn
	}
}

// WithCacheCondition sets a custom cache condition function.
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithCoalescing merges identical in-flight reads started within window
// into a single network call.
func WithCoalescing(window time.Duration) Option {
	return func(c *Client) {
		c.coalescer = NewCoalescingTracker(window)
	}
}

// WithCoalesceCondition sets a custom coalescing eligibility function.
func WithCoalesceCondition(fn CoalesceCondition) Option {
	return func(c *Client) {
		c.coalesceCondition = fn
	}
}

// WithAccessManager enables bearer token management with the client
// credentials grant.
func WithAccessManager(config AccessManagerConfig) Option {
	return func(c *Client) {
		c.access = NewAccessManager(config)
	}
}

// WithIdempotencyKeys toggles automatic Idempotency-Key headers on
// non-idempotent requests. Enabled by default.
func WithIdempotencyKeys(enabled bool) Option {
	return func(c *Client) {
		c.idempotencyKeys = enabled
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateRetryConfig()...)
	errors = append(errors, c.validatePoolConfig()...)
	errors = append(errors, c.validateRateLimiterConfig()...)
	errors = append(errors, c.validateCacheConfig()...)
	errors = append(errors, c.validateCircuitBreakerConfig()...)
	errors = append(errors, c.validateAccessConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)
	errors = append(errors, c.validateHTTPClientConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateRetryConfig() []string {
	var errors []string

	if c.maxRetries < 0 {
		errors = append(errors, "maxRetries must be non-negative")
	}

	if c.initialBackoff <= 0 {
		errors = append(errors, "initialBackoff must be positive")
	}

	if c.maxBackoff < c.initialBackoff {
		errors = append(errors, "maxBackoff must be greater than or equal to initialBackoff")
	}

	if c.backoffMultiplier <= 0 {
		errors = append(errors, "backoffMultiplier must be positive")
	}

	if c.jitter < 0 || c.jitter > 1 {
		errors = append(errors, "jitter must be between 0 and 1")
	}

	if c.overallTimeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}

	if c.minRequestTimeout <= 0 {
		errors = append(errors, "minRequestTimeout must be positive")
	}

	if c.minRequestTimeout > c.overallTimeout {
		errors = append(errors, "minRequestTimeout must not exceed the overall timeout")
	}

	return errors
}

func (c *Client) validatePoolConfig() []string {
	var errors []string

	if c.poolConfig.MaxPerHost < 0 {
		errors = append(errors, "pool MaxPerHost must be non-negative")
	}
	if c.poolConfig.MaxTotal < 0 {
		errors = append(errors, "pool MaxTotal must be non-negative")
	}
	if c.poolConfig.MaxQueueSize < 0 {
		errors = append(errors, "pool MaxQueueSize must be non-negative")
	}
	if c.poolConfig.MaxPerHost > 0 && c.poolConfig.MaxTotal > 0 && c.poolConfig.MaxPerHost > c.poolConfig.MaxTotal {
		errors = append(errors, "pool MaxPerHost must not exceed MaxTotal")
	}

	return errors
}

func (c *Client) validateRateLimiterConfig() []string {
	var errors []string

	if limiter, ok := c.limiter.(*SlidingWindowLimiter); ok {
		if limiter.config.MaxRequests <= 0 {
			errors = append(errors, "rateLimiter MaxRequests must be positive")
		}
		if limiter.config.Window <= 0 {
			errors = append(errors, "rateLimiter Window must be positive")
		}
	}

	return errors
}

func (c *Client) validateCacheConfig() []string {
	var errors []string

	if c.cache != nil && c.cacheTTL <= 0 {
		errors = append(errors, "cacheTTL must be positive when cache is enabled")
	}

	return errors
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var errors []string

	if c.breakerConfig.FailureThreshold < 0 {
		errors = append(errors, "circuitBreaker FailureThreshold must be non-negative")
	}
	if c.breakerConfig.RecoveryTimeout < 0 {
		errors = append(errors, "circuitBreaker RecoveryTimeout must be non-negative")
	}
	if c.breakerConfig.SuccessThreshold < 0 {
		errors = append(errors, "circuitBreaker SuccessThreshold must be non-negative")
	}
	if c.breakerConfig.HalfOpenProbes < 0 {
		errors = append(errors, "circuitBreaker HalfOpenProbes must be non-negative")
	}

	for i, override := range c.breakerOverrides {
		if override.Pattern == "" {
			errors = append(errors, fmt.Sprintf("circuitBreaker override[%d] pattern cannot be empty", i))
		}
	}

	return errors
}

func (c *Client) validateAccessConfig() []string {
	var errors []string

	if c.access != nil {
		if c.access.config.TokenURL == "" {
			errors = append(errors, "accessManager TokenURL cannot be empty")
		}
		if c.access.config.ClientID == "" {
			errors = append(errors, "accessManager ClientID cannot be empty")
		}
	}

	return errors
}

func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errors = append(errors, "logger must be set when debug is enabled")
		}
	}

	return errors
}

func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}

func (c *Client) validateHTTPClientConfig() []string {
	var errors []string

	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}

	return errors
}

func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.maxRetries > 100 {
		errors = append(errors, "maxRetries > 100 may cause excessive resource usage")
	}

	if c.initialBackoff > 10*time.Minute {
		errors = append(errors, "initialBackoff > 10m may cause very long delays")
	}
	if c.maxBackoff > time.Hour {
		errors = append(errors, "maxBackoff > 1h may cause extremely long delays")
	}

	if c.overallTimeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}

	if limiter, ok := c.limiter.(*SlidingWindowLimiter); ok {
		if limiter.config.MaxRequests > 1000000 {
			errors = append(errors, "rateLimiter MaxRequests > 1M may cause memory issues")
		}
		if limiter.config.Window < time.Millisecond {
			errors = append(errors, "rateLimiter Window < 1ms may cause excessive CPU usage")
		}
	}

	if c.cache != nil && c.cacheTTL > 24*time.Hour {
		errors = append(errors, "cacheTTL > 24h may cause stale data issues")
	}

	return errors
}
