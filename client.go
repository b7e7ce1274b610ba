package saldo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client is the resilient access layer every outbound ledger call passes
// through. It layers response caching, bearer token management, rate
// limiting, request coalescing, connection pooling, per-endpoint circuit
// breaking and budgeted retries around the standard net/http client. It is
// safe for concurrent use; all state hangs off the instance, never off
// package globals.
type Client struct {
	httpClient *http.Client

	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	backoffStrategy   BackoffStrategy
	retryCondition    RetryCondition
	retryPolicy       RetryPolicy
	retryHooks        RetryHooks

	overallTimeout    time.Duration
	minRequestTimeout time.Duration

	breakerConfig    CircuitBreakerConfig
	breakerOverrides []CircuitBreakerOverride
	breakers         *CircuitBreakerGroup

	poolConfig ConnectionPoolConfig
	pool       *ConnectionPool

	limiter         Limiter
	limiterRegistry *RateLimiterRegistry

	coalescer         *CoalescingTracker
	coalesceCondition CoalesceCondition

	cache          Cache
	cacheTTL       time.Duration
	cacheKeyFunc   FingerprintFunc
	cacheCondition CacheCondition

	access *AccessManager

	idempotencyKeys bool

	middleware []Middleware
	metrics    *MetricsCollector
	debug      *DebugConfig
	logger     Logger

	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		httpClient:        &http.Client{},
		maxRetries:        DefaultMaxRetries,
		initialBackoff:    DefaultInitialBackoff,
		maxBackoff:        DefaultMaxBackoff,
		backoffMultiplier: DefaultBackoffMultiplier,
		jitter:            DefaultJitter,
		backoffStrategy:   ExponentialJitter,
		retryCondition:    DefaultRetryCondition,
		overallTimeout:    DefaultOverallTimeout,
		minRequestTimeout: DefaultMinRequestTimeout,
		cacheTTL:          DefaultCacheTTL,
		cacheKeyFunc:      Fingerprint,
		cacheCondition:    DefaultCacheCondition,
		coalesceCondition: DefaultCoalesceCondition,
		idempotencyKeys:   true,
		middleware:        []Middleware{},
		debug:             DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if client.retryPolicy == nil {
		client.retryPolicy = NewDefaultRetryPolicyWithStrategy(
			client.maxRetries,
			client.initialBackoff,
			client.maxBackoff,
			client.backoffMultiplier,
			client.jitter,
			client.backoffStrategy,
		).WithCondition(client.retryCondition)
	}

	client.wireBreakerObservability()
	client.breakers = NewCircuitBreakerGroup(client.breakerConfig, client.breakerOverrides...)
	client.pool = NewConnectionPool(client.poolConfig)

	if client.access != nil {
		client.access.SetRefreshHook(client.onTokenRefresh)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// wireBreakerObservability chains metric and debug reporting in front of
// any caller-supplied state change hook.
func (c *Client) wireBreakerObservability() {
	userHook := c.breakerConfig.OnStateChange
	c.breakerConfig.OnStateChange = func(endpoint string, from, to CircuitState) {
		c.metrics.RecordCircuitBreakerState(endpoint, to)
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Info("Circuit state change", "endpoint", endpoint, "from", from.String(), "to", to.String())
		}
		if userHook != nil {
			userHook(endpoint, from, to)
		}
	}
}

func (c *Client) onTokenRefresh(err error) {
	if err != nil {
		c.metrics.RecordTokenRefresh("failure")
		if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
			c.logger.Warn("Token refresh failed", "error", err.Error())
		}
		return
	}
	c.metrics.RecordTokenRefresh("success")
	if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
		c.logger.Debug("Token refreshed")
	}
}

// Get performs an HTTP GET with context.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Head performs an HTTP HEAD with context.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post performs an HTTP POST with the given content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Put performs an HTTP PUT with the given content type.
func (c *Client) Put(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Patch performs an HTTP PATCH with the given content type.
func (c *Client) Patch(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Delete performs an HTTP DELETE with context.
func (c *Client) Delete(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do executes a prepared *http.Request through the full pipeline and
// returns the raw response or a single categorized error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	endpoint := getEndpointFromRequest(req)

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", req.Method, "url", req.URL.String(), "endpoint", endpoint)
	}

	c.metrics.RecordRequestStart(req.Method, endpoint)
	resp, err := c.process(req, endpoint, requestID, start)
	c.metrics.RecordRequestEnd(req.Method, endpoint)

	duration := time.Since(start)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordRequest(req.Method, endpoint, statusCode, duration)

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		if err != nil {
			c.logger.Debug("Request failed", "requestID", requestID, "error", err.Error(), "duration", duration)
		} else {
			c.logger.Debug("Request complete", "requestID", requestID, "status", statusCode, "duration", duration)
		}
	}

	return resp, err
}

// process runs the stages that precede the network phase: cache lookup,
// token stamping, idempotency keys, rate limiter admission and coalescing.
func (c *Client) process(req *http.Request, endpoint, requestID string, start time.Time) (*http.Response, error) {
	ctx := req.Context()

	cacheEnabled := c.cacheEnabledFor(req)
	coalesceEnabled := c.coalescer != nil && c.coalesceCondition(req)

	var fingerprint string
	if cacheEnabled || coalesceEnabled {
		fingerprint = c.cacheKeyFunc(req)
	}

	if cacheEnabled {
		if entry, ok := c.cache.Get(fingerprint); ok {
			c.metrics.RecordCacheHit(req.Method, endpoint)
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("Cache hit", "requestID", requestID, "fingerprint", fingerprint)
			}
			return entry.Response(), nil
		}
		c.metrics.RecordCacheMiss(req.Method, endpoint)
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Cache miss", "requestID", requestID, "fingerprint", fingerprint)
		}
	}

	// The token is stamped before any admission or slot is consumed, so an
	// authentication failure costs nothing downstream.
	if c.access != nil {
		token, err := c.access.GetToken(ctx)
		if err != nil {
			errType := ErrorTypeAuthentication
			msg := "token acquisition failed"
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				errType = ErrorTypeTimeout
				msg = "timed out acquiring token"
			case errors.Is(err, context.Canceled):
				errType = ErrorTypeClient
				msg = "canceled acquiring token"
			}
			c.metrics.RecordError(errType, req.Method, endpoint)
			if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
				c.logger.Warn("Token acquisition failed", "requestID", requestID, "error", err.Error())
			}
			return nil, c.createClientError(errType, msg, err, requestID, req, 0, time.Since(start))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if c.idempotencyKeys && !methodIsIdempotent(req.Method) && req.Header.Get("Idempotency-Key") == "" {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	limiter, limiterName := c.limiterFor(req)
	if limiter != nil {
		if err := limiter.Admit(ctx); err != nil {
			errType := ErrorTypeRateLimit
			msg := "rate limit exceeded"
			switch {
			case errors.Is(err, ErrRateLimitQueueFull):
				errType = ErrorTypeCapacity
				msg = "rate limiter queue full"
			case errors.Is(err, context.DeadlineExceeded):
				errType = ErrorTypeTimeout
				msg = "timed out waiting for rate limiter"
			case errors.Is(err, context.Canceled):
				errType = ErrorTypeClient
				msg = "canceled waiting for rate limiter"
			}
			c.metrics.RecordError(errType, req.Method, endpoint)
			if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
				c.logger.Warn("Rate limiter rejected request", "requestID", requestID, "limiter", limiterName, "error", err.Error())
			}
			return nil, c.createClientError(errType, msg, err, requestID, req, 0, time.Since(start))
		}
		if sw, ok := limiter.(*SlidingWindowLimiter); ok {
			c.metrics.RecordRateLimiterState(limiterName, sw.InWindow(), sw.QueueLength())
			defer sw.Release()
		}
	}

	var ownerEntry *CoalescedRequest
	if coalesceEnabled {
		entry, isOwner := c.coalescer.Join(fingerprint)
		if !isOwner {
			resp, err := entry.Wait(ctx)
			c.metrics.RecordCoalescedRequest(req.Method, endpoint)
			if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
				c.logger.Debug("Joined in-flight request", "requestID", requestID, "fingerprint", fingerprint)
			}
			return resp, err
		}
		ownerEntry = entry
	}

	resp, err := c.execute(req, endpoint, requestID, start)

	if ownerEntry != nil {
		// Settle subscribers whatever the outcome; the owner gets its own
		// buffered copy back.
		resp, err = c.coalescer.Complete(ownerEntry, resp, err)
	}

	if cacheEnabled && err == nil && resp != nil && resp.StatusCode < 400 {
		c.storeInCache(fingerprint, req, resp, requestID)
	}

	return resp, err
}

// execute runs the network phase: connection slot, circuit breaker and the
// budgeted retry loop.
func (c *Client) execute(req *http.Request, endpoint, requestID string, start time.Time) (*http.Response, error) {
	ctx := req.Context()

	host := ""
	if req.URL != nil {
		host = req.URL.Host
	}

	slot, err := c.pool.Acquire(ctx, host)
	if err != nil {
		errType := ErrorTypeCapacity
		msg := "connection pool queue full"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			errType = ErrorTypeTimeout
			msg = "timed out waiting for connection slot"
		case errors.Is(err, context.Canceled):
			errType = ErrorTypeClient
			msg = "canceled waiting for connection slot"
		}
		c.metrics.RecordError(errType, req.Method, endpoint)
		if c.debug != nil && c.debug.Enabled && c.debug.LogPool && c.logger != nil {
			c.logger.Warn("Connection slot acquisition failed", "requestID", requestID, "host", host, "error", err.Error())
		}
		return nil, c.createClientError(errType, msg, err, requestID, req, 0, time.Since(start))
	}
	defer func() {
		slot.Release()
		stats := c.pool.Stats()
		c.metrics.RecordPoolState(host, stats.PerHost[host], stats.Queued)
	}()

	if c.debug != nil && c.debug.Enabled && c.debug.LogPool && c.logger != nil {
		c.logger.Debug("Connection slot acquired", "requestID", requestID, "host", host, "active", c.pool.ActiveForHost(host))
	}

	breaker := c.breakers.ForEndpoint(endpoint)
	budget := newBudgetForRequest(ctx, c.overallTimeout, c.minRequestTimeout, c.retryPolicy.MaxRetries())

	return c.runAttempts(req, breaker, budget, endpoint, requestID, start)
}

// runAttempts drives the retry loop. Each attempt gets a slice of the
// remaining timeout budget; backoff sleeps never outlive it.
func (c *Client) runAttempts(req *http.Request, breaker *CircuitBreaker, budget *TimeoutBudget, endpoint, requestID string, start time.Time) (*http.Response, error) {
	var resp *http.Response
	var lastErr error

	attempt := 0
	for ; ; attempt++ {
		// The minimum-budget gate applies to retries only: the first attempt
		// always runs, bounded by whatever deadline the caller gave it.
		if attempt > 0 && !budget.CanAttempt() {
			return nil, c.budgetExhausted(req, lastErr, endpoint, requestID, attempt, start)
		}

		if !breaker.Allow() {
			c.metrics.RecordError(ErrorTypeCircuitOpen, req.Method, endpoint)
			if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
				c.logger.Warn("Circuit breaker open", "requestID", requestID, "endpoint", endpoint)
			}
			return nil, c.createClientError(ErrorTypeCircuitOpen, "circuit breaker is open", ErrCircuitOpen, requestID, req, attempt, time.Since(start))
		}

		if attempt > 0 {
			c.metrics.RecordRetry(req.Method, endpoint, attempt)
			if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
				c.logger.Info("Retry attempt", "requestID", requestID, "attempt", attempt, "maxRetries", c.retryPolicy.MaxRetries(), "endpoint", endpoint)
			}
		}

		attemptReq, cancel, err := c.attemptRequest(req, budget, attempt)
		if err != nil {
			return nil, c.createClientError(ErrorTypeClient, "request body cannot be replayed", err, requestID, req, attempt, time.Since(start))
		}

		resp, lastErr = c.executeMiddleware(attemptReq)
		if lastErr != nil || resp == nil {
			cancel()
		} else {
			// The attempt context must stay alive until the caller finishes
			// the body.
			resp.Body = &attemptBody{ReadCloser: resp.Body, cancel: cancel}
		}

		if lastErr != nil || (resp != nil && resp.StatusCode >= 500) {
			breaker.RecordFailure()
			if lastErr != nil {
				c.metrics.RecordError(ErrorTypeNetwork, req.Method, endpoint)
			} else {
				c.metrics.RecordError(ErrorTypeServer, req.Method, endpoint)
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
				if lastErr != nil {
					c.logger.Warn("Failure recorded", "requestID", requestID, "endpoint", endpoint, "error", lastErr.Error())
				} else {
					c.logger.Warn("Failure recorded", "requestID", requestID, "endpoint", endpoint, "statusCode", resp.StatusCode)
				}
			}
		} else {
			breaker.RecordSuccess()
		}

		delay, retry := c.retryPolicy.ShouldRetry(resp, lastErr, attempt)
		if !retry {
			break
		}

		// Drop the failed attempt's response before replaying.
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			resp = nil
		}

		delay = budget.CapDelay(delay)
		if c.retryHooks.OnRetry != nil {
			c.retryHooks.OnRetry(attempt+1, delay, lastErr)
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "endpoint", endpoint)
		}

		select {
		case <-time.After(delay):
		case <-req.Context().Done():
			// Cancellation mid-backoff counts as one more failure.
			breaker.RecordFailure()
			ctxErr := req.Context().Err()
			errType := ErrorTypeClient
			msg := "request canceled during backoff"
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				errType = ErrorTypeTimeout
				msg = "request deadline exceeded during backoff"
			}
			c.metrics.RecordError(errType, req.Method, endpoint)
			return nil, c.createClientError(errType, msg, ctxErr, requestID, req, attempt+1, time.Since(start))
		}
	}

	exhausted := attempt >= c.retryPolicy.MaxRetries() && c.retryableOutcome(resp, lastErr)

	if lastErr != nil {
		errType := categorizeTransport(lastErr)
		msg := "network request failed"
		switch errType {
		case ErrorTypeTimeout:
			msg = "request timed out"
		case ErrorTypeClient:
			msg = "request canceled"
		}
		cerr := c.createClientError(errType, msg, lastErr, requestID, req, attempt+1, time.Since(start))
		if exhausted {
			cerr.Exhausted = true
			c.metrics.RecordRetriesExhausted(req.Method, endpoint)
			if c.retryHooks.OnExhausted != nil {
				c.retryHooks.OnExhausted(attempt+1, cerr)
			}
		}
		return nil, cerr
	}

	if exhausted {
		// The final response is returned as-is; the hook still observes
		// that the loop gave up.
		c.metrics.RecordRetriesExhausted(req.Method, endpoint)
		if c.retryHooks.OnExhausted != nil {
			cerr := c.createClientError(ErrorTypeServer, "retries exhausted", nil, requestID, req, attempt+1, time.Since(start))
			if resp != nil {
				cerr.StatusCode = resp.StatusCode
			}
			cerr.Exhausted = true
			c.retryHooks.OnExhausted(attempt+1, cerr)
		}
	}

	return resp, nil
}

// retryableOutcome reports whether the final failure is of a kind the
// configured policy would have kept retrying, so exhaustion is tagged by the
// policy's own judgment. Policies that cannot answer fall back to the stock
// condition.
func (c *Client) retryableOutcome(resp *http.Response, err error) bool {
	if p, ok := c.retryPolicy.(interface {
		RetryableOutcome(*http.Response, error) bool
	}); ok {
		return p.RetryableOutcome(resp, err)
	}
	return DefaultRetryCondition(resp, err)
}

// budgetExhausted builds the tagged error returned when the remaining
// budget cannot fund another attempt.
func (c *Client) budgetExhausted(req *http.Request, lastErr error, endpoint, requestID string, attempt int, start time.Time) *ClientError {
	c.metrics.RecordBudgetExhausted(req.Method, endpoint)
	if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
		c.logger.Warn("Timeout budget exhausted", "requestID", requestID, "endpoint", endpoint, "attempts", attempt)
	}

	cause := lastErr
	if cause == nil {
		cause = ErrBudgetExhausted
	}
	cerr := c.createClientError(ErrorTypeTimeout, "timeout budget exhausted", cause, requestID, req, attempt, time.Since(start))
	cerr.Exhausted = true
	if c.retryHooks.OnExhausted != nil {
		c.retryHooks.OnExhausted(attempt, cerr)
	}
	return cerr
}

// attemptRequest clones the request with this attempt's slice of the budget
// and a fresh body for replayed attempts.
func (c *Client) attemptRequest(req *http.Request, budget *TimeoutBudget, attempt int) (*http.Request, context.CancelFunc, error) {
	attemptCtx, cancel := context.WithTimeout(req.Context(), budget.PerAttempt(attempt))
	attemptReq := req.Clone(attemptCtx)

	if attempt > 0 && req.Body != nil {
		if req.GetBody == nil {
			cancel()
			return nil, nil, errors.New("request body is not replayable")
		}
		body, err := req.GetBody()
		if err != nil {
			cancel()
			return nil, nil, err
		}
		attemptReq.Body = body
	}

	return attemptReq, cancel, nil
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripperFunc(c.httpClient.Do)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// attemptBody ties the attempt's context cancellation to the response body
// so the deadline cannot be released while the caller is still reading.
type attemptBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *attemptBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func (c *Client) cacheEnabledFor(req *http.Request) bool {
	if c.cache == nil {
		return false
	}
	if control, ok := req.Context().Value(CacheControlKey).(*CacheControl); ok {
		return control.Enabled
	}
	return c.cacheCondition(req)
}

func (c *Client) cacheTTLFor(req *http.Request) time.Duration {
	if control, ok := req.Context().Value(CacheControlKey).(*CacheControl); ok && control.TTL > 0 {
		return control.TTL
	}
	return c.cacheTTL
}

func (c *Client) storeInCache(fingerprint string, req *http.Request, resp *http.Response, requestID string) {
	entry := NewCacheEntry(fingerprint, resp)
	if entry == nil {
		return
	}
	ttl := c.cacheTTLFor(req)
	c.cache.Set(fingerprint, entry, ttl)

	if mem, ok := c.cache.(*InMemoryCache); ok {
		c.metrics.RecordCacheSize("memory", mem.Len())
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
		c.logger.Debug("Response cached", "requestID", requestID, "fingerprint", fingerprint, "ttl", ttl)
	}
}

func (c *Client) limiterFor(req *http.Request) (Limiter, string) {
	if c.limiterRegistry != nil {
		return c.limiterRegistry.GetLimiter(req)
	}
	return c.limiter, "default"
}

// categorizeTransport maps a transport error to an error type label.
func categorizeTransport(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorTypeClient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}
	return ErrorTypeNetwork
}

func (c *Client) createClientError(errorType, message string, cause error, requestID string, req *http.Request, attempt int, duration time.Duration) *ClientError {
	url := ""
	if req.URL != nil {
		url = req.URL.String()
	}

	return &ClientError{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		RequestID: requestID,
		Method:    req.Method,
		URL:       url,
		Endpoint:  getEndpointFromRequest(req),
		Attempt:   attempt,
		Attempts:  c.retryPolicy.MaxRetries() + 1,
		Timestamp: time.Now(),
		Duration:  duration,
	}
}

// CircuitBreakerStates returns a snapshot of breaker states by endpoint.
func (c *Client) CircuitBreakerStates() map[string]CircuitState {
	return c.breakers.States()
}

// PoolStats returns a snapshot of connection pool occupancy.
func (c *Client) PoolStats() PoolStats {
	return c.pool.Stats()
}

// Close releases background resources held by optional components, such as
// the cache janitor.
func (c *Client) Close() {
	if closer, ok := c.cache.(interface{ Close() }); ok {
		closer.Close()
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// ValidateConfigurationStrict panics if configuration is invalid.
func (c *Client) ValidateConfigurationStrict() {
	if err := c.ValidateConfiguration(); err != nil {
		panic(fmt.Sprintf("invalid client configuration: %v", err))
	}
}
