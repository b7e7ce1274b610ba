package saldo

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ambiyansyah-risyal/saldo/internal/backoff"
)

// RetryPolicy decides whether a failed attempt should be retried and after
// what delay. attempt counts completed attempts, so the decision after the
// first failure is made with attempt 0.
type RetryPolicy interface {
	ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool)
	MaxRetries() int
}

// BackoffStrategy selects the delay algorithm used between retries.
type BackoffStrategy int

const (
	// ExponentialJitter grows delays geometrically with uniform jitter.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter randomizes each delay between the base and an
	// exponentially growing bound.
	DecorrelatedJitter
)

// DefaultRetryPolicy retries transient failures on idempotent requests with
// configurable backoff. Retry-After headers on 429 and 503 responses take
// precedence over the computed delay.
type DefaultRetryPolicy struct {
	maxRetries    int
	initialDelay  time.Duration
	maxDelay      time.Duration
	backoffFactor float64
	jitter        float64
	strategy      BackoffStrategy
	calculator    *backoff.Calculator
	condition     RetryCondition
	isIdempotent  func(method string) bool
}

// NewDefaultRetryPolicy creates a retry policy with exponential jitter
// backoff that only retries idempotent methods.
func NewDefaultRetryPolicy(maxRetries int, initialDelay, maxDelay time.Duration, backoffFactor, jitter float64) *DefaultRetryPolicy {
	return NewDefaultRetryPolicyWithStrategy(maxRetries, initialDelay, maxDelay, backoffFactor, jitter, ExponentialJitter)
}

// NewDefaultRetryPolicyWithStrategy creates a retry policy using the given
// backoff strategy.
func NewDefaultRetryPolicyWithStrategy(maxRetries int, initialDelay, maxDelay time.Duration, backoffFactor, jitter float64, strategy BackoffStrategy) *DefaultRetryPolicy {
	policy := &DefaultRetryPolicy{
		maxRetries:    maxRetries,
		initialDelay:  initialDelay,
		maxDelay:      maxDelay,
		backoffFactor: backoffFactor,
		jitter:        jitter,
		strategy:      strategy,
		condition:     DefaultRetryCondition,
		isIdempotent:  DefaultIsIdempotent,
	}

	switch strategy {
	case DecorrelatedJitter:
		policy.calculator = backoff.NewDecorrelatedJitterCalculator()
	default:
		policy.calculator = backoff.NewExponentialJitterCalculator()
	}

	return policy
}

// WithCondition replaces the retry condition and returns the policy.
func (p *DefaultRetryPolicy) WithCondition(condition RetryCondition) *DefaultRetryPolicy {
	if condition != nil {
		p.condition = condition
	}
	return p
}

// MaxRetries implements the RetryPolicy interface.
func (p *DefaultRetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// ShouldRetry implements the RetryPolicy interface.
func (p *DefaultRetryPolicy) ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxRetries {
		return 0, false
	}

	// Never replay a non-idempotent request that reached the server.
	if resp != nil && resp.Request != nil && !p.isIdempotent(resp.Request.Method) {
		return 0, false
	}

	if !p.condition(resp, err) {
		return 0, false
	}

	var delay time.Duration
	if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
		delay = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	if delay == 0 {
		delay = p.calculator.Calculate(attempt, p.initialDelay, p.maxDelay, p.backoffFactor, p.jitter)
	}

	return delay, true
}

// RetryableOutcome reports whether the policy's condition would retry this
// outcome if attempts remained. The retry loop uses it to distinguish
// exhaustion from a permanent failure.
func (p *DefaultRetryPolicy) RetryableOutcome(resp *http.Response, err error) bool {
	if resp != nil && resp.Request != nil && !p.isIdempotent(resp.Request.Method) {
		return false
	}
	return p.condition(resp, err)
}

// DefaultRetryCondition is the stock transient-failure predicate: transport
// errors and 429/5xx responses are retryable, cancellation and categorized
// permanent failures are not.
func DefaultRetryCondition(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			return IsTransient(err)
		}
		// Plain transport errors count as network failures.
		return true
	}
	if resp != nil {
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	}
	return false
}

// DefaultIsIdempotent returns true for idempotent HTTP methods.
func DefaultIsIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}

// parseRetryAfter parses a Retry-After header in either delay-seconds or
// HTTP-date form. Values over an hour are capped; unparseable values yield 0.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
