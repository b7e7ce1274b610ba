package saldo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error type labels carried by ClientError.Type. They mirror the failure
// taxonomy used across the pipeline: transient categories are retryable,
// the rest surface immediately.
const (
	ErrorTypeNetwork        = "Network"
	ErrorTypeTimeout        = "Timeout"
	ErrorTypeServer         = "Server"
	ErrorTypeClient         = "Client"
	ErrorTypeRateLimit      = "RateLimit"
	ErrorTypeCircuitOpen    = "CircuitOpen"
	ErrorTypeAuthentication = "Authentication"
	ErrorTypeCapacity       = "Capacity"
	ErrorTypeValidation     = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCircuitOpen is returned when the circuit breaker for an endpoint is open.
	ErrCircuitOpen = errors.New("saldo: circuit open")

	// ErrRateLimited is returned when a request is denied by the rate limiter
	// and queueing is disabled.
	ErrRateLimited = errors.New("saldo: rate limit exceeded")

	// ErrRateLimitQueueFull is returned when the rate limiter's waiter queue
	// is at capacity.
	ErrRateLimitQueueFull = errors.New("saldo: rate limiter queue full")

	// ErrPoolQueueFull is returned when the connection pool's waiter queue
	// is at capacity.
	ErrPoolQueueFull = errors.New("saldo: connection pool queue full")

	// ErrSlotReleased is returned when a pool slot is released more than once.
	ErrSlotReleased = errors.New("saldo: pool slot already released")

	// ErrAuthFailed is returned when a token fetch or refresh fails.
	ErrAuthFailed = errors.New("saldo: token request failed")

	// ErrBudgetExhausted is returned when the timeout budget cannot cover
	// another attempt.
	ErrBudgetExhausted = errors.New("saldo: timeout budget exhausted")

	// ErrCacheMiss is returned when a cache lookup fails.
	ErrCacheMiss = errors.New("saldo: cache miss")
)

// ClientError is the categorized error every pipeline failure surfaces as.
// Type is one of the ErrorType constants; Attempt/Attempts describe how far
// the retry loop got, and Exhausted marks that the retry budget, not the
// error class, ended the call.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	StatusCode int
	Attempt    int
	Attempts   int
	Exhausted  bool
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Cause)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.Attempts)
	}
	if e.Exhausted {
		msg += " (retries exhausted)"
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsTransient reports whether an error represents a transient failure that
// might succeed on retry. Network errors, timeouts, 5xx responses and rate
// limiting count as transient; authentication, capacity, validation and 4xx
// client errors (except 429) do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeRateLimit, ErrorTypeCircuitOpen:
			return true
		case ErrorTypeClient:
			// 429 Too Many Requests is transient
			return clientErr.StatusCode == 429
		default:
			return false
		}
	}

	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.Attempts)
	}
	if e.Exhausted {
		info += "Retries Exhausted: true\n"
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
