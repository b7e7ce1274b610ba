package saldo

import (
	"context"
	"time"
)

// TimeoutBudget tracks the total time a logical call may spend across all
// of its attempts. Each attempt gets a slice of the remaining budget sized
// so the retries still allowed by the policy can share what is left. A
// budget belongs to exactly one call; it is never shared across goroutines.
type TimeoutBudget struct {
	deadline   time.Time
	total      time.Duration
	minRequest time.Duration
	maxRetries int
	now        func() time.Time
}

// NewTimeoutBudget starts a budget clock covering total wall time. An
// attempt is never granted less than minRequest, and the split assumes up
// to maxRetries retries after the first attempt.
func NewTimeoutBudget(total, minRequest time.Duration, maxRetries int) *TimeoutBudget {
	if minRequest <= 0 {
		minRequest = DefaultMinRequestTimeout
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	now := time.Now()
	return &TimeoutBudget{
		deadline:   now.Add(total),
		total:      total,
		minRequest: minRequest,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// newBudgetForRequest derives the call's budget from the request context
// deadline when one is set, otherwise from the client's overall timeout.
func newBudgetForRequest(ctx context.Context, overall, minRequest time.Duration, maxRetries int) *TimeoutBudget {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < overall || overall <= 0 {
			overall = remaining
		}
	}
	if overall <= 0 {
		overall = DefaultOverallTimeout
	}
	return NewTimeoutBudget(overall, minRequest, maxRetries)
}

// Remaining returns the wall time left before the budget deadline. Never
// negative.
func (b *TimeoutBudget) Remaining() time.Duration {
	remaining := b.deadline.Sub(b.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanAttempt reports whether enough budget remains to run one more attempt
// at the minimum request timeout.
func (b *TimeoutBudget) CanAttempt() bool {
	return b.Remaining() >= b.minRequest
}

// PerAttempt computes the timeout for the next attempt given how many
// attempts have already run: the remaining budget split evenly over the
// attempts the policy still allows, floored at the minimum request timeout.
func (b *TimeoutBudget) PerAttempt(attemptsSoFar int) time.Duration {
	if attemptsSoFar < 0 {
		attemptsSoFar = 0
	}
	attemptsLeft := b.maxRetries - attemptsSoFar + 1
	if attemptsLeft < 1 {
		attemptsLeft = 1
	}
	slice := b.Remaining() / time.Duration(attemptsLeft)
	if slice < b.minRequest {
		return b.minRequest
	}
	return slice
}

// CapDelay bounds a backoff delay so a sleep never outlives the budget.
func (b *TimeoutBudget) CapDelay(delay time.Duration) time.Duration {
	if remaining := b.Remaining(); delay > remaining {
		return remaining
	}
	return delay
}

// Total returns the wall time the budget was created with.
func (b *TimeoutBudget) Total() time.Duration {
	return b.total
}

// MinRequest returns the per-attempt floor.
func (b *TimeoutBudget) MinRequest() time.Duration {
	return b.minRequest
}
