package saldo

import (
	"path"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed means calls pass through normally.
	StateClosed CircuitState = iota
	// StateOpen means calls fail fast without touching the network.
	StateOpen
	// StateHalfOpen means a limited number of trial calls probe recovery.
	StateHalfOpen
)

// String returns the state name for logs and metric labels.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// StateChangeFunc observes breaker transitions. Called outside the breaker
// lock, so it may call back into the breaker safely.
type StateChangeFunc func(endpoint string, from, to CircuitState)

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures within RollingWindow that
	// trips the breaker.
	FailureThreshold int
	// RollingWindow bounds how long a failure counts toward the threshold.
	RollingWindow time.Duration
	// RecoveryTimeout is how long the breaker stays open before probing.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of trial successes that close the
	// breaker again.
	SuccessThreshold int
	// HalfOpenProbes caps concurrent trial calls while half-open.
	HalfOpenProbes int
	// OnStateChange, if set, is invoked on every transition.
	OnStateChange StateChangeFunc
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.RollingWindow == 0 {
		c.RollingWindow = 60 * time.Second
	}
	if c.RecoveryTimeout == 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	if c.HalfOpenProbes == 0 {
		c.HalfOpenProbes = 1
	}
	return c
}

// CircuitBreaker is the failure tripwire for a single endpoint key. While
// closed it counts failures over a rolling window; at the threshold it opens
// and fails calls fast until the recovery timeout elapses, then admits a
// bounded number of trial calls whose outcomes close or re-open it. All
// transitions for one endpoint are serialized under the breaker's mutex.
type CircuitBreaker struct {
	endpoint string
	config   CircuitBreakerConfig

	mu        sync.Mutex
	state     CircuitState
	failures  []time.Time
	successes int
	probes    int
	openedAt  time.Time
}

// NewCircuitBreaker creates a breaker for one endpoint key.
func NewCircuitBreaker(endpoint string, config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		endpoint: endpoint,
		config:   config.withDefaults(),
		state:    StateClosed,
	}
}

// Allow reports whether a call may proceed. In the open state it also
// performs the open-to-half-open transition once the recovery timeout has
// elapsed. Each half-open grant occupies one probe slot until the call's
// outcome is recorded.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()

	switch cb.state {
	case StateClosed:
		cb.mu.Unlock()
		return true

	case StateOpen:
		if time.Since(cb.openedAt) < cb.config.RecoveryTimeout {
			cb.mu.Unlock()
			return false
		}
		from := cb.transitionLocked(StateHalfOpen)
		cb.successes = 0
		cb.probes = 1
		cb.mu.Unlock()
		cb.notify(from, StateHalfOpen)
		return true

	case StateHalfOpen:
		if cb.probes >= cb.config.HalfOpenProbes {
			cb.mu.Unlock()
			return false
		}
		cb.probes++
		cb.mu.Unlock()
		return true

	default:
		cb.mu.Unlock()
		return false
	}
}

// RecordSuccess records a successful call outcome.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()

	if cb.state != StateHalfOpen {
		cb.mu.Unlock()
		return
	}

	if cb.probes > 0 {
		cb.probes--
	}
	cb.successes++
	if cb.successes < cb.config.SuccessThreshold {
		cb.mu.Unlock()
		return
	}

	from := cb.transitionLocked(StateClosed)
	cb.failures = cb.failures[:0]
	cb.successes = 0
	cb.probes = 0
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

// RecordFailure records a failed call outcome.
func (cb *CircuitBreaker) RecordFailure() {
	now := time.Now()
	cb.mu.Lock()

	switch cb.state {
	case StateClosed:
		cb.failures = append(cb.failures, now)
		cb.pruneLocked(now)
		if len(cb.failures) < cb.config.FailureThreshold {
			cb.mu.Unlock()
			return
		}
		from := cb.transitionLocked(StateOpen)
		cb.openedAt = now
		cb.failures = cb.failures[:0]
		cb.mu.Unlock()
		cb.notify(from, StateOpen)

	case StateHalfOpen:
		if cb.probes > 0 {
			cb.probes--
		}
		from := cb.transitionLocked(StateOpen)
		cb.openedAt = now
		cb.successes = 0
		cb.mu.Unlock()
		cb.notify(from, StateOpen)

	default:
		// Stragglers from calls admitted before the trip; the open clock
		// keeps running.
		cb.mu.Unlock()
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Endpoint returns the endpoint key this breaker guards.
func (cb *CircuitBreaker) Endpoint() string {
	return cb.endpoint
}

// FailureCount returns the failures currently inside the rolling window.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.pruneLocked(time.Now())
	return len(cb.failures)
}

// pruneLocked drops failures older than the rolling window. Caller holds mu.
func (cb *CircuitBreaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-cb.config.RollingWindow)
	i := 0
	for i < len(cb.failures) && cb.failures[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		cb.failures = append(cb.failures[:0], cb.failures[i:]...)
	}
}

// transitionLocked flips the state and returns the previous one. Caller
// holds mu and is responsible for notify after unlocking.
func (cb *CircuitBreaker) transitionLocked(to CircuitState) CircuitState {
	from := cb.state
	cb.state = to
	return from
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if cb.config.OnStateChange != nil && from != to {
		cb.config.OnStateChange(cb.endpoint, from, to)
	}
}

// CircuitBreakerOverride applies a different breaker configuration to
// endpoint keys matching Pattern (path.Match syntax, e.g.
// "api.ledger.example/v1/transactions/*").
type CircuitBreakerOverride struct {
	Pattern string
	Config  CircuitBreakerConfig
}

// CircuitBreakerGroup owns one breaker per endpoint key, created lazily on
// first use. Overrides are checked in order; the first matching pattern
// supplies that endpoint's configuration.
type CircuitBreakerGroup struct {
	defaults  CircuitBreakerConfig
	overrides []CircuitBreakerOverride

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerGroup creates a breaker group with the given default
// configuration and optional per-pattern overrides.
func NewCircuitBreakerGroup(defaults CircuitBreakerConfig, overrides ...CircuitBreakerOverride) *CircuitBreakerGroup {
	return &CircuitBreakerGroup{
		defaults:  defaults.withDefaults(),
		overrides: overrides,
		breakers:  make(map[string]*CircuitBreaker),
	}
}

// ForEndpoint returns the breaker guarding an endpoint key, creating it on
// first use.
func (g *CircuitBreakerGroup) ForEndpoint(endpoint string) *CircuitBreaker {
	g.mu.RLock()
	cb, ok := g.breakers[endpoint]
	g.mu.RUnlock()
	if ok {
		return cb
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cb, ok := g.breakers[endpoint]; ok {
		return cb
	}
	cb = NewCircuitBreaker(endpoint, g.configFor(endpoint))
	g.breakers[endpoint] = cb
	return cb
}

// States returns a snapshot of every known endpoint's state.
func (g *CircuitBreakerGroup) States() map[string]CircuitState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	states := make(map[string]CircuitState, len(g.breakers))
	for endpoint, cb := range g.breakers {
		states[endpoint] = cb.State()
	}
	return states
}

func (g *CircuitBreakerGroup) configFor(endpoint string) CircuitBreakerConfig {
	for _, o := range g.overrides {
		if matched, err := path.Match(o.Pattern, endpoint); err == nil && matched {
			config := o.Config.withDefaults()
			if o.Config.OnStateChange == nil {
				config.OnStateChange = g.defaults.OnStateChange
			}
			return config
		}
	}
	return g.defaults
}
