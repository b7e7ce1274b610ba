package saldo

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds the Prometheus instruments for client observability.
// A nil collector is valid and turns every Record method into a no-op.
type MetricsCollector struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	requestsInFlight    *prometheus.GaugeVec
	retriesTotal        *prometheus.CounterVec
	retriesExhausted    *prometheus.CounterVec
	circuitBreakerState *prometheus.GaugeVec
	rateLimiterInWindow *prometheus.GaugeVec
	rateLimiterQueued   *prometheus.GaugeVec
	poolActive          *prometheus.GaugeVec
	poolQueued          prometheus.Gauge
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	cacheSize           *prometheus.GaugeVec
	coalescedTotal      *prometheus.CounterVec
	tokenRefreshTotal   *prometheus.CounterVec
	budgetExhausted     *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a collector registered against the default
// Prometheus registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector registered against the
// given registerer. Useful for tests and for embedding the client in an
// application with its own registry.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "saldo_requests_total",
				Help: "Total number of HTTP requests made by the client.",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "saldo_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "saldo_requests_in_flight",
				Help: "Number of requests currently being processed.",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "saldo_retries_total",
				Help: "Total number of retry attempts.",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		retriesExhausted: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "saldo_retries_exhausted_total",
				Help: "Total number of requests that ran out of retry attempts.",
			},
			[]string{"method", "endpoint"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "saldo_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"endpoint"},
		),
		rateLimiterInWindow: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "saldo_rate_limiter_in_window",
				Help: "Number of admissions inside the current rate limiter window.",
			},
			[]string{"limiter"},
		),
		rateLimiterQueued: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "saldo_rate_limiter_queued",
				Help: "Number of callers waiting for rate limiter admission.",
			},
			[]string{"limiter"},
		),
		poolActive: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "saldo_pool_active_connections",
				Help: "Number of connection slots currently held, per host.",
			},
			[]string{"host"},
		),
		poolQueued: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "saldo_pool_queued_waiters",
				Help: "Number of callers waiting for a connection slot.",
			},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "saldo_cache_hits_total",
				Help: "Total number of cache hits.",
			},
			[]string{"method", "endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "saldo_cache_misses_total",
				Help: "Total number of cache misses.",
			},
			[]string{"method", "endpoint"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "saldo_cache_size",
				Help: "Current number of entries in the cache.",
			},
			[]string{"name"},
		),
		coalescedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "saldo_coalesced_requests_total",
				Help: "Total number of requests served by joining an identical in-flight request.",
			},
			[]string{"method", "endpoint"},
		),
		tokenRefreshTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "saldo_token_refresh_total",
				Help: "Total number of access token refresh attempts.",
			},
			[]string{"outcome"},
		),
		budgetExhausted: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "saldo_timeout_budget_exhausted_total",
				Help: "Total number of requests abandoned because the timeout budget ran out.",
			},
			[]string{"method", "endpoint"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "saldo_errors_total",
				Help: "Total number of errors by type.",
			},
			[]string{"type", "method", "endpoint"},
		),
		registry: registry,
	}
}

// RecordRequest records a completed request with its status and duration.
func (m *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode), endpoint).Inc()
	m.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart marks a request as in flight.
func (m *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if m == nil {
		return
	}
	m.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd marks a request as no longer in flight.
func (m *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if m == nil {
		return
	}
	m.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry records a retry attempt.
func (m *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordRetriesExhausted records a request that gave up after its final attempt.
func (m *MetricsCollector) RecordRetriesExhausted(method, endpoint string) {
	if m == nil {
		return
	}
	m.retriesExhausted.WithLabelValues(method, endpoint).Inc()
}

// RecordCircuitBreakerState records the current state of an endpoint's breaker.
func (m *MetricsCollector) RecordCircuitBreakerState(endpoint string, state CircuitState) {
	if m == nil {
		return
	}
	var value float64
	switch state {
	case StateClosed:
		value = 0
	case StateOpen:
		value = 1
	case StateHalfOpen:
		value = 2
	}
	m.circuitBreakerState.WithLabelValues(endpoint).Set(value)
}

// RecordRateLimiterState records the window occupancy and queue depth of a limiter.
func (m *MetricsCollector) RecordRateLimiterState(limiter string, inWindow, queued int) {
	if m == nil {
		return
	}
	m.rateLimiterInWindow.WithLabelValues(limiter).Set(float64(inWindow))
	m.rateLimiterQueued.WithLabelValues(limiter).Set(float64(queued))
}

// RecordPoolState records the per-host slot usage and global waiter count.
func (m *MetricsCollector) RecordPoolState(host string, active, queued int) {
	if m == nil {
		return
	}
	m.poolActive.WithLabelValues(host).Set(float64(active))
	m.poolQueued.Set(float64(queued))
}

// RecordCacheHit records a response served from the cache.
func (m *MetricsCollector) RecordCacheHit(method, endpoint string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheMiss records a cache lookup that found nothing usable.
func (m *MetricsCollector) RecordCacheMiss(method, endpoint string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheSize records the current entry count of a named cache.
func (m *MetricsCollector) RecordCacheSize(name string, size int) {
	if m == nil {
		return
	}
	m.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordCoalescedRequest records a request that joined an in-flight duplicate
// instead of going to the network.
func (m *MetricsCollector) RecordCoalescedRequest(method, endpoint string) {
	if m == nil {
		return
	}
	m.coalescedTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordTokenRefresh records an access token refresh attempt by outcome
// ("success" or "failure").
func (m *MetricsCollector) RecordTokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.tokenRefreshTotal.WithLabelValues(outcome).Inc()
}

// RecordBudgetExhausted records a request abandoned because the remaining
// timeout budget could no longer fund an attempt.
func (m *MetricsCollector) RecordBudgetExhausted(method, endpoint string) {
	if m == nil {
		return
	}
	m.budgetExhausted.WithLabelValues(method, endpoint).Inc()
}

// RecordError records an error occurrence by category.
func (m *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}

// Registry returns the registerer the collector's instruments are bound to.
func (m *MetricsCollector) Registry() prometheus.Registerer {
	if m == nil {
		return nil
	}
	return m.registry
}
