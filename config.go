package saldo

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config mirrors the client's knobs for file and environment based setup.
// Zero values fall back to the defaults applied by New, so a partial file
// configures only what it names.
type Config struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	Jitter            float64       `mapstructure:"jitter"`

	Timeout           time.Duration `mapstructure:"timeout"`
	MinRequestTimeout time.Duration `mapstructure:"min_request_timeout"`

	CircuitBreaker CircuitBreakerSettings `mapstructure:"circuit_breaker"`
	Pool           PoolSettings           `mapstructure:"pool"`
	RateLimit      RateLimitSettings      `mapstructure:"rate_limit"`
	Cache          CacheSettings          `mapstructure:"cache"`
	Coalescing     CoalescingSettings     `mapstructure:"coalescing"`
	Auth           AuthSettings           `mapstructure:"auth"`

	// IdempotencyKeys is tri-state so a file can disable the default.
	IdempotencyKeys *bool `mapstructure:"idempotency_keys"`
	Metrics         bool  `mapstructure:"metrics"`
	Debug           bool  `mapstructure:"debug"`
}

// CircuitBreakerSettings configures the default per-endpoint breaker.
type CircuitBreakerSettings struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RollingWindow    time.Duration `mapstructure:"rolling_window"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	HalfOpenProbes   int           `mapstructure:"half_open_probes"`
}

// PoolSettings configures connection pool limits.
type PoolSettings struct {
	MaxPerHost   int `mapstructure:"max_per_host"`
	MaxTotal     int `mapstructure:"max_total"`
	MaxQueueSize int `mapstructure:"max_queue_size"`
}

// RateLimitSettings configures the sliding-window limiter.
type RateLimitSettings struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  int           `mapstructure:"max_requests"`
	Window       time.Duration `mapstructure:"window"`
	QueueExcess  bool          `mapstructure:"queue_excess"`
	MaxQueueSize int           `mapstructure:"max_queue_size"`
}

// CacheSettings configures the in-memory response cache.
type CacheSettings struct {
	Enabled    bool          `mapstructure:"enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// CoalescingSettings configures in-flight request merging.
type CoalescingSettings struct {
	Enabled bool          `mapstructure:"enabled"`
	Window  time.Duration `mapstructure:"window"`
}

// AuthSettings configures the access token manager.
type AuthSettings struct {
	TokenURL         string        `mapstructure:"token_url"`
	ClientID         string        `mapstructure:"client_id"`
	ClientSecret     string        `mapstructure:"client_secret"`
	RefreshThreshold time.Duration `mapstructure:"refresh_threshold"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// configKeys lists every configuration key so environment overrides resolve
// even when the file omits them.
var configKeys = []string{
	"max_retries",
	"initial_backoff",
	"max_backoff",
	"backoff_multiplier",
	"jitter",
	"timeout",
	"min_request_timeout",
	"circuit_breaker.failure_threshold",
	"circuit_breaker.rolling_window",
	"circuit_breaker.recovery_timeout",
	"circuit_breaker.success_threshold",
	"circuit_breaker.half_open_probes",
	"pool.max_per_host",
	"pool.max_total",
	"pool.max_queue_size",
	"rate_limit.enabled",
	"rate_limit.max_requests",
	"rate_limit.window",
	"rate_limit.queue_excess",
	"rate_limit.max_queue_size",
	"cache.enabled",
	"cache.ttl",
	"cache.max_entries",
	"coalescing.enabled",
	"coalescing.window",
	"auth.token_url",
	"auth.client_id",
	"auth.client_secret",
	"auth.refresh_threshold",
	"auth.request_timeout",
	"idempotency_keys",
	"metrics",
	"debug",
}

// LoadConfig reads a configuration file (format by extension: YAML, JSON or
// TOML) and applies SALDO_* environment overrides, dots in key paths mapped
// to underscores. An empty path loads from the environment alone.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SALDO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range configKeys {
		v.SetDefault(key, nil)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return config, nil
}

// Options converts the loaded configuration into functional options. Only
// values the configuration actually sets produce options.
func (c *Config) Options() []Option {
	var options []Option

	if c.MaxRetries > 0 {
		options = append(options, WithMaxRetries(c.MaxRetries))
	}
	if c.InitialBackoff > 0 {
		options = append(options, WithInitialBackoff(c.InitialBackoff))
	}
	if c.MaxBackoff > 0 {
		options = append(options, WithMaxBackoff(c.MaxBackoff))
	}
	if c.BackoffMultiplier > 0 {
		options = append(options, WithBackoffMultiplier(c.BackoffMultiplier))
	}
	if c.Jitter > 0 {
		options = append(options, WithJitter(c.Jitter))
	}
	if c.Timeout > 0 {
		options = append(options, WithTimeout(c.Timeout))
	}
	if c.MinRequestTimeout > 0 {
		options = append(options, WithMinRequestTimeout(c.MinRequestTimeout))
	}

	if c.CircuitBreaker != (CircuitBreakerSettings{}) {
		options = append(options, WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: c.CircuitBreaker.FailureThreshold,
			RollingWindow:    c.CircuitBreaker.RollingWindow,
			RecoveryTimeout:  c.CircuitBreaker.RecoveryTimeout,
			SuccessThreshold: c.CircuitBreaker.SuccessThreshold,
			HalfOpenProbes:   c.CircuitBreaker.HalfOpenProbes,
		}))
	}

	if c.Pool != (PoolSettings{}) {
		options = append(options, WithConnectionPool(ConnectionPoolConfig{
			MaxPerHost:   c.Pool.MaxPerHost,
			MaxTotal:     c.Pool.MaxTotal,
			MaxQueueSize: c.Pool.MaxQueueSize,
		}))
	}

	if c.RateLimit.Enabled {
		options = append(options, WithRateLimiter(RateLimiterConfig{
			MaxRequests:  c.RateLimit.MaxRequests,
			Window:       c.RateLimit.Window,
			QueueExcess:  c.RateLimit.QueueExcess,
			MaxQueueSize: c.RateLimit.MaxQueueSize,
		}))
	}

	if c.Cache.Enabled {
		ttl := c.Cache.TTL
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		options = append(options, WithCustomCache(NewInMemoryCache(c.Cache.MaxEntries), ttl))
	}

	if c.Coalescing.Enabled {
		options = append(options, WithCoalescing(c.Coalescing.Window))
	}

	if c.Auth.TokenURL != "" {
		options = append(options, WithAccessManager(AccessManagerConfig{
			TokenURL:         c.Auth.TokenURL,
			ClientID:         c.Auth.ClientID,
			ClientSecret:     c.Auth.ClientSecret,
			RefreshThreshold: c.Auth.RefreshThreshold,
			RequestTimeout:   c.Auth.RequestTimeout,
		}))
	}

	if c.IdempotencyKeys != nil {
		options = append(options, WithIdempotencyKeys(*c.IdempotencyKeys))
	}
	if c.Metrics {
		options = append(options, WithMetrics())
	}
	if c.Debug {
		options = append(options, WithSimpleLogger())
	}

	return options
}

// NewFromConfig constructs a client from a loaded configuration. Extra
// options apply on top and win on conflict.
func NewFromConfig(config *Config, extra ...Option) *Client {
	return New(append(config.Options(), extra...)...)
}
