package config

import (
	"fmt"
	"maps"
	"reflect"
	"strings"
	"time"
)

// Plugin names recognised in the plugins section.
const (
	PluginRateLimiting          = "rateLimiting"
	PluginAdaptiveRateLimiting  = "adaptiveRateLimiting"
	PluginResponseCaching       = "responseCaching"
	PluginRequestBatching       = "requestBatching"
	PluginAutomaticRetry        = "automaticRetry"
	PluginStreamAggregation     = "streamAggregation"
	PluginMultiModelInference   = "multiModelInference"
	PluginPerformanceMonitoring = "performanceMonitoring"
	PluginModelVersioning       = "modelVersioning"
	PluginTracing               = "tracing"
	PluginCircuitBreaking       = "circuitBreaking"
)

// builtinEnabled is used when neither the plugins map nor a section flag
// decides.
var builtinEnabled = map[string]bool{
	PluginAutomaticRetry:        true,
	PluginStreamAggregation:     true,
	PluginMultiModelInference:   true,
	PluginPerformanceMonitoring: true,
}

// CacheOptions configures the response cache.
type CacheOptions struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	MaxSize int  `json:"max_size" yaml:"max_size" toml:"max_size"`
	TTLMS   int  `json:"ttl_ms" yaml:"ttl_ms" toml:"ttl_ms"`
	// Backend is "memory" (default) or "redis".
	Backend   string `json:"backend" yaml:"backend" toml:"backend"`
	RedisAddr string `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr"`
}

// BatchOptions configures request batching.
type BatchOptions struct {
	Enabled   bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	MaxSize   int  `json:"max_size" yaml:"max_size" toml:"max_size"`
	TimeoutMS int  `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
}

// RateLimitOptions configures the default token bucket.
type RateLimitOptions struct {
	Enabled          bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	MaxTokens        float64 `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	RefillRate       float64 `json:"refill_rate" yaml:"refill_rate" toml:"refill_rate"`
	RefillIntervalMS int     `json:"refill_interval_ms" yaml:"refill_interval_ms" toml:"refill_interval_ms"`
	// MaxWaitMS rejects acquisitions that would wait longer (0 = always wait).
	MaxWaitMS int `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
}

// TracingOptions configures the OpenTelemetry tracing plugin.
type TracingOptions struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	// Exporter is "stdout" or "none".
	Exporter string `json:"exporter" yaml:"exporter" toml:"exporter"`
}

// CircuitBreakerOptions configures the per-model circuit breakers.
type CircuitBreakerOptions struct {
	Enabled          bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	FailureThreshold int  `json:"failure_threshold" yaml:"failure_threshold" toml:"failure_threshold"`
	OpenTimeoutMS    int  `json:"open_timeout_ms" yaml:"open_timeout_ms" toml:"open_timeout_ms"`
}

// CORSOptions configures the HTTP CORS middleware.
type CORSOptions struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

// Config is an immutable snapshot of every tunable. Components receive a copy;
// updates replace the whole value through a Store.
type Config struct {
	// Server
	Addr         string      `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string      `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultModel string      `json:"default_model" yaml:"default_model" toml:"default_model"`
	MaxBodyBytes int64       `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	IngressRPS   float64     `json:"ingress_rps" yaml:"ingress_rps" toml:"ingress_rps"`
	IngressBurst int         `json:"ingress_burst" yaml:"ingress_burst" toml:"ingress_burst"`
	CORS         CORSOptions `json:"cors" yaml:"cors" toml:"cors"`
	Workers      int         `json:"workers" yaml:"workers" toml:"workers"`

	// Admission: per-model concurrency and the job backlog.
	MaxInflightPerModel int `json:"max_inflight_per_model" yaml:"max_inflight_per_model" toml:"max_inflight_per_model"`
	MaxQueueDepth       int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	AdmissionWaitMS     int `json:"admission_wait_ms" yaml:"admission_wait_ms" toml:"admission_wait_ms"`
	MaxPendingJobs      int `json:"max_pending_jobs" yaml:"max_pending_jobs" toml:"max_pending_jobs"`

	// Pipeline
	DefaultTimeoutMS      int    `json:"default_timeout_ms" yaml:"default_timeout_ms" toml:"default_timeout_ms"`
	MaxRetries            int    `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	RetryBaseDelayMS      int    `json:"retry_base_delay_ms" yaml:"retry_base_delay_ms" toml:"retry_base_delay_ms"`
	LogLevel              string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat             string `json:"log_format" yaml:"log_format" toml:"log_format"`
	MultiModelConcurrency int    `json:"multi_model_concurrency" yaml:"multi_model_concurrency" toml:"multi_model_concurrency"`
	AdaptiveRateLimit     bool   `json:"adaptive_rate_limit" yaml:"adaptive_rate_limit" toml:"adaptive_rate_limit"`

	CacheOptions     CacheOptions          `json:"cache_options" yaml:"cache_options" toml:"cache_options"`
	BatchOptions     BatchOptions          `json:"batch_options" yaml:"batch_options" toml:"batch_options"`
	RateLimitOptions RateLimitOptions      `json:"rate_limit_options" yaml:"rate_limit_options" toml:"rate_limit_options"`
	Tracing          TracingOptions        `json:"tracing" yaml:"tracing" toml:"tracing"`
	CircuitBreaker   CircuitBreakerOptions `json:"circuit_breaker" yaml:"circuit_breaker" toml:"circuit_breaker"`

	// Plugins overrides enablement per plugin name.
	Plugins map[string]bool `json:"plugins" yaml:"plugins" toml:"plugins"`
}

// Defaults returns the baseline configuration files are merged onto.
func Defaults() Config {
	return Config{
		Addr:                  ":8080",
		ModelsDir:             "~/models/llm",
		MaxBodyBytes:          1 << 20,
		Workers:               2,
		MaxQueueDepth:         32,
		AdmissionWaitMS:       30000,
		MaxPendingJobs:        1024,
		DefaultTimeoutMS:      30000,
		MaxRetries:            3,
		RetryBaseDelayMS:      1000,
		LogLevel:              "info",
		LogFormat:             "json",
		MultiModelConcurrency: 4,
		CacheOptions:          CacheOptions{Enabled: true, MaxSize: 100, TTLMS: 3600000, Backend: "memory"},
		BatchOptions:          BatchOptions{Enabled: false, MaxSize: 10, TimeoutMS: 100},
		RateLimitOptions:      RateLimitOptions{Enabled: true, MaxTokens: 10, RefillRate: 1, RefillIntervalMS: 1000},
		Tracing:               TracingOptions{Enabled: false, Exporter: "none"},
		CircuitBreaker:        CircuitBreakerOptions{Enabled: false, FailureThreshold: 5, OpenTimeoutMS: 30000},
	}
}

// IsZero reports whether c is the zero Config, i.e. nothing was set.
func (c Config) IsZero() bool { return reflect.ValueOf(c).IsZero() }

// WithDefaults fills zero numeric fields from Defaults. Boolean flags are
// left untouched.
func (c Config) WithDefaults() Config {
	d := Defaults()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = d.MaxQueueDepth
	}
	if c.AdmissionWaitMS <= 0 {
		c.AdmissionWaitMS = d.AdmissionWaitMS
	}
	if c.DefaultTimeoutMS <= 0 {
		c.DefaultTimeoutMS = d.DefaultTimeoutMS
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelayMS <= 0 {
		c.RetryBaseDelayMS = d.RetryBaseDelayMS
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.MultiModelConcurrency <= 0 {
		c.MultiModelConcurrency = d.MultiModelConcurrency
	}
	if c.CacheOptions.MaxSize <= 0 {
		c.CacheOptions.MaxSize = d.CacheOptions.MaxSize
	}
	if c.CacheOptions.TTLMS <= 0 {
		c.CacheOptions.TTLMS = d.CacheOptions.TTLMS
	}
	if c.CacheOptions.Backend == "" {
		c.CacheOptions.Backend = d.CacheOptions.Backend
	}
	if c.BatchOptions.MaxSize <= 0 {
		c.BatchOptions.MaxSize = d.BatchOptions.MaxSize
	}
	if c.BatchOptions.TimeoutMS <= 0 {
		c.BatchOptions.TimeoutMS = d.BatchOptions.TimeoutMS
	}
	if c.RateLimitOptions.MaxTokens <= 0 {
		c.RateLimitOptions.MaxTokens = d.RateLimitOptions.MaxTokens
	}
	if c.RateLimitOptions.RefillRate <= 0 {
		c.RateLimitOptions.RefillRate = d.RateLimitOptions.RefillRate
	}
	if c.RateLimitOptions.RefillIntervalMS <= 0 {
		c.RateLimitOptions.RefillIntervalMS = d.RateLimitOptions.RefillIntervalMS
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = d.Tracing.Exporter
	}
	if c.CircuitBreaker.FailureThreshold <= 0 {
		c.CircuitBreaker.FailureThreshold = d.CircuitBreaker.FailureThreshold
	}
	if c.CircuitBreaker.OpenTimeoutMS <= 0 {
		c.CircuitBreaker.OpenTimeoutMS = d.CircuitBreaker.OpenTimeoutMS
	}
	return c
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (want debug|info|warn|error)", c.LogLevel)
	}
	if c.DefaultTimeoutMS <= 0 {
		return fmt.Errorf("default_timeout_ms must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	switch c.CacheOptions.Backend {
	case "", "memory":
	case "redis":
		if c.CacheOptions.Enabled && c.CacheOptions.RedisAddr == "" {
			return fmt.Errorf("cache_options.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported cache backend %q", c.CacheOptions.Backend)
	}
	if c.RateLimitOptions.Enabled && c.RateLimitOptions.MaxTokens < 1 {
		return fmt.Errorf("rate_limit_options.max_tokens must be at least 1")
	}
	switch c.Tracing.Exporter {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("unsupported tracing exporter %q", c.Tracing.Exporter)
	}
	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	if c.Plugins != nil {
		out.Plugins = maps.Clone(c.Plugins)
	}
	out.CORS.AllowedOrigins = append([]string(nil), c.CORS.AllowedOrigins...)
	out.CORS.AllowedMethods = append([]string(nil), c.CORS.AllowedMethods...)
	out.CORS.AllowedHeaders = append([]string(nil), c.CORS.AllowedHeaders...)
	return out
}

// Enabled reports whether the named plugin is switched on. The plugins map
// wins over section flags, which win over built-in defaults.
func (c Config) Enabled(name string) bool {
	if v, ok := c.Plugins[name]; ok {
		return v
	}
	switch name {
	case PluginResponseCaching:
		return c.CacheOptions.Enabled
	case PluginRequestBatching:
		return c.BatchOptions.Enabled
	case PluginRateLimiting:
		return c.RateLimitOptions.Enabled && !c.AdaptiveRateLimit
	case PluginAdaptiveRateLimiting:
		return c.RateLimitOptions.Enabled && c.AdaptiveRateLimit
	case PluginTracing:
		return c.Tracing.Enabled
	case PluginCircuitBreaking:
		return c.CircuitBreaker.Enabled
	}
	return builtinEnabled[name]
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// DefaultTimeout is the per-invocation model timeout.
func (c Config) DefaultTimeout() time.Duration { return ms(c.DefaultTimeoutMS) }

// AdmissionWait bounds how long a request waits for a per-model slot.
func (c Config) AdmissionWait() time.Duration { return ms(c.AdmissionWaitMS) }

// RetryBaseDelay is the first backoff step of the retry plugin.
func (c Config) RetryBaseDelay() time.Duration { return ms(c.RetryBaseDelayMS) }

// CacheTTL is the lifetime of a cache entry.
func (c Config) CacheTTL() time.Duration { return ms(c.CacheOptions.TTLMS) }

// BatchTimeout is how long a partial batch waits before flushing.
func (c Config) BatchTimeout() time.Duration { return ms(c.BatchOptions.TimeoutMS) }

// RefillInterval is the token bucket refill period.
func (c Config) RefillInterval() time.Duration { return ms(c.RateLimitOptions.RefillIntervalMS) }

// RateLimitMaxWait bounds how long an acquisition may wait (0 = unbounded).
func (c Config) RateLimitMaxWait() time.Duration { return ms(c.RateLimitOptions.MaxWaitMS) }

// BreakerOpenTimeout is how long an open breaker stays open.
func (c Config) BreakerOpenTimeout() time.Duration { return ms(c.CircuitBreaker.OpenTimeoutMS) }
