package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"ailib/internal/config"
	"ailib/internal/model"
	"ailib/internal/plugin"
	"ailib/internal/plugins"
	"ailib/internal/registry"
	"ailib/pkg/types"
)

// ManagerConfig encapsulates all tunables for Manager construction. Zero
// fields fall back to package defaults.
type ManagerConfig struct {
	// Config is the initial snapshot; ignored when Store is set. A zero
	// Config means Defaults; otherwise only zero numeric fields are filled.
	Config config.Config
	Store  *config.Store

	Registry *registry.Registry
	// Models are registered on construction.
	Models []model.Model
	// Plugins replaces the default chain when non-nil.
	Plugins []plugin.Plugin
	// RateLimits overrides bucket settings per model id.
	RateLimits map[string]types.RateLimit

	Logger         *zerolog.Logger
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider
	// RedisClient backs the shared cache; when nil and the config selects
	// the redis backend a client is created from cache_options.redis_addr.
	RedisClient redis.UniversalClient

	// Sleep waits between retries; tests inject a fake.
	Sleep plugins.SleepFunc
	Now   func() time.Time
}

// defaultPlugins builds the chain enabled in cfg, in this order:
// monitoring, tracing, circuit breaking, rate limiting, versioning, cache,
// batching, multi-model, retry, aggregation.
func (m *Manager) defaultPlugins(cfg config.Config, mc ManagerConfig) []plugin.Plugin {
	var out []plugin.Plugin
	if cfg.Enabled(config.PluginPerformanceMonitoring) {
		m.monitor = plugins.NewPerformanceMonitoring(plugins.MonitoringOptions{Registerer: mc.Registerer, Now: mc.Now})
		out = append(out, m.monitor)
	}
	if cfg.Enabled(config.PluginTracing) {
		out = append(out, plugins.NewTracing(mc.TracerProvider))
	}
	if cfg.Enabled(config.PluginCircuitBreaking) {
		out = append(out, plugins.NewCircuitBreaking(plugins.BreakerOptions{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			OpenTimeout:      cfg.BreakerOpenTimeout(),
			Logger:           m.log,
		}))
	}

	var recorder plugins.FailureRecorder
	rlOpts := plugins.RateLimitOptions{
		Default: types.RateLimit{
			MaxTokens:      cfg.RateLimitOptions.MaxTokens,
			RefillRate:     cfg.RateLimitOptions.RefillRate,
			RefillInterval: cfg.RefillInterval(),
		},
		MaxWait: cfg.RateLimitMaxWait(),
		Now:     mc.Now,
		Logger:  m.log,
	}
	var limiter *plugins.RateLimiting
	switch {
	case cfg.Enabled(config.PluginAdaptiveRateLimiting):
		a := plugins.NewAdaptiveRateLimiting(rlOpts)
		recorder, limiter = a, a.RateLimiting
		out = append(out, a)
	case cfg.Enabled(config.PluginRateLimiting):
		limiter = plugins.NewRateLimiting(rlOpts)
		out = append(out, limiter)
	}
	if limiter != nil {
		for id, rl := range mc.RateLimits {
			if err := limiter.SetModelRateLimit(id, rl); err != nil {
				m.log.Warn().Err(err).Msg("ignoring rate limit override")
			}
		}
	}

	if cfg.Enabled(config.PluginModelVersioning) {
		out = append(out, plugins.NewModelVersioning(m.reg))
	}
	if cfg.Enabled(config.PluginResponseCaching) {
		out = append(out, plugins.NewResponseCaching(m.cacheStore(cfg, mc), m.log))
	}
	if cfg.Enabled(config.PluginRequestBatching) {
		out = append(out, plugins.NewRequestBatching(plugins.BatchOptions{
			MaxSize:  cfg.BatchOptions.MaxSize,
			Timeout:  cfg.BatchTimeout(),
			Dispatch: m.dispatch,
			Logger:   m.log,
		}))
	}
	if cfg.Enabled(config.PluginMultiModelInference) {
		out = append(out, &plugins.MultiModelInference{Exec: m, Concurrency: cfg.MultiModelConcurrency})
	}
	if cfg.Enabled(config.PluginAutomaticRetry) {
		out = append(out, &plugins.AutomaticRetry{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay(),
			Recorder:   recorder,
			Log:        m.log,
		})
	}
	if cfg.Enabled(config.PluginStreamAggregation) {
		out = append(out, plugins.StreamAggregation{})
	}
	return out
}

func (m *Manager) cacheStore(cfg config.Config, mc ManagerConfig) plugins.CacheStore {
	if cfg.CacheOptions.Backend == "redis" {
		client := mc.RedisClient
		if client == nil {
			client = redis.NewClient(&redis.Options{Addr: cfg.CacheOptions.RedisAddr})
			m.ownedRedis = client
		}
		return plugins.NewRedisStore(client, "", cfg.CacheTTL())
	}
	return plugins.NewMemoryStore(cfg.CacheOptions.MaxSize, cfg.CacheTTL())
}
