package plugins

import (
	"context"
	"math"
	"sync"

	"ailib/internal/config"
	"ailib/internal/model"
	"ailib/internal/plugin"
	"ailib/pkg/types"
)

const (
	relaxFactor   = 0.9
	tightenFactor = 1.1
	maxBackoff    = 32.0
)

// AdaptiveRateLimiting is a RateLimiting whose refill rate is divided by a
// per-model backoff factor. Successes relax the factor towards 1; failures
// reported through RecordFailure tighten it.
type AdaptiveRateLimiting struct {
	*RateLimiting

	mu      sync.Mutex
	factors map[string]float64
}

// NewAdaptiveRateLimiting builds the adaptive limiter.
func NewAdaptiveRateLimiting(o RateLimitOptions) *AdaptiveRateLimiting {
	a := &AdaptiveRateLimiting{factors: make(map[string]float64)}
	a.RateLimiting = newRateLimiting(config.PluginAdaptiveRateLimiting, o)
	a.RateLimiting.factor = a.Backoff
	return a
}

// Backoff returns the current factor for modelID (at least 1).
func (a *AdaptiveRateLimiting) Backoff(modelID string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if f, ok := a.factors[modelID]; ok {
		return f
	}
	return 1
}

func (a *AdaptiveRateLimiting) scale(modelID string, by float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.factors[modelID]
	if !ok {
		f = 1
	}
	a.factors[modelID] = math.Min(maxBackoff, math.Max(1, f*by))
}

// RecordFailure tightens the limiter for modelID.
func (a *AdaptiveRateLimiting) RecordFailure(modelID string) {
	a.scale(modelID, tightenFactor)
	a.opts.Logger.Debug().Str("model", modelID).Float64("backoff", a.Backoff(modelID)).Msg("rate limit tightened")
}

// PostExecution relaxes the limiter after a successful call.
func (a *AdaptiveRateLimiting) PostExecution(_ context.Context, m model.Model, req *types.Request, res plugin.Result) (plugin.Outcome, error) {
	if res.Err == nil {
		a.scale(req.Target(), relaxFactor)
	}
	return plugin.Outcome{}, nil
}
