package plugins

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ailib/internal/config"
	"ailib/internal/errs"
	"ailib/internal/model"
	"ailib/pkg/types"
)

// RateLimitOptions configures RateLimiting and AdaptiveRateLimiting.
type RateLimitOptions struct {
	Default types.RateLimit
	// MaxWait rejects an acquisition with a RateLimitError instead of waiting
	// longer than this. Zero waits as long as needed.
	MaxWait time.Duration
	Now     func() time.Time
	Sleep   SleepFunc
	Logger  zerolog.Logger
}

// bucket is mutated only by the holder of sem.
type bucket struct {
	sem    chan struct{}
	cfg    types.RateLimit
	tokens float64
	last   time.Time
}

// RateLimiting keeps one token bucket per model id.
type RateLimiting struct {
	name string
	opts RateLimitOptions
	// factor divides the refill rate; nil means 1.
	factor func(modelID string) float64

	mu        sync.Mutex
	buckets   map[string]*bucket
	overrides map[string]types.RateLimit
}

// NewRateLimiting builds the plain token bucket limiter.
func NewRateLimiting(o RateLimitOptions) *RateLimiting {
	return newRateLimiting(config.PluginRateLimiting, o)
}

func newRateLimiting(name string, o RateLimitOptions) *RateLimiting {
	if !o.Default.Valid() {
		o.Default = types.RateLimit{MaxTokens: 10, RefillRate: 1, RefillInterval: time.Second}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = Sleep
	}
	return &RateLimiting{
		name:      name,
		opts:      o,
		buckets:   make(map[string]*bucket),
		overrides: make(map[string]types.RateLimit),
	}
}

func (p *RateLimiting) Name() string { return p.name }

// SetModelRateLimit overrides the bucket settings for one model. An existing
// bucket is restarted full with the new settings.
func (p *RateLimiting) SetModelRateLimit(modelID string, rl types.RateLimit) error {
	if !rl.Valid() {
		return fmt.Errorf("invalid rate limit for %s: %+v", modelID, rl)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[modelID] = rl
	delete(p.buckets, modelID)
	return nil
}

// PreExecution takes one token for the model the request targets.
func (p *RateLimiting) PreExecution(ctx context.Context, m model.Model, req *types.Request) error {
	return p.Acquire(ctx, req.Target(), m)
}

func (p *RateLimiting) bucketFor(modelID string, m model.Model) *bucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.buckets[modelID]; ok {
		return b
	}
	cfg := p.opts.Default
	if rl, ok := m.(model.RateLimited); ok && m.ID() == modelID {
		if v, ok := rl.RateLimit(); ok {
			cfg = v
		}
	}
	if v, ok := p.overrides[modelID]; ok {
		cfg = v
	}
	b := &bucket{sem: make(chan struct{}, 1), cfg: cfg, tokens: cfg.MaxTokens, last: p.opts.Now()}
	p.buckets[modelID] = b
	return b
}

func (p *RateLimiting) effectiveRate(modelID string, cfg types.RateLimit) float64 {
	f := 1.0
	if p.factor != nil {
		f = max(p.factor(modelID), 1)
	}
	return cfg.RefillRate / f
}

// refill adds the tokens accrued since the last refill, capped at MaxTokens.
func (p *RateLimiting) refill(modelID string, b *bucket) {
	now := p.opts.Now()
	elapsed := now.Sub(b.last)
	if elapsed > 0 {
		added := float64(elapsed) / float64(b.cfg.RefillInterval) * p.effectiveRate(modelID, b.cfg)
		b.tokens = math.Min(b.cfg.MaxTokens, b.tokens+added)
	}
	b.last = now
}

// Acquire blocks until a token for modelID is available and consumes it.
// Callers for the same model are served one at a time.
func (p *RateLimiting) Acquire(ctx context.Context, modelID string, m model.Model) error {
	b := p.bucketFor(modelID, m)
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-b.sem }()

	for {
		p.refill(modelID, b)
		if b.tokens >= 1 {
			b.tokens--
			return nil
		}
		rate := p.effectiveRate(modelID, b.cfg)
		wait := time.Duration(math.Ceil((1 - b.tokens) * float64(b.cfg.RefillInterval) / rate))
		if p.opts.MaxWait > 0 && wait > p.opts.MaxWait {
			return errs.RateLimited(modelID, wait)
		}
		p.opts.Logger.Debug().Str("model", modelID).Dur("wait", wait).Msg("rate limit wait")
		if err := p.opts.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Tokens reports the tokens currently available for modelID, refilling
// first. Unknown models report their full default capacity.
func (p *RateLimiting) Tokens(modelID string) float64 {
	p.mu.Lock()
	b, ok := p.buckets[modelID]
	cfg := p.opts.Default
	if v, has := p.overrides[modelID]; has {
		cfg = v
	}
	p.mu.Unlock()
	if !ok {
		return cfg.MaxTokens
	}
	b.sem <- struct{}{}
	defer func() { <-b.sem }()
	p.refill(modelID, b)
	return b.tokens
}
