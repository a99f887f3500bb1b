package plugins

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"ailib/internal/config"
	"ailib/internal/errs"
	"ailib/internal/model"
	"ailib/internal/plugin"
	"ailib/pkg/types"
)

var breakerDoneKey = annotationKey(config.PluginCircuitBreaking, "done")

// BreakerOptions configures CircuitBreaking.
type BreakerOptions struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	Logger      zerolog.Logger
}

// CircuitBreaking fails fast for models that keep failing. Each model id
// gets its own breaker.
type CircuitBreaking struct {
	opts BreakerOptions

	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker
}

// NewCircuitBreaking builds the plugin.
func NewCircuitBreaking(o BreakerOptions) *CircuitBreaking {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 30 * time.Second
	}
	return &CircuitBreaking{opts: o, breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker)}
}

func (p *CircuitBreaking) Name() string { return config.PluginCircuitBreaking }

func (p *CircuitBreaking) breaker(modelID string) *gobreaker.TwoStepCircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cb, ok := p.breakers[modelID]; ok {
		return cb
	}
	threshold := uint32(p.opts.FailureThreshold)
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        modelID,
		MaxRequests: 1,
		Timeout:     p.opts.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= threshold },
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.opts.Logger.Warn().Str("model", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	p.breakers[modelID] = cb
	return cb
}

// State reports the breaker state for modelID.
func (p *CircuitBreaking) State(modelID string) gobreaker.State {
	return p.breaker(modelID).State()
}

func (p *CircuitBreaking) PreExecution(_ context.Context, _ model.Model, req *types.Request) error {
	p.settle(req, true)
	done, err := p.breaker(req.Target()).Allow()
	if err != nil {
		return errs.CircuitOpen(req.Target())
	}
	req.Annotate(breakerDoneKey, done)
	return nil
}

func (p *CircuitBreaking) PostExecution(_ context.Context, _ model.Model, req *types.Request, res plugin.Result) (plugin.Outcome, error) {
	// a caller hanging up says nothing about the model's health
	p.settle(req, res.Err == nil || errors.Is(res.Err, context.Canceled))
	return plugin.Outcome{}, nil
}

// Abort releases the half-open slot of a pass that never reached the model
// or was cut short by a hook. The model is not blamed.
func (p *CircuitBreaking) Abort(_ context.Context, _ model.Model, req *types.Request, _ error) {
	p.settle(req, true)
}

// settle reports the outstanding attempt of req, if any.
func (p *CircuitBreaking) settle(req *types.Request, success bool) {
	v, ok := req.Annotation(breakerDoneKey)
	if !ok {
		return
	}
	req.DeleteAnnotation(breakerDoneKey)
	v.(func(bool))(success)
}
