package plugins

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ailib/internal/config"
	"ailib/internal/errs"
	"ailib/internal/model"
	"ailib/internal/plugin"
	"ailib/pkg/types"
)

// FailureRecorder is told about every failed attempt.
type FailureRecorder interface {
	RecordFailure(modelID string)
}

var retryCountKey = annotationKey(config.PluginAutomaticRetry, "retryCount")

// RetryCount returns how many retries the request has used.
func RetryCount(req *types.Request) int {
	v, _ := req.Annotation(retryCountKey)
	n, _ := v.(int)
	return n
}

// ResetRetries restarts the retry budget, e.g. before a fallback re-drive.
func ResetRetries(req *types.Request) { req.Annotate(retryCountKey, 0) }

// AutomaticRetry asks for a re-drive after a failed attempt, backing off
// exponentially, until MaxRetries is used up.
type AutomaticRetry struct {
	MaxRetries int
	BaseDelay  time.Duration
	Recorder   FailureRecorder
	Log        zerolog.Logger
}

func (p *AutomaticRetry) Name() string { return config.PluginAutomaticRetry }

// PreExecution starts the counter on the first attempt; re-drives keep it.
func (p *AutomaticRetry) PreExecution(_ context.Context, _ model.Model, req *types.Request) error {
	if _, ok := req.Annotation(retryCountKey); !ok {
		req.Annotate(retryCountKey, 0)
	}
	return nil
}

// retryable excludes failures another attempt cannot fix.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errs.IsModelNotFound(err), errs.IsDependencyUnavailable(err), errs.IsCircuitOpen(err):
		return false
	}
	return true
}

// PostExecution returns a retry outcome with delay BaseDelay*2^(n-1) for the
// n-th retry.
func (p *AutomaticRetry) PostExecution(ctx context.Context, _ model.Model, req *types.Request, res plugin.Result) (plugin.Outcome, error) {
	if res.Err == nil {
		return plugin.Outcome{}, nil
	}
	if p.Recorder != nil {
		p.Recorder.RecordFailure(req.Target())
	}
	n := RetryCount(req)
	if ctx.Err() != nil || !retryable(res.Err) || n >= p.MaxRetries {
		return plugin.Outcome{}, nil
	}
	n++
	req.Annotate(retryCountKey, n)
	delay := p.BaseDelay << (n - 1)
	p.Log.Info().Str("request_id", req.ID).Str("model", req.Target()).Int("retry", n).Dur("delay", delay).Err(res.Err).Msg("retrying request")
	return plugin.Outcome{Retry: true, Delay: delay}, nil
}
