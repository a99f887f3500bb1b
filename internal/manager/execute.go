package manager

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ailib/internal/config"
	"ailib/internal/errs"
	"ailib/internal/model"
	"ailib/internal/notify"
	"ailib/internal/plugin"
	"ailib/internal/plugins"
	"ailib/pkg/types"
)

const (
	annResponse = "job.response"
	annError    = "job.error"
)

// resolve maps an empty id to the configured default and looks the model up.
func (m *Manager) resolve(modelID string) (model.Model, string, error) {
	if modelID == "" {
		modelID = m.store.Get().DefaultModel
	}
	md, ok := m.reg.GetByID(modelID)
	if !ok {
		return nil, modelID, errs.ModelNotFound(modelID)
	}
	return md, modelID, nil
}

// Execute runs one request synchronously. Chunks are handed to yield (which
// may be nil) as they are produced, after the response transforms. It
// returns the request and the full response text of the final attempt.
func (m *Manager) Execute(ctx context.Context, modelID string, params map[string]any, yield func(types.ResponseChunk) error) (*types.Request, string, error) {
	md, id, err := m.resolve(modelID)
	if err != nil {
		return nil, "", err
	}
	req := types.NewRequest(uuid.NewString(), id, params, yield != nil)
	m.queue.Claim(req)
	text, err := m.process(ctx, md, req, yield)
	return req, text, err
}

// ExecuteRequest starts a request and returns its chunk stream. Unknown
// models fail immediately; later failures arrive as a terminal chunk with
// Err set. The channel is closed when the request finishes.
func (m *Manager) ExecuteRequest(ctx context.Context, modelID string, params map[string]any) (<-chan types.ResponseChunk, error) {
	md, id, err := m.resolve(modelID)
	if err != nil {
		return nil, err
	}
	req := types.NewRequest(uuid.NewString(), id, params, true)
	m.queue.Claim(req)
	out := make(chan types.ResponseChunk, 16)
	go func() {
		defer close(out)
		_, err := m.process(ctx, md, req, func(c types.ResponseChunk) error {
			select {
			case out <- c:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case out <- types.ResponseChunk{RequestID: req.ID, IsComplete: true, Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Collect runs a request to completion and returns its text.
func (m *Manager) Collect(ctx context.Context, modelID string, params map[string]any) (string, error) {
	_, text, err := m.Execute(ctx, modelID, params, nil)
	return text, err
}

// process takes a claimed request through admission, the plugin chain and,
// on a terminal model failure, the registered fallback.
func (m *Manager) process(ctx context.Context, md model.Model, req *types.Request, yield func(types.ResponseChunk) error) (string, error) {
	cfg := m.store.Get()
	start := m.now()
	log := m.log.With().Str("request_id", req.ID).Str("model", req.ModelID).Logger()

	release := func() {}
	if !holds(ctx, req.ModelID) {
		var err error
		if release, err = m.adm.begin(ctx, req.ModelID); err != nil {
			m.finish(log, req, start, "", err)
			return "", err
		}
		ctx = withHeld(ctx, req.ModelID)
	}
	defer release()

	log.Info().Bool("stream", req.IsStreaming).Msg("execute start")
	m.publish(types.Event{Name: notify.EventRequestStart, RequestID: req.ID, ModelID: req.ModelID})

	res, err := m.drive(ctx, cfg, md, req, yield)
	if err == nil && res.Err != nil && m.canFallback(ctx, res.Err) {
		if fb, fm, ok := m.fallbackFor(req); ok {
			log.Warn().Err(res.Err).Str("fallback", fb).Msg("falling back")
			m.publish(types.Event{Name: notify.EventRequestRetry, RequestID: req.ID, ModelID: req.ModelID,
				Fields: map[string]any{"fallback": fb, "error": res.Err.Error()}})
			req.Retarget(fb)
			plugins.ResetRetries(req)
			req.NextAttempt()
			res, err = m.drive(ctx, cfg, fm, req, yield)
		}
	}
	if err == nil {
		err = res.Err
	}
	m.finish(log, req, start, res.Response, err)
	return res.Response, err
}

// drive runs the chain until it no longer asks for a retry. The returned
// error is a hook or yield abort; model failures are in Result.Err.
func (m *Manager) drive(ctx context.Context, cfg config.Config, md model.Model, req *types.Request, yield func(types.ResponseChunk) error) (plugin.Result, error) {
	invoke := m.invoker(cfg.DefaultTimeout())
	emit := func(c types.ResponseChunk) error {
		m.publish(types.Event{Name: notify.EventChunk, RequestID: req.ID, ModelID: req.Target(), Chunk: &c})
		if yield != nil {
			return yield(c)
		}
		return nil
	}
	for {
		req.ClearReplay()
		out, res, err := m.plugins.Run(ctx, md, req, invoke, emit)
		if err != nil {
			return res, err
		}
		if res.Err == nil || !out.Retry {
			return res, nil
		}
		m.publish(types.Event{Name: notify.EventRequestRetry, RequestID: req.ID, ModelID: req.Target(),
			Fields: map[string]any{"attempt": req.Attempt() + 1, "delay_ms": out.Delay.Milliseconds(), "error": res.Err.Error()}})
		if err := m.sleep(ctx, out.Delay); err != nil {
			return res, nil
		}
		req.NextAttempt()
	}
}

// canFallback excludes failures that a different model would not fix.
func (m *Manager) canFallback(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	return !errs.IsModelNotFound(err)
}

func (m *Manager) fallbackFor(req *types.Request) (string, model.Model, bool) {
	for _, id := range []string{req.Target(), req.ModelID} {
		fb, ok := m.reg.GetFallback(id)
		if !ok || fb == req.Target() {
			continue
		}
		if fm, ok := m.reg.GetByID(fb); ok {
			return fb, fm, true
		}
	}
	return "", nil, false
}

// finish records the terminal state in the queue, publishes it and logs it.
func (m *Manager) finish(log zerolog.Logger, req *types.Request, start time.Time, text string, err error) {
	dur := m.now().Sub(start)
	fields := map[string]any{"duration_ms": dur.Milliseconds(), "attempts": req.Attempt() + 1}
	if err != nil {
		m.queue.Fail(req.ID)
		req.Annotate(annError, err.Error())
		fields["error"] = err.Error()
		m.publish(types.Event{Name: notify.EventRequestFailed, RequestID: req.ID, ModelID: req.ModelID, Fields: fields})
		log.Warn().Err(err).Dur("duration", dur).Int("attempts", req.Attempt()+1).Msg("execute end")
		return
	}
	m.queue.Complete(req.ID)
	req.Annotate(annResponse, text)
	m.publish(types.Event{Name: notify.EventRequestDone, RequestID: req.ID, ModelID: req.ModelID, Fields: fields})
	log.Info().Dur("duration", dur).Int("attempts", req.Attempt()+1).Int("bytes", len(text)).Msg("execute end")
}
