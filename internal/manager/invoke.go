package manager

import (
	"context"
	"errors"
	"time"

	"ailib/internal/errs"
	"ailib/internal/model"
	"ailib/internal/plugin"
	"ailib/pkg/types"
)

// invoker resolves the request's current target and either replays an
// attached response or starts the model under timeout.
func (m *Manager) invoker(timeout time.Duration) plugin.Invoker {
	return func(ctx context.Context, _ model.Model, req *types.Request) (model.Model, <-chan types.ResponseChunk, error) {
		target, ok := m.reg.GetByID(req.Target())
		if !ok {
			return nil, nil, errs.ModelNotFound(req.Target())
		}
		if rp, ok := req.Replay(); ok {
			if rp.Err != nil {
				return target, model.Failed(rp.Err, rp.Fragments...), nil
			}
			return target, model.Stream(rp.Fragments...), nil
		}
		ch, err := m.start(ctx, target, req.Params, timeout)
		return target, ch, err
	}
}

// start runs md and forwards its chunks until the terminal one. When the
// timeout fires first the model's context is cancelled and a terminal
// RequestTimeoutError chunk is emitted; cancellation by the caller just
// closes the stream.
func (m *Manager) start(ctx context.Context, md model.Model, params map[string]any, timeout time.Duration) (<-chan types.ResponseChunk, error) {
	tctx, cancel := context.WithCancel(ctx)
	if timeout > 0 {
		cancel()
		tctx, cancel = context.WithTimeout(ctx, timeout)
	}
	timedOut := func() bool {
		return errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	}

	src, err := md.ExecuteRequest(tctx, params)
	if err != nil {
		defer cancel()
		if timedOut() {
			return nil, errs.RequestTimeout(md.ID(), timeout)
		}
		return nil, err
	}

	out := make(chan types.ResponseChunk)
	go func() {
		defer close(out)
		defer cancel()
		send := func(c types.ResponseChunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			select {
			case c, ok := <-src:
				if !ok {
					return
				}
				if c.Err != nil && timedOut() {
					c.Err = errs.RequestTimeout(md.ID(), timeout)
				}
				if !send(c) || c.IsComplete || c.Err != nil {
					return
				}
			case <-tctx.Done():
				if timedOut() {
					send(types.ResponseChunk{IsComplete: true, Err: errs.RequestTimeout(md.ID(), timeout)})
				}
				return
			}
		}
	}()
	return out, nil
}

// dispatch executes a batched request directly against its target and
// collects the fragments for replay.
func (m *Manager) dispatch(ctx context.Context, req *types.Request) ([]string, error) {
	md, ok := m.reg.GetByID(req.Target())
	if !ok {
		return nil, errs.ModelNotFound(req.Target())
	}
	ch, err := m.start(ctx, md, req.Params, m.store.Get().DefaultTimeout())
	if err != nil {
		return nil, err
	}
	var frags []string
	for c := range ch {
		if c.Err != nil {
			return frags, c.Err
		}
		frags = append(frags, c.Content)
		if c.IsComplete {
			return frags, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return frags, err
	}
	return frags, errs.ErrIncompleteStream
}
