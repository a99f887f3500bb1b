package plugin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ailib/internal/errs"
	"ailib/internal/model"
	"ailib/pkg/types"
)

// ErrStarted is returned by Use once the chain has run.
var ErrStarted = errors.New("plugins cannot be registered after traffic has started")

// Invoker starts the model for req. It may resolve a different model than m
// (for instance after req.ModelID was rewritten) and returns the one used.
type Invoker func(ctx context.Context, m model.Model, req *types.Request) (model.Model, <-chan types.ResponseChunk, error)

// HookError wraps a failure raised by a plugin hook.
type HookError struct {
	Plugin string
	Hook   string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("plugin %s %s: %v", e.Plugin, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

type entry struct {
	p    Plugin
	pre  PreExecutor
	req  RequestTransformer
	resp ResponseTransformer
	post PostExecutor
	abrt Aborter
}

// Manager holds the ordered plugin list. Registration order is fixed once
// the first request runs.
type Manager struct {
	mu      sync.Mutex
	entries []entry
	started bool
}

// NewManager returns an empty chain.
func NewManager() *Manager { return &Manager{} }

// Use appends p to the chain.
func (pm *Manager) Use(p Plugin) error {
	if p == nil {
		return errors.New("use: nil plugin")
	}
	name := p.Name()
	if strings.TrimSpace(name) == "" {
		return errors.New("use: plugin name is empty")
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.started {
		return ErrStarted
	}
	for _, e := range pm.entries {
		if e.p.Name() == name {
			return fmt.Errorf("use: plugin %q already registered", name)
		}
	}
	e := entry{p: p}
	e.pre, _ = p.(PreExecutor)
	e.req, _ = p.(RequestTransformer)
	e.resp, _ = p.(ResponseTransformer)
	e.post, _ = p.(PostExecutor)
	e.abrt, _ = p.(Aborter)
	pm.entries = append(pm.entries, e)
	return nil
}

// Names lists plugin names in registration order.
func (pm *Manager) Names() []string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]string, len(pm.entries))
	for i, e := range pm.entries {
		out[i] = e.p.Name()
	}
	return out
}

// Get returns the registered plugin called name.
func (pm *Manager) Get(name string) (Plugin, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, e := range pm.entries {
		if e.p.Name() == name {
			return e.p, true
		}
	}
	return nil, false
}

// snapshot freezes registration and returns the list the run iterates.
func (pm *Manager) snapshot() []entry {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.started = true
	return pm.entries
}

// Run drives one pass of the chain for req:
//
//  1. pre hooks and request transforms, in order;
//  2. invoke the model;
//  3. every chunk through the response transforms, in order, then yield;
//  4. post hooks in reverse order once the stream has ended.
//
// A hook error (or a yield error) aborts the pass immediately and is
// returned; post hooks are skipped and plugins whose pre hook already ran
// are told through Aborter, in reverse order. A model failure is not a hook error: it
// is carried in Result.Err and post hooks still run so they can react to it.
// The merged Outcome of the post hooks tells the caller whether to re-drive.
func (pm *Manager) Run(ctx context.Context, m model.Model, req *types.Request, invoke Invoker, yield func(types.ResponseChunk) error) (Outcome, Result, error) {
	entries := pm.snapshot()

	// abort notifies entries[:n] and passes err through.
	abort := func(n int, err error) error {
		for i := n - 1; i >= 0; i-- {
			if a := entries[i].abrt; a != nil {
				a.Abort(ctx, m, req, err)
			}
		}
		return err
	}

	for i, e := range entries {
		if e.pre != nil {
			if err := e.pre.PreExecution(ctx, m, req); err != nil {
				return Outcome{}, Result{}, abort(i, &HookError{Plugin: e.p.Name(), Hook: "preExecution", Err: err})
			}
		}
		if e.req != nil {
			next, err := e.req.TransformRequest(ctx, m, req)
			if err != nil {
				return Outcome{}, Result{}, abort(i+1, &HookError{Plugin: e.p.Name(), Hook: "transformRequest", Err: err})
			}
			if next != nil {
				req = next
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		res  Result
		sb   strings.Builder
		used = m
	)
	mm, ch, err := invoke(runCtx, m, req)
	if mm != nil {
		used = mm
	}
	if err != nil {
		res.Err = err
	} else {
		terminal := false
		for c := range ch {
			if c.Err != nil {
				res.Err = c.Err
				terminal = true
				break
			}
			c.RequestID = req.ID
			for _, e := range entries {
				if e.resp == nil {
					continue
				}
				if c, err = e.resp.TransformResponse(ctx, used, req, c); err != nil {
					return Outcome{}, Result{}, abort(len(entries), &HookError{Plugin: e.p.Name(), Hook: "transformResponse", Err: err})
				}
			}
			sb.WriteString(c.Content)
			if yield != nil {
				if err := yield(c); err != nil {
					return Outcome{}, Result{}, abort(len(entries), err)
				}
			}
			if c.IsComplete {
				terminal = true
				break
			}
		}
		if !terminal {
			res.Err = errs.ErrIncompleteStream
			if err := ctx.Err(); err != nil {
				res.Err = err
			}
		}
	}
	cancel()
	res.Response = sb.String()

	var out Outcome
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.post == nil {
			continue
		}
		o, err := e.post.PostExecution(ctx, used, req, res)
		if err != nil {
			return out, res, abort(i, &HookError{Plugin: e.p.Name(), Hook: "postExecution", Err: err})
		}
		out = out.Merge(o)
	}
	return out, res, nil
}
