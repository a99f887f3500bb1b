// Package plugin composes cross-cutting behaviours around a model call.
//
// A plugin implements Plugin plus any subset of PreExecutor,
// RequestTransformer, ResponseTransformer and PostExecutor. Capabilities are
// detected once when the plugin is registered.
package plugin

import (
	"context"
	"time"

	"ailib/internal/model"
	"ailib/pkg/types"
)

// Plugin names a plugin. Names are unique within a Manager.
type Plugin interface {
	Name() string
}

// PreExecutor runs before the model is invoked, in registration order.
type PreExecutor interface {
	PreExecution(ctx context.Context, m model.Model, req *types.Request) error
}

// RequestTransformer may replace the request. Later plugins see the result.
type RequestTransformer interface {
	TransformRequest(ctx context.Context, m model.Model, req *types.Request) (*types.Request, error)
}

// ResponseTransformer may rewrite each chunk, in registration order.
type ResponseTransformer interface {
	TransformResponse(ctx context.Context, m model.Model, req *types.Request, c types.ResponseChunk) (types.ResponseChunk, error)
}

// PostExecutor runs after the stream ends, in reverse registration order.
type PostExecutor interface {
	PostExecution(ctx context.Context, m model.Model, req *types.Request, res Result) (Outcome, error)
}

// Aborter is told when a pass ends early, after its pre hook ran but
// before its post hook could. err is the abort cause.
type Aborter interface {
	Abort(ctx context.Context, m model.Model, req *types.Request, err error)
}

// Result is what the model produced during one run of the chain.
type Result struct {
	// Response is the concatenated content of every chunk delivered.
	Response string
	// Err is the model failure, if any: an invocation error, an error chunk,
	// a timeout, or a stream that closed without a terminal chunk.
	Err error
}

// Outcome is a post hook's decision about the request.
type Outcome struct {
	Retry bool
	// Delay is how long the caller should wait before re-driving.
	Delay time.Duration
}

// Merge combines two outcomes: any retry wins and the longer delay is kept.
func (o Outcome) Merge(other Outcome) Outcome {
	return Outcome{Retry: o.Retry || other.Retry, Delay: max(o.Delay, other.Delay)}
}

// Hooks builds a plugin from functions. Nil fields are pass-through.
type Hooks struct {
	ID       string
	Pre      func(ctx context.Context, m model.Model, req *types.Request) error
	Request  func(ctx context.Context, m model.Model, req *types.Request) (*types.Request, error)
	Response func(ctx context.Context, m model.Model, req *types.Request, c types.ResponseChunk) (types.ResponseChunk, error)
	Post     func(ctx context.Context, m model.Model, req *types.Request, res Result) (Outcome, error)
}

func (h *Hooks) Name() string { return h.ID }

func (h *Hooks) PreExecution(ctx context.Context, m model.Model, req *types.Request) error {
	if h.Pre == nil {
		return nil
	}
	return h.Pre(ctx, m, req)
}

func (h *Hooks) TransformRequest(ctx context.Context, m model.Model, req *types.Request) (*types.Request, error) {
	if h.Request == nil {
		return req, nil
	}
	return h.Request(ctx, m, req)
}

func (h *Hooks) TransformResponse(ctx context.Context, m model.Model, req *types.Request, c types.ResponseChunk) (types.ResponseChunk, error) {
	if h.Response == nil {
		return c, nil
	}
	return h.Response(ctx, m, req, c)
}

func (h *Hooks) PostExecution(ctx context.Context, m model.Model, req *types.Request, res Result) (Outcome, error) {
	if h.Post == nil {
		return Outcome{}, nil
	}
	return h.Post(ctx, m, req, res)
}
