package plugins

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ailib/internal/config"
	"ailib/internal/model"
	"ailib/internal/plugin"
	"ailib/pkg/types"
)

const tracerName = "ailib/internal/plugins"

var spanKey = annotationKey(config.PluginTracing, "span")

// Tracing opens one span per attempt, from the first pre hook to the post
// hooks.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing uses tp, or the global provider when tp is nil.
func NewTracing(tp trace.TracerProvider) *Tracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracing{tracer: tp.Tracer(tracerName)}
}

func (p *Tracing) Name() string { return config.PluginTracing }

func (p *Tracing) PreExecution(ctx context.Context, _ model.Model, req *types.Request) error {
	// an attempt aborted by a later hook never reached PostExecution
	p.end(req, nil)
	_, span := p.tracer.Start(ctx, "ailib.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("ailib.request_id", req.ID),
			attribute.String("ailib.model_id", req.ModelID),
			attribute.Int("ailib.attempt", req.Attempt()),
			attribute.Bool("ailib.streaming", req.IsStreaming),
		))
	req.Annotate(spanKey, span)
	return nil
}

// Abort closes the span of a pass cut short by a later hook.
func (p *Tracing) Abort(_ context.Context, _ model.Model, req *types.Request, err error) {
	p.end(req, err)
}

func (p *Tracing) end(req *types.Request, err error) {
	v, ok := req.Annotation(spanKey)
	if !ok {
		return
	}
	req.DeleteAnnotation(spanKey)
	span := v.(trace.Span)
	if err != nil {
		span.RecordError(err)
	}
	span.SetStatus(codes.Error, "aborted")
	span.End()
}

func (p *Tracing) TransformResponse(_ context.Context, _ model.Model, req *types.Request, c types.ResponseChunk) (types.ResponseChunk, error) {
	if c.IsComplete {
		if v, ok := req.Annotation(spanKey); ok {
			v.(trace.Span).AddEvent("stream.complete")
		}
	}
	return c, nil
}

func (p *Tracing) PostExecution(_ context.Context, _ model.Model, req *types.Request, res plugin.Result) (plugin.Outcome, error) {
	v, ok := req.Annotation(spanKey)
	if !ok {
		return plugin.Outcome{}, nil
	}
	req.DeleteAnnotation(spanKey)
	span := v.(trace.Span)
	span.SetAttributes(
		attribute.String("ailib.target_model_id", req.Target()),
		attribute.Int("ailib.response_bytes", len(res.Response)),
	)
	if rp, ok := req.Replay(); ok {
		span.SetAttributes(attribute.String("ailib.replay_source", rp.Source))
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	return plugin.Outcome{}, nil
}
