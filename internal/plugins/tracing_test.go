package plugins

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"ailib/internal/plugin"
	"ailib/pkg/types"
)

func TestTracingSpanPerAttempt(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	p := NewTracing(tp)
	ctx := context.Background()
	m := echoModel("m")
	req := newReq("r1", "m", nil)

	_ = p.PreExecution(ctx, m, req)
	_, _ = p.TransformResponse(ctx, m, req, types.ResponseChunk{Content: "hi", IsComplete: true})
	_, _ = p.PostExecution(ctx, m, req, plugin.Result{Response: "hi", Err: errors.New("boom")})

	req.NextAttempt()
	_ = p.PreExecution(ctx, m, req)
	_, _ = p.PostExecution(ctx, m, req, plugin.Result{Response: "hello"})

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("want 2 spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error || len(spans[0].Events()) < 2 {
		t.Fatalf("first span: status %v events %d", spans[0].Status(), len(spans[0].Events()))
	}
	if spans[1].Status().Code != codes.Ok {
		t.Fatalf("second span status %v", spans[1].Status())
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[1].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["ailib.request_id"].AsString() != "r1" || attrs["ailib.attempt"].AsInt64() != 1 || attrs["ailib.response_bytes"].AsInt64() != 5 {
		t.Fatalf("attributes: %v", attrs)
	}
}

func TestTracingEndsAbortedAttempt(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	p := NewTracing(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	req := newReq("r", "m", nil)
	_ = p.PreExecution(context.Background(), echoModel("m"), req)
	_ = p.PreExecution(context.Background(), echoModel("m"), req)
	if got := rec.Ended(); len(got) != 1 || got[0].Status().Description != "aborted" {
		t.Fatalf("aborted span not closed: %d", len(got))
	}
}

func TestTracingAbortRecordsCause(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	p := NewTracing(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	req := newReq("r", "m", nil)
	_ = p.PreExecution(context.Background(), echoModel("m"), req)
	p.Abort(context.Background(), echoModel("m"), req, errors.New("rate limited"))
	got := rec.Ended()
	if len(got) != 1 || got[0].Status().Code != codes.Error || len(got[0].Events()) != 1 {
		t.Fatalf("aborted span: %d", len(got))
	}
	if _, ok := req.Annotation(spanKey); ok {
		t.Fatalf("span annotation kept after abort")
	}
}
