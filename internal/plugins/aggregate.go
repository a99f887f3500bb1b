package plugins

import (
	"context"
	"strings"

	"ailib/internal/config"
	"ailib/internal/model"
	"ailib/pkg/types"
)

var aggregateKey = annotationKey(config.PluginStreamAggregation, "buffer")

// StreamAggregation stamps every chunk with the text streamed so far.
type StreamAggregation struct{}

func (StreamAggregation) Name() string { return config.PluginStreamAggregation }

// PreExecution starts a fresh aggregate for each attempt.
func (StreamAggregation) PreExecution(_ context.Context, _ model.Model, req *types.Request) error {
	req.Annotate(aggregateKey, &strings.Builder{})
	return nil
}

func (StreamAggregation) TransformResponse(_ context.Context, _ model.Model, req *types.Request, c types.ResponseChunk) (types.ResponseChunk, error) {
	v, ok := req.Annotation(aggregateKey)
	sb, _ := v.(*strings.Builder)
	if !ok || sb == nil {
		sb = &strings.Builder{}
		req.Annotate(aggregateKey, sb)
	}
	sb.WriteString(c.Content)
	c.AggregatedContent = sb.String()
	return c, nil
}

// Aggregated returns the text aggregated for req so far.
func Aggregated(req *types.Request) string {
	v, _ := req.Annotation(aggregateKey)
	if sb, ok := v.(*strings.Builder); ok {
		return sb.String()
	}
	return ""
}
