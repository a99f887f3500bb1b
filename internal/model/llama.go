package model

import (
	"context"
	"path/filepath"
	"strings"

	"ailib/pkg/types"
)

// LlamaOptions are the runtime knobs shared by every local GGUF model.
type LlamaOptions struct {
	ContextSize int
	Threads     int
}

// generation holds the sampling parameters pulled out of a request.
type generation struct {
	Prompt        string
	MaxTokens     int
	TopK          int
	Seed          int
	Temperature   float32
	TopP          float32
	RepeatPenalty float32
	Stop          []string
}

func generationFrom(params map[string]any) generation {
	g := generation{Prompt: ParamString(params, "prompt"), Stop: ParamStrings(params, "stop")}
	g.MaxTokens, _ = ParamInt(params, "max_tokens")
	g.TopK, _ = ParamInt(params, "top_k")
	g.Seed, _ = ParamInt(params, "seed")
	if f, ok := ParamFloat(params, "temperature"); ok {
		g.Temperature = float32(f)
	}
	if f, ok := ParamFloat(params, "top_p"); ok {
		g.TopP = float32(f)
	}
	if f, ok := ParamFloat(params, "repeat_penalty"); ok {
		g.RepeatPenalty = float32(f)
	}
	return g
}

// Llama serves a GGUF file through llama.cpp. The weights are loaded on the
// first request (or by Open) and stay resident until Close.
type Llama struct {
	Base
	src *ggufSource
}

// NewLlama builds a model for a file discovered by registry.LoadDir.
func NewLlama(spec types.ModelSpec, opts LlamaOptions) *Llama {
	src := &ggufSource{path: spec.Path, opts: opts}
	name := spec.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(spec.Path), filepath.Ext(spec.Path))
	}
	var tags []string
	if spec.Quant != "" {
		tags = append(tags, spec.Quant)
	}
	cats := []string{"local"}
	if spec.Family != "" {
		cats = append(cats, spec.Family)
	}
	return &Llama{
		Base: Base{
			Meta: types.ModelInfo{
				ID:         spec.ID,
				Name:       name,
				Version:    spec.Version,
				Categories: cats,
				Tags:       tags,
			},
			Src: src,
		},
		src: src,
	}
}

// ExecuteRequest generates a completion for params["prompt"].
func (m *Llama) ExecuteRequest(ctx context.Context, params map[string]any) (<-chan types.ResponseChunk, error) {
	if err := m.src.Connect(ctx); err != nil {
		return nil, err
	}
	f := Func{Base: m.Base, Fn: func(ctx context.Context, p map[string]any, emit func(string) error) error {
		return m.src.predict(ctx, generationFrom(p), emit)
	}}
	return f.ExecuteRequest(ctx, params)
}
