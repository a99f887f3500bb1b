// Package model defines the capability every back-end implements and a few
// ready-made implementations.
package model

import (
	"context"
	"slices"

	"ailib/pkg/types"
)

// Model produces an ordered stream of fragments for one set of params.
// The channel carries exactly one chunk with IsComplete set, and it is the
// last one. A chunk with a non-nil Err ends the stream as a failure.
// Implementations must stop producing when ctx is cancelled.
type Model interface {
	ID() string
	Info() types.ModelInfo
	ExecuteRequest(ctx context.Context, params map[string]any) (<-chan types.ResponseChunk, error)
}

// RateLimited is implemented by models that carry their own bucket settings.
type RateLimited interface {
	RateLimit() (types.RateLimit, bool)
}

// Source describes the connection backing a model. Its lifecycle belongs to
// the model; the registry never calls it.
type Source interface {
	Name() string
	Type() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Base carries the metadata half of a model. Embed it and add
// ExecuteRequest.
type Base struct {
	Meta  types.ModelInfo
	Limit types.RateLimit // zero value defers to the limiter default
	Src   Source
}

func (b *Base) ID() string { return b.Meta.ID }

// Info returns a copy of the metadata with the source name filled in.
func (b *Base) Info() types.ModelInfo {
	info := b.Meta
	info.Categories = slices.Clone(b.Meta.Categories)
	info.Tags = slices.Clone(b.Meta.Tags)
	if info.Source == "" && b.Src != nil {
		info.Source = b.Src.Name()
	}
	return info
}

// RateLimit reports the per-model bucket override, if one is set.
func (b *Base) RateLimit() (types.RateLimit, bool) { return b.Limit, b.Limit.Valid() }

// Open connects the source, if any.
func (b *Base) Open(ctx context.Context) error {
	if b.Src == nil {
		return nil
	}
	return b.Src.Connect(ctx)
}

// Close disconnects the source, if any.
func (b *Base) Close(ctx context.Context) error {
	if b.Src == nil {
		return nil
	}
	return b.Src.Disconnect(ctx)
}

// Stream returns a closed, fully buffered channel holding fragments as a
// well-formed response. The last fragment is terminal; with no fragments a
// single empty terminal chunk is produced.
func Stream(fragments ...string) <-chan types.ResponseChunk {
	n := max(len(fragments), 1)
	ch := make(chan types.ResponseChunk, n)
	if len(fragments) == 0 {
		ch <- types.ResponseChunk{IsComplete: true}
	}
	for i, f := range fragments {
		ch <- types.ResponseChunk{Content: f, IsComplete: i == len(fragments)-1}
	}
	close(ch)
	return ch
}

// Failed returns a stream made of fragments followed by a terminal error chunk.
func Failed(err error, fragments ...string) <-chan types.ResponseChunk {
	ch := make(chan types.ResponseChunk, len(fragments)+1)
	for _, f := range fragments {
		ch <- types.ResponseChunk{Content: f}
	}
	ch <- types.ResponseChunk{IsComplete: true, Err: err}
	close(ch)
	return ch
}
