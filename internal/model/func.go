package model

import (
	"context"
	"errors"

	"ailib/pkg/types"
)

// GenerateFunc produces fragments by calling emit. Returning an error fails
// the request after the fragments already emitted.
type GenerateFunc func(ctx context.Context, params map[string]any, emit func(string) error) error

// Func adapts a GenerateFunc to Model.
type Func struct {
	Base
	Fn GenerateFunc
}

// NewFunc builds a model from metadata and a generator.
func NewFunc(info types.ModelInfo, fn GenerateFunc) *Func {
	return &Func{Base: Base{Meta: info}, Fn: fn}
}

// ExecuteRequest runs Fn in a goroutine. One fragment is held back so the
// final fragment itself carries IsComplete.
func (m *Func) ExecuteRequest(ctx context.Context, params map[string]any) (<-chan types.ResponseChunk, error) {
	if m.Fn == nil {
		return nil, errors.New("model " + m.ID() + " has no generator")
	}
	ch := make(chan types.ResponseChunk)
	go func() {
		defer close(ch)
		send := func(c types.ResponseChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		var pending *string
		emit := func(s string) error {
			if pending != nil && !send(types.ResponseChunk{Content: *pending}) {
				return ctx.Err()
			}
			pending = &s
			return nil
		}
		err := m.Fn(ctx, params, emit)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			if pending != nil && !send(types.ResponseChunk{Content: *pending}) {
				return
			}
			send(types.ResponseChunk{IsComplete: true, Err: err})
			return
		}
		last := types.ResponseChunk{IsComplete: true}
		if pending != nil {
			last.Content = *pending
		}
		send(last)
	}()
	return ch, nil
}
