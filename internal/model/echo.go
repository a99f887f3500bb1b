package model

import (
	"context"
	"strings"
	"time"

	"ailib/pkg/types"
)

// NewEcho returns a model that streams the prompt back word by word, pausing
// delay between words. It is the default model of a fresh server.
func NewEcho(id string, delay time.Duration) *Func {
	info := types.ModelInfo{
		ID:         id,
		Name:       "Echo",
		Version:    "1.0.0",
		Source:     "builtin",
		Categories: []string{"demo"},
		Tags:       []string{"echo", "fast"},
	}
	return NewFunc(info, func(ctx context.Context, params map[string]any, emit func(string) error) error {
		words := strings.Fields(ParamString(params, "prompt"))
		for i, w := range words {
			if i < len(words)-1 {
				w += " "
			}
			if delay > 0 {
				t := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
			}
			if err := emit(w); err != nil {
				return err
			}
		}
		return nil
	})
}
