//go:build !llama

package model

import (
	"context"

	"ailib/internal/errs"
)

// LlamaBuilt reports whether this binary can run GGUF models.
const LlamaBuilt = false

var errNoLlama = errs.DependencyUnavailable("llama support not built (missing 'llama' build tag)")

// ggufSource refuses to load anything in builds without the llama tag.
type ggufSource struct {
	path string
	opts LlamaOptions
}

func (s *ggufSource) Name() string { return s.path }
func (s *ggufSource) Type() string { return "gguf" }

func (s *ggufSource) Connect(context.Context) error    { return errNoLlama }
func (s *ggufSource) Disconnect(context.Context) error { return nil }

func (s *ggufSource) predict(ctx context.Context, _ generation, _ func(string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errNoLlama
}
