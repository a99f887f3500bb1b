//go:build llama

package model

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// LlamaBuilt reports whether this binary can run GGUF models.
const LlamaBuilt = true

// ggufSource owns the loaded weights. llama.cpp contexts are not safe for
// concurrent prediction, so predict holds mu for the whole generation.
type ggufSource struct {
	path string
	opts LlamaOptions

	mu    sync.Mutex
	model *llama.LLama
}

func (s *ggufSource) Name() string { return s.path }
func (s *ggufSource) Type() string { return "gguf" }

func (s *ggufSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model != nil {
		return nil
	}
	if strings.TrimSpace(s.path) == "" {
		return errors.New("model path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := llama.New(s.path, llama.SetContext(zn(s.opts.ContextSize, 2048)))
	if err != nil {
		return err
	}
	s.model = m
	return nil
}

func (s *ggufSource) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	return nil
}

func (s *ggufSource) predict(ctx context.Context, g generation, emit func(string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return errors.New("llama model not initialized")
	}
	var emitErr error
	s.model.SetTokenCallback(func(tok string) bool {
		if ctx.Err() != nil {
			return false
		}
		if err := emit(tok); err != nil {
			emitErr = err
			return false
		}
		return true
	})
	_, err := s.model.Predict(g.Prompt, predictOptions(g, s.opts.Threads)...)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if emitErr != nil {
		return emitErr
	}
	return err
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions converts request parameters into go-llama.cpp options.
func predictOptions(g generation, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(zn(g.MaxTokens, 128)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(zf(g.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(g.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(g.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(g.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if g.Seed != 0 {
		po = append(po, llama.SetSeed(g.Seed))
	}
	if len(g.Stop) > 0 {
		po = append(po, llama.SetStopWords(g.Stop...))
	}
	return po
}
