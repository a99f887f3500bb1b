package manager

import (
	"context"
	"encoding/json"
	"io"

	"ailib/internal/plugins"
	"ailib/pkg/types"
)

// Infer executes req and writes NDJSON to w: one {"token": ...} line per
// chunk when streaming, then a final types.InferDone line. flusher, when
// non-nil, is called after every line.
func (m *Manager) Infer(ctx context.Context, req types.InferRequest, w io.Writer, flusher func()) error {
	writeLine := func(v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return err
		}
		if flusher != nil {
			flusher()
		}
		return nil
	}

	var yield func(types.ResponseChunk) error
	if req.Stream {
		yield = func(c types.ResponseChunk) error {
			if c.Content == "" {
				return nil
			}
			return writeLine(tokenLine{Token: c.Content})
		}
	}
	r, text, err := m.Execute(ctx, req.Model, req.ToParams(), yield)
	if err != nil {
		return err
	}
	done := types.InferDone{
		Done:       true,
		RequestID:  r.ID,
		Model:      r.Target(),
		Content:    text,
		Attempts:   r.Attempt() + 1,
		MultiModel: plugins.MultiModelResults(r),
	}
	return writeLine(done)
}

type tokenLine struct {
	Token string `json:"token"`
}
