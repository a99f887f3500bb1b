package plugins

import (
	"context"
	"testing"

	"ailib/internal/errs"
	"ailib/internal/model"
	"ailib/internal/registry"
	"ailib/pkg/types"
)

func versioned(id, name, version string) model.Model {
	return model.NewFunc(types.ModelInfo{ID: id, Name: name, Version: version},
		func(context.Context, map[string]any, func(string) error) error { return nil })
}

func TestVersioningRetargets(t *testing.T) {
	reg := registry.New()
	v1 := versioned("chat-v1", "Chat", "1.0")
	_ = reg.Register(v1)
	_ = reg.Register(versioned("chat-v2", "Chat", "2.0"))
	_ = reg.Register(versioned("chatty", "Chatty", "2.0"))
	p := NewModelVersioning(reg)
	ctx := context.Background()

	req := newReq("r", "chat-v1", map[string]any{"modelVersion": "2.0"})
	if _, err := p.TransformRequest(ctx, v1, req); err != nil {
		t.Fatalf("transform: %v", err)
	}
	if req.Target() != "chat-v2" || req.ModelID != "chat-v1" {
		t.Fatalf("target=%s model=%s", req.Target(), req.ModelID)
	}

	p.Pin("Chat", "2.0")
	req = newReq("r2", "chat-v1", nil)
	_, _ = p.TransformRequest(ctx, v1, req)
	if req.Target() != "chat-v2" {
		t.Fatalf("pin ignored: %s", req.Target())
	}
	if v, ok := p.Pinned("Chat"); !ok || v != "2.0" {
		t.Fatalf("pinned = %q", v)
	}
	p.Pin("Chat", "")
	req = newReq("r3", "chat-v1", nil)
	_, _ = p.TransformRequest(ctx, v1, req)
	if req.Target() != "chat-v1" {
		t.Fatalf("unpinned request retargeted: %s", req.Target())
	}

	req = newReq("r4", "chat-v1", map[string]any{"modelVersion": "9.9"})
	if _, err := p.TransformRequest(ctx, v1, req); !errs.IsModelNotFound(err) {
		t.Fatalf("want ModelNotFound, got %v", err)
	}
}

func TestVersioningLeavesRoutedRequestAlone(t *testing.T) {
	reg := registry.New()
	v1 := versioned("chat-v1", "Chat", "1.0")
	_ = reg.Register(v1)
	_ = reg.Register(versioned("chat-v2", "Chat", "2.0"))
	p := NewModelVersioning(reg)
	req := newReq("r", "chat-v1", map[string]any{"modelVersion": "2.0"})
	req.Retarget("backup")
	if _, err := p.TransformRequest(context.Background(), v1, req); err != nil {
		t.Fatalf("transform: %v", err)
	}
	if req.Target() != "backup" {
		t.Fatalf("target=%s", req.Target())
	}
}
