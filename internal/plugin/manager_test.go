package plugin

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ailib/internal/errs"
	"ailib/internal/model"
	"ailib/pkg/types"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.calls, ",")
}

func recording(name string, log *callLog) *Hooks {
	return &Hooks{
		ID: name,
		Pre: func(context.Context, model.Model, *types.Request) error {
			log.add("pre:" + name)
			return nil
		},
		Request: func(_ context.Context, _ model.Model, r *types.Request) (*types.Request, error) {
			log.add("req:" + name)
			return r, nil
		},
		Response: func(_ context.Context, _ model.Model, _ *types.Request, c types.ResponseChunk) (types.ResponseChunk, error) {
			log.add("resp:" + name)
			return c, nil
		},
		Post: func(context.Context, model.Model, *types.Request, Result) (Outcome, error) {
			log.add("post:" + name)
			return Outcome{}, nil
		},
	}
}

func streamInvoker(fragments ...string) Invoker {
	return func(_ context.Context, m model.Model, _ *types.Request) (model.Model, <-chan types.ResponseChunk, error) {
		return m, model.Stream(fragments...), nil
	}
}

var testModel = model.NewEcho("m", 0)

func TestRunOrdering(t *testing.T) {
	log := &callLog{}
	pm := NewManager()
	_ = pm.Use(recording("A", log))
	_ = pm.Use(recording("B", log))
	req := types.NewRequest("r1", "m", nil, true)

	var got []types.ResponseChunk
	_, res, err := pm.Run(context.Background(), testModel, req, streamInvoker("x", "y"), func(c types.ResponseChunk) error {
		got = append(got, c)
		return nil
	})
	if err != nil || res.Err != nil {
		t.Fatalf("run: %v %v", err, res.Err)
	}
	want := "pre:A,req:A,pre:B,req:B,resp:A,resp:B,resp:A,resp:B,post:B,post:A"
	if log.String() != want {
		t.Fatalf("order:\n got %s\nwant %s", log, want)
	}
	if res.Response != "xy" || len(got) != 2 || got[0].RequestID != "r1" || !got[1].IsComplete {
		t.Fatalf("unexpected output %q %+v", res.Response, got)
	}
}

func TestTransformsCompose(t *testing.T) {
	pm := NewManager()
	upper := &Hooks{ID: "upper", Response: func(_ context.Context, _ model.Model, _ *types.Request, c types.ResponseChunk) (types.ResponseChunk, error) {
		c.Content = strings.ToUpper(c.Content)
		return c, nil
	}}
	bang := &Hooks{ID: "bang", Response: func(_ context.Context, _ model.Model, _ *types.Request, c types.ResponseChunk) (types.ResponseChunk, error) {
		c.Content += "!"
		return c, nil
	}}
	swap := &Hooks{ID: "swap", Request: func(_ context.Context, _ model.Model, r *types.Request) (*types.Request, error) {
		return types.NewRequest(r.ID, "other", map[string]any{"seen": true}, r.IsStreaming), nil
	}}
	var seenByInvoker *types.Request
	inv := func(_ context.Context, m model.Model, r *types.Request) (model.Model, <-chan types.ResponseChunk, error) {
		seenByInvoker = r
		return m, model.Stream("a"), nil
	}
	for _, p := range []Plugin{swap, upper, bang} {
		if err := pm.Use(p); err != nil {
			t.Fatalf("use: %v", err)
		}
	}
	_, res, err := pm.Run(context.Background(), testModel, types.NewRequest("r", "m", nil, false), inv, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Response != "A!" {
		t.Fatalf("response %q", res.Response)
	}
	if seenByInvoker.ModelID != "other" {
		t.Fatalf("invoker did not see transformed request")
	}
}

func TestHookErrorAbortsWithoutPost(t *testing.T) {
	log := &callLog{}
	boom := errors.New("boom")
	pm := NewManager()
	_ = pm.Use(recording("A", log))
	_ = pm.Use(&Hooks{ID: "bad", Pre: func(context.Context, model.Model, *types.Request) error { return boom }})
	_ = pm.Use(recording("C", log))
	invoked := false
	inv := func(_ context.Context, m model.Model, _ *types.Request) (model.Model, <-chan types.ResponseChunk, error) {
		invoked = true
		return m, model.Stream("a"), nil
	}
	_, _, err := pm.Run(context.Background(), testModel, types.NewRequest("r", "m", nil, false), inv, nil)
	var he *HookError
	if !errors.As(err, &he) || he.Plugin != "bad" || !errors.Is(err, boom) {
		t.Fatalf("want HookError wrapping boom, got %v", err)
	}
	if invoked || log.String() != "pre:A,req:A" {
		t.Fatalf("chain continued after error: invoked=%v log=%s", invoked, log)
	}
}

func TestModelFailureStillRunsPost(t *testing.T) {
	boom := errors.New("model down")
	cases := map[string]Invoker{
		"invoke error": func(_ context.Context, m model.Model, _ *types.Request) (model.Model, <-chan types.ResponseChunk, error) {
			return m, nil, boom
		},
		"error chunk": func(_ context.Context, m model.Model, _ *types.Request) (model.Model, <-chan types.ResponseChunk, error) {
			return m, model.Failed(boom, "part"), nil
		},
	}
	for name, inv := range cases {
		var seen Result
		pm := NewManager()
		_ = pm.Use(&Hooks{ID: "p", Post: func(_ context.Context, _ model.Model, _ *types.Request, r Result) (Outcome, error) {
			seen = r
			return Outcome{Retry: true, Delay: time.Second}, nil
		}})
		out, res, err := pm.Run(context.Background(), testModel, types.NewRequest("r", "m", nil, false), inv, nil)
		if err != nil {
			t.Fatalf("%s: hook error %v", name, err)
		}
		if !errors.Is(res.Err, boom) || !errors.Is(seen.Err, boom) {
			t.Fatalf("%s: result err %v seen %v", name, res.Err, seen.Err)
		}
		if !out.Retry || out.Delay != time.Second {
			t.Fatalf("%s: outcome %+v", name, out)
		}
	}
}

func TestIncompleteStream(t *testing.T) {
	pm := NewManager()
	inv := func(_ context.Context, m model.Model, _ *types.Request) (model.Model, <-chan types.ResponseChunk, error) {
		ch := make(chan types.ResponseChunk, 1)
		ch <- types.ResponseChunk{Content: "half"}
		close(ch)
		return m, ch, nil
	}
	_, res, err := pm.Run(context.Background(), testModel, types.NewRequest("r", "m", nil, false), inv, nil)
	if err != nil || !errors.Is(res.Err, errs.ErrIncompleteStream) || res.Response != "half" {
		t.Fatalf("got %v %v %q", err, res.Err, res.Response)
	}
}

func TestStopsReadingAfterTerminalChunk(t *testing.T) {
	pm := NewManager()
	inv := func(ctx context.Context, m model.Model, _ *types.Request) (model.Model, <-chan types.ResponseChunk, error) {
		ch := make(chan types.ResponseChunk)
		go func() {
			defer close(ch)
			ch <- types.ResponseChunk{Content: "done", IsComplete: true}
			select {
			case ch <- types.ResponseChunk{Content: "late"}:
			case <-ctx.Done():
			}
		}()
		return m, ch, nil
	}
	_, res, _ := pm.Run(context.Background(), testModel, types.NewRequest("r", "m", nil, false), inv, nil)
	if res.Response != "done" {
		t.Fatalf("content after terminal chunk leaked: %q", res.Response)
	}
}

func TestUseRules(t *testing.T) {
	pm := NewManager()
	if err := pm.Use(nil); err == nil {
		t.Fatalf("nil plugin accepted")
	}
	if err := pm.Use(&Hooks{}); err == nil {
		t.Fatalf("unnamed plugin accepted")
	}
	_ = pm.Use(&Hooks{ID: "a"})
	if err := pm.Use(&Hooks{ID: "a"}); err == nil {
		t.Fatalf("duplicate accepted")
	}
	if _, ok := pm.Get("a"); !ok {
		t.Fatalf("get failed")
	}
	_, _, _ = pm.Run(context.Background(), testModel, types.NewRequest("r", "m", nil, false), streamInvoker("x"), nil)
	if err := pm.Use(&Hooks{ID: "b"}); !errors.Is(err, ErrStarted) {
		t.Fatalf("want ErrStarted, got %v", err)
	}
	if n := pm.Names(); len(n) != 1 || n[0] != "a" {
		t.Fatalf("names %v", n)
	}
}

func TestYieldErrorAborts(t *testing.T) {
	pm := NewManager()
	postRan := false
	_ = pm.Use(&Hooks{ID: "p", Post: func(context.Context, model.Model, *types.Request, Result) (Outcome, error) {
		postRan = true
		return Outcome{}, nil
	}})
	gone := errors.New("client gone")
	_, _, err := pm.Run(context.Background(), testModel, types.NewRequest("r", "m", nil, false), streamInvoker("a", "b"),
		func(types.ResponseChunk) error { return gone })
	if !errors.Is(err, gone) || postRan {
		t.Fatalf("err=%v postRan=%v", err, postRan)
	}
}

type abortRecorder struct {
	*Hooks
	log *callLog
}

func (a abortRecorder) Abort(_ context.Context, _ model.Model, _ *types.Request, err error) {
	a.log.add("abort:" + a.ID + ":" + err.Error())
}

func TestAbortNotifiesStartedPlugins(t *testing.T) {
	log := &callLog{}
	pm := NewManager()
	_ = pm.Use(abortRecorder{recording("A", log), log})
	_ = pm.Use(abortRecorder{&Hooks{ID: "B", Request: func(context.Context, model.Model, *types.Request) (*types.Request, error) {
		return nil, errors.New("no")
	}}, log})
	_ = pm.Use(abortRecorder{recording("C", log), log})
	_, _, err := pm.Run(context.Background(), testModel, types.NewRequest("r", "m", nil, false), streamInvoker("a"), nil)
	if err == nil {
		t.Fatalf("want error")
	}
	want := "pre:A,req:A,abort:B:plugin B transformRequest: no,abort:A:plugin B transformRequest: no"
	if log.String() != want {
		t.Fatalf("got %s\nwant %s", log, want)
	}
}

func TestAbortAfterYieldErrorReachesEveryPlugin(t *testing.T) {
	log := &callLog{}
	pm := NewManager()
	_ = pm.Use(abortRecorder{&Hooks{ID: "A"}, log})
	_ = pm.Use(abortRecorder{&Hooks{ID: "B"}, log})
	stop := errors.New("client gone")
	_, _, err := pm.Run(context.Background(), testModel, types.NewRequest("r", "m", nil, true), streamInvoker("a", "b"), func(types.ResponseChunk) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v", err)
	}
	if log.String() != "abort:B:client gone,abort:A:client gone" {
		t.Fatalf("got %s", log)
	}
}
