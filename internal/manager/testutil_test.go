package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ailib/internal/config"
	"ailib/internal/model"
	"ailib/internal/notify"
	"ailib/pkg/types"
)

// fakeSleeper records retry delays without waiting.
type fakeSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.slept = append(f.slept, d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *fakeSleeper) Slept() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.slept...)
}

// testConfig is Defaults with rate limiting off so tests never wait on tokens.
func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.RateLimitOptions.Enabled = false
	cfg.DefaultModel = "echo"
	return cfg
}

// newTestManager builds a manager with the default chain, a recorder for
// events and a fake sleeper.
func newTestManager(t *testing.T, cfg config.Config, models ...model.Model) (*Manager, *notify.Recorder, *fakeSleeper) {
	t.Helper()
	sl := &fakeSleeper{}
	m, err := NewWithConfig(ManagerConfig{
		Config:     cfg,
		Models:     models,
		Registerer: prometheus.NewRegistry(),
		Sleep:      sl.Sleep,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	rec := notify.NewRecorder()
	m.AddPublisher(rec)
	t.Cleanup(func() { _ = m.Close() })
	return m, rec, sl
}

var errBoom = errors.New("boom")

// flakyModel fails its first n calls and then streams "ok".
func flakyModel(id string, n int32) (*model.Func, *atomic.Int32) {
	var calls atomic.Int32
	md := model.NewFunc(types.ModelInfo{ID: id, Name: id, Version: "1"}, func(ctx context.Context, _ map[string]any, emit func(string) error) error {
		if calls.Add(1) <= n {
			return errBoom
		}
		return emit("ok")
	})
	return md, &calls
}

// countingEcho echoes the prompt and counts invocations.
func countingEcho(id string) (*model.Func, *atomic.Int32) {
	var calls atomic.Int32
	echo := model.NewEcho(id, 0)
	md := model.NewFunc(echo.Info(), func(ctx context.Context, params map[string]any, emit func(string) error) error {
		calls.Add(1)
		return echo.Fn(ctx, params, emit)
	})
	return md, &calls
}

func count(names []string, name string) int {
	n := 0
	for _, s := range names {
		if s == name {
			n++
		}
	}
	return n
}
