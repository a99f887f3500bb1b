package manager

import (
	"context"
	"slices"
	"sync"
	"time"

	"ailib/internal/errs"
	"ailib/pkg/types"
)

// slots bounds one model: queueCh holds waiting plus running requests,
// genCh the running ones.
type slots struct {
	queueCh chan struct{}
	genCh   chan struct{}
}

// admission hands out per-model execution slots. A zero inflight limit
// disables it.
type admission struct {
	inflight int
	depth    int
	maxWait  time.Duration

	mu    sync.Mutex
	perID map[string]*slots
}

func newAdmission(inflight, depth int, maxWait time.Duration) *admission {
	if depth < inflight {
		depth = inflight
	}
	return &admission{inflight: inflight, depth: depth, maxWait: maxWait, perID: make(map[string]*slots)}
}

func (a *admission) slotsFor(modelID string) *slots {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.perID[modelID]
	if s == nil {
		s = &slots{queueCh: make(chan struct{}, a.depth), genCh: make(chan struct{}, a.inflight)}
		a.perID[modelID] = s
	}
	return s
}

// begin reserves a queue slot and then an in-flight slot for modelID.
// Returns a release func to be deferred.
func (a *admission) begin(ctx context.Context, modelID string) (func(), error) {
	if a.inflight <= 0 {
		return func() {}, nil
	}
	s := a.slotsFor(modelID)

	var timeout <-chan time.Time
	if a.maxWait > 0 {
		t := time.NewTimer(a.maxWait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case s.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timeout:
		return func() {}, errs.TooBusy("model " + modelID)
	}

	acquired := false
	defer func() {
		if !acquired {
			<-s.queueCh
		}
	}()
	select {
	case s.genCh <- struct{}{}:
		acquired = true
		return func() { <-s.genCh; <-s.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timeout:
		return func() {}, errs.TooBusy("model " + modelID)
	}
}

type heldKey struct{}

// withHeld records on ctx that the caller owns modelID's slot, so nested
// requests for the same model (multi-model fan-out) do not wait on it.
func withHeld(ctx context.Context, modelID string) context.Context {
	prev, _ := ctx.Value(heldKey{}).([]string)
	held := append(slices.Clip(prev), modelID)
	return context.WithValue(ctx, heldKey{}, held)
}

func holds(ctx context.Context, modelID string) bool {
	held, _ := ctx.Value(heldKey{}).([]string)
	return slices.Contains(held, modelID)
}

// usage reports waiting and running counts per model.
func (a *admission) usage() map[string]types.ModelLoad {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.perID) == 0 {
		return nil
	}
	out := make(map[string]types.ModelLoad, len(a.perID))
	for id, s := range a.perID {
		inflight := len(s.genCh)
		out[id] = types.ModelLoad{Waiting: max(len(s.queueCh)-inflight, 0), Inflight: inflight}
	}
	return out
}
