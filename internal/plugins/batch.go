package plugins

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ailib/internal/config"
	"ailib/internal/model"
	"ailib/pkg/types"
)

// ReplaySourceBatch marks replays produced by a batch flush.
const ReplaySourceBatch = "batch"

// Dispatcher runs one request against its target model, bypassing the
// plugin chain, and returns the fragments it produced.
type Dispatcher func(ctx context.Context, req *types.Request) ([]string, error)

type batchMember struct {
	ctx   context.Context
	req   *types.Request
	frags []string
	err   error
}

type batch struct {
	members []*batchMember
	timer   *time.Timer
	done    chan struct{}
}

// BatchOptions configures RequestBatching.
type BatchOptions struct {
	MaxSize  int
	Timeout  time.Duration
	Dispatch Dispatcher
	Logger   zerolog.Logger
}

// RequestBatching groups requests and dispatches each group together. A
// group is flushed when it reaches MaxSize or Timeout after its first
// member arrived, whichever comes first. Every member waits for its group.
type RequestBatching struct {
	opts BatchOptions

	mu  sync.Mutex
	cur *batch
}

// NewRequestBatching builds the batching plugin.
func NewRequestBatching(o BatchOptions) *RequestBatching {
	if o.MaxSize <= 0 {
		o.MaxSize = 10
	}
	if o.Timeout <= 0 {
		o.Timeout = 100 * time.Millisecond
	}
	return &RequestBatching{opts: o}
}

func (p *RequestBatching) Name() string { return config.PluginRequestBatching }

// TransformRequest adds req to the current batch and returns once the batch
// has been dispatched, with the member's output attached as a replay.
// Requests that already carry a replay pass straight through.
func (p *RequestBatching) TransformRequest(ctx context.Context, _ model.Model, req *types.Request) (*types.Request, error) {
	if _, ok := req.Replay(); ok {
		return req, nil
	}
	mem := &batchMember{ctx: ctx, req: req}

	p.mu.Lock()
	b := p.cur
	if b == nil {
		b = &batch{done: make(chan struct{})}
		p.cur = b
		b.timer = time.AfterFunc(p.opts.Timeout, func() { p.flushIfCurrent(b) })
	}
	b.members = append(b.members, mem)
	full := len(b.members) >= p.opts.MaxSize
	if full {
		p.cur = nil
		b.timer.Stop()
	}
	p.mu.Unlock()

	if full {
		p.flush(b)
	}
	select {
	case <-b.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	req.SetReplay(types.Replay{Source: ReplaySourceBatch, Fragments: mem.frags, Err: mem.err})
	return req, nil
}

// flushIfCurrent is the timer path; a batch already swapped out by the size
// trigger is left alone.
func (p *RequestBatching) flushIfCurrent(b *batch) {
	p.mu.Lock()
	if p.cur != b {
		p.mu.Unlock()
		return
	}
	p.cur = nil
	p.mu.Unlock()
	p.flush(b)
}

func (p *RequestBatching) flush(b *batch) {
	p.opts.Logger.Debug().Int("size", len(b.members)).Msg("flushing batch")
	var g errgroup.Group
	for _, mem := range b.members {
		g.Go(func() error {
			if err := mem.ctx.Err(); err != nil {
				mem.err = err
				return nil
			}
			mem.frags, mem.err = p.opts.Dispatch(mem.ctx, mem.req)
			return nil
		})
	}
	_ = g.Wait()
	close(b.done)
}

// Pending reports how many requests are waiting in the open batch.
func (p *RequestBatching) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return 0
	}
	return len(p.cur.members)
}
