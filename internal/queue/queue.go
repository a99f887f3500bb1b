// Package queue tracks the lifecycle of requests. It does not execute
// anything: the facade drives status directly for synchronous calls and
// workers use Dequeue/Wait for submitted jobs.
package queue

import (
	"context"
	"sync"

	"ailib/internal/errs"
	"ailib/pkg/types"
)

// DefaultRetain bounds how many finished requests are remembered.
const DefaultRetain = 4096

// Options configures a Queue.
type Options struct {
	// MaxPending rejects Enqueue with a TooBusy error once this many
	// requests are pending. Zero means unbounded.
	MaxPending int
	// Retain is the number of terminal entries kept for Status lookups.
	Retain int
}

type entry struct {
	req    *types.Request
	status types.Status
}

// Queue is safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	entries  map[string]*entry
	pending  []string // FIFO of ids enqueued and not yet claimed
	finished []string // terminal ids, oldest first
	opts     Options
	signal   chan struct{}
}

// New returns an empty queue.
func New(opts Options) *Queue {
	if opts.Retain <= 0 {
		opts.Retain = DefaultRetain
	}
	return &Queue{
		entries: make(map[string]*entry),
		opts:    opts,
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue records req as pending and returns its id.
func (q *Queue) Enqueue(req *types.Request) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.opts.MaxPending > 0 && len(q.pending) >= q.opts.MaxPending {
		return "", errs.TooBusy("request queue")
	}
	q.entries[req.ID] = &entry{req: req, status: types.StatusPending}
	q.pending = append(q.pending, req.ID)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return req.ID, nil
}

// Claim records req and marks it processing in one step, as Enqueue
// followed by MarkProcessing would, without exposing it to Dequeue.
func (q *Queue) Claim(req *types.Request) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := &entry{req: req, status: types.StatusPending}
	q.entries[req.ID] = e
	q.advance(req.ID, e, types.StatusProcessing)
	return req.ID
}

// Dequeue pops the oldest pending request and marks it processing.
func (q *Queue) Dequeue() (*types.Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]
		e, ok := q.entries[id]
		if !ok || e.status != types.StatusPending {
			continue
		}
		q.advance(id, e, types.StatusProcessing)
		return e.req, true
	}
	return nil, false
}

// Wait blocks until a pending request can be dequeued or ctx is done.
func (q *Queue) Wait(ctx context.Context) (*types.Request, error) {
	for {
		if req, ok := q.Dequeue(); ok {
			// others may be waiting for the rest
			q.mu.Lock()
			more := len(q.pending) > 0
			q.mu.Unlock()
			if more {
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			return req, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		}
	}
}

// MarkProcessing claims id without dequeuing through the FIFO, as the
// synchronous path does. It reports whether the transition happened.
func (q *Queue) MarkProcessing(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || !q.advance(id, e, types.StatusProcessing) {
		return false
	}
	for i, p := range q.pending {
		if p == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	return true
}

// Complete marks id completed. Calling it again, or after Fail, is a no-op.
func (q *Queue) Complete(id string) { q.finish(id, types.StatusCompleted) }

// Fail marks id failed unless it already finished.
func (q *Queue) Fail(id string) { q.finish(id, types.StatusFailed) }

func (q *Queue) finish(id string, s types.Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || !q.advance(id, e, s) {
		return
	}
	q.finished = append(q.finished, id)
	for len(q.finished) > q.opts.Retain {
		delete(q.entries, q.finished[0])
		q.finished = q.finished[1:]
	}
}

// advance moves e forward and mirrors the status onto the request.
func (q *Queue) advance(id string, e *entry, s types.Status) bool {
	if !e.status.CanAdvance(s) {
		return false
	}
	e.status = s
	e.req.AdvanceStatus(s)
	return true
}

// Status returns the status of id. Unknown ids, including finished entries
// that were pruned, report failed.
func (q *Queue) Status(id string) types.Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[id]; ok {
		return e.status
	}
	return types.StatusFailed
}

// Get returns the request tracked under id.
func (q *Queue) Get(id string) (*types.Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return nil, false
	}
	return e.req, true
}

// Counts summarizes tracked entries by status.
func (q *Queue) Counts() types.QueueCounts {
	q.mu.Lock()
	defer q.mu.Unlock()
	var c types.QueueCounts
	for _, e := range q.entries {
		switch e.status {
		case types.StatusPending:
			c.Pending++
		case types.StatusProcessing:
			c.Processing++
		case types.StatusCompleted:
			c.Completed++
		case types.StatusFailed:
			c.Failed++
		}
	}
	return c
}
