package notify

import (
	"sync"

	"ailib/pkg/types"
)

// Recorder keeps every event in memory. Handy in tests.
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(e types.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of what was recorded so far.
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the event names in publish order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

// Fanout publishes to several publishers in order.
type Fanout []Publisher

func (f Fanout) Publish(e types.Event) {
	for _, p := range f {
		p.Publish(e)
	}
}
