// Package notify fans pipeline events out to subscribers without letting a
// slow subscriber stall the request path.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"ailib/pkg/types"
)

// Event names published by the facade.
const (
	EventChunk         = "chunk"
	EventRequestStart  = "request_start"
	EventRequestDone   = "request_done"
	EventRequestFailed = "request_failed"
	EventRequestRetry  = "request_retry"
)

// Publisher receives events. Implementations must be non-blocking and must
// not panic.
type Publisher interface {
	Publish(types.Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(types.Event) {}

// DefaultBuffer is the subscriber buffer used when Subscribe gets zero.
const DefaultBuffer = 64

// Bus is an in-process pub/sub hub.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscription is one listener. Events arrive on C until Close is called or
// the bus is closed.
type Subscription struct {
	C <-chan types.Event

	ch     chan types.Event
	bus    *Bus
	id     uint64
	filter map[string]bool
	once   sync.Once
}

// Subscribe registers a listener. When names are given only those events are
// delivered.
func (b *Bus) Subscribe(buffer int, names ...string) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan types.Event, buffer)
	s := &Subscription{C: ch, ch: ch, bus: b}
	if len(names) > 0 {
		s.filter = make(map[string]bool, len(names))
		for _, n := range names {
			s.filter[n] = true
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		s.once.Do(func() {})
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	return s
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// Publish delivers e to every matching subscriber whose buffer has room.
// Events for full subscribers are dropped and counted.
func (b *Bus) Publish(e types.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.filter != nil && !s.filter[e.Name] {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Subscribers returns the number of attached subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Later Subscribe calls get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	b.closed = true
	b.mu.Unlock()
	for _, s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
}
