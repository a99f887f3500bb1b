package notify

import (
	"testing"
	"time"

	"ailib/pkg/types"
)

func recv(t *testing.T, s *Subscription) types.Event {
	t.Helper()
	select {
	case e, ok := <-s.C:
		if !ok {
			t.Fatalf("subscription closed")
		}
		return e
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
	return types.Event{}
}

func TestPublishFanOut(t *testing.T) {
	b := NewBus()
	s1 := b.Subscribe(4)
	s2 := b.Subscribe(4)
	defer s1.Close()
	defer s2.Close()
	b.Publish(types.Event{Name: EventChunk, RequestID: "r1", Chunk: &types.ResponseChunk{Content: "hi"}})
	for _, s := range []*Subscription{s1, s2} {
		e := recv(t, s)
		if e.Name != EventChunk || e.Chunk.Content != "hi" || e.Time.IsZero() {
			t.Fatalf("unexpected event: %+v", e)
		}
	}
}

func TestFilterByName(t *testing.T) {
	b := NewBus()
	s := b.Subscribe(4, EventRequestDone)
	defer s.Close()
	b.Publish(types.Event{Name: EventChunk})
	b.Publish(types.Event{Name: EventRequestDone, RequestID: "r"})
	if e := recv(t, s); e.Name != EventRequestDone {
		t.Fatalf("filter leaked %q", e.Name)
	}
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	b := NewBus()
	s := b.Subscribe(1)
	defer s.Close()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(types.Event{Name: EventChunk})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
	if b.Dropped() != 4 {
		t.Fatalf("dropped = %d, want 4", b.Dropped())
	}
}

func TestCloseSemantics(t *testing.T) {
	b := NewBus()
	s := b.Subscribe(1)
	s.Close()
	s.Close()
	if _, ok := <-s.C; ok {
		t.Fatalf("channel should be closed")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("subscription not removed")
	}
	s2 := b.Subscribe(1)
	b.Close()
	if _, ok := <-s2.C; ok {
		t.Fatalf("bus close should close subscriptions")
	}
	s2.Close() // no double close panic
	s3 := b.Subscribe(1)
	if _, ok := <-s3.C; ok {
		t.Fatalf("subscribe after close should yield a closed channel")
	}
	b.Publish(types.Event{Name: EventChunk})
}

func TestRecorderAndFanout(t *testing.T) {
	r1, r2 := NewRecorder(), NewRecorder()
	f := Fanout{r1, r2, Nop{}}
	f.Publish(types.Event{Name: EventRequestStart})
	f.Publish(types.Event{Name: EventRequestDone})
	if n := r2.Names(); len(n) != 2 || n[0] != EventRequestStart || n[1] != EventRequestDone {
		t.Fatalf("names: %v", n)
	}
	if len(r1.Events()) != 2 {
		t.Fatalf("recorder 1 missed events")
	}
}
