package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Store holds the live Config. Readers always see a complete snapshot;
// Update swaps in a new value only if it validates.
type Store struct {
	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[Config]
}

// NewStore validates c and wraps it.
func NewStore(c Config) (*Store, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s := &Store{}
	cc := c.Clone()
	s.cur.Store(&cc)
	return s, nil
}

// Get returns a copy of the current snapshot.
func (s *Store) Get() Config {
	return s.cur.Load().Clone()
}

// Update applies fn to a copy of the current snapshot and publishes the
// result. The previous snapshot stays in place when validation fails.
func (s *Store) Update(fn func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cur.Load().Clone()
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.cur.Load().Clone(), fmt.Errorf("config update rejected: %w", err)
	}
	s.cur.Store(&next)
	return next.Clone(), nil
}
