// Package dedup provides a time-bounded admission gate for webhook events.
//
// Admit returns true exactly once per key within the TTL. The check and the
// insert happen in one step, so two concurrent deliveries of the same event
// can never both be admitted.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Defaults for NewMemoryStore.
const (
	DefaultTTL           = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Store is an admission gate keyed by event identity.
type Store interface {
	// Admit records key and returns true if it was not already present.
	Admit(ctx context.Context, key string) (bool, error)
	// Release forgets key so a later delivery can be admitted again.
	Release(ctx context.Context, key string) error
	// Reset forgets every key.
	Reset(ctx context.Context) error
	// Close stops background work owned by the store.
	Close() error
}

// Options configures a MemoryStore.
type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Now           func() time.Time // test hook
}

// MemoryStore is a process-local Store with lazy expiry and a periodic sweep.
type MemoryStore struct {
	mu       sync.Mutex
	admitted map[string]time.Time // key -> admission time
	ttl      time.Duration
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryStore creates a MemoryStore and starts its sweeper.
func NewMemoryStore(opts Options) *MemoryStore {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &MemoryStore{
		admitted: make(map[string]time.Time),
		ttl:      opts.TTL,
		now:      opts.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.periodicSweep(opts.SweepInterval)
	return s
}

// Admit implements Store.
func (s *MemoryStore) Admit(_ context.Context, key string) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.admitted[key]; ok && now.Sub(at) < s.ttl {
		return false, nil
	}
	s.admitted[key] = now
	return true, nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.admitted, key)
	s.mu.Unlock()
	return nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	s.admitted = make(map[string]time.Time)
	s.mu.Unlock()
	return nil
}

// Close stops the sweeper. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
	return nil
}

// Len returns the number of tracked keys, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.admitted)
}

// Sweep drops expired keys and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, at := range s.admitted {
		if now.Sub(at) >= s.ttl {
			delete(s.admitted, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) periodicSweep(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}
