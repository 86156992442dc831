// Package ratelimit bounds request volume per caller with a fixed window.
//
// The first request for an identity opens a window with count 1. Later
// requests inside the window increment the count and are allowed while the
// count stays at or below the limit. Bursts straddling a window boundary are
// accepted; this is a coarse process-local control, not a token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults for NewMemoryLimiter.
const (
	DefaultWindow        = 15 * time.Minute
	DefaultMax           = 100
	DefaultSweepInterval = time.Minute
	DefaultMaxTracked    = 10_000
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int           // requests seen in the current window, including this one
	Limit      int           // configured maximum per window
	RetryAfter time.Duration // time until the window resets; zero when allowed
}

// Limiter decides whether a caller may proceed.
type Limiter interface {
	Allow(ctx context.Context, identity string) (Decision, error)
	Reset(ctx context.Context) error
	Close() error
}

// Options configures a MemoryLimiter.
type Options struct {
	Window        time.Duration
	Max           int
	SweepInterval time.Duration
	MaxTracked    int              // cap on tracked identities
	Now           func() time.Time // test hook
}

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is a process-local fixed-window Limiter.
type MemoryLimiter struct {
	mu         sync.Mutex
	windows    map[string]*window
	length     time.Duration
	max        int
	maxTracked int
	now        func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a MemoryLimiter and starts its sweeper.
func NewMemoryLimiter(opts Options) *MemoryLimiter {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Max <= 0 {
		opts.Max = DefaultMax
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.MaxTracked <= 0 {
		opts.MaxTracked = DefaultMaxTracked
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &MemoryLimiter{
		windows:    make(map[string]*window),
		length:     opts.Window,
		max:        opts.Max,
		maxTracked: opts.MaxTracked,
		now:        opts.Now,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go l.periodicSweep(opts.SweepInterval)
	return l
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, identity string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok || now.Sub(w.start) >= l.length {
		if !ok && len(l.windows) >= l.maxTracked {
			l.evictLocked(now)
		}
		l.windows[identity] = &window{start: now, count: 1}
		return Decision{Allowed: true, Count: 1, Limit: l.max}, nil
	}

	w.count++
	if w.count <= l.max {
		return Decision{Allowed: true, Count: w.count, Limit: l.max}, nil
	}
	return Decision{
		Allowed:    false,
		Count:      w.count,
		Limit:      l.max,
		RetryAfter: w.start.Add(l.length).Sub(now),
	}, nil
}

// Reset implements Limiter.
func (l *MemoryLimiter) Reset(_ context.Context) error {
	l.mu.Lock()
	l.windows = make(map[string]*window)
	l.mu.Unlock()
	return nil
}

// Close stops the sweeper. It is safe to call more than once.
func (l *MemoryLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.done
	return nil
}

// Len returns the number of tracked identities.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Sweep drops expired windows and returns how many were removed.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(now)
}

func (l *MemoryLimiter) sweepLocked(now time.Time) int {
	removed := 0
	for id, w := range l.windows {
		if now.Sub(w.start) >= l.length {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// evictLocked makes room for one more identity: expired windows go first,
// then arbitrary entries until under the cap.
func (l *MemoryLimiter) evictLocked(now time.Time) {
	l.sweepLocked(now)
	for id := range l.windows {
		if len(l.windows) < l.maxTracked {
			return
		}
		delete(l.windows, id)
	}
}

func (l *MemoryLimiter) periodicSweep(interval time.Duration) {
	defer close(l.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stopCh:
			return
		}
	}
}
