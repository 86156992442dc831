package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newMemory(t *testing.T, opts Options) (*MemoryLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	opts.Now = clock.Now
	if opts.SweepInterval == 0 {
		opts.SweepInterval = time.Hour
	}
	l := NewMemoryLimiter(opts)
	t.Cleanup(func() { l.Close() })
	return l, clock
}

func TestMemoryLimiter_NthRequestAllowedIffWithinMax(t *testing.T) {
	l, _ := newMemory(t, Options{Window: 15 * time.Minute, Max: 5})
	ctx := context.Background()

	for n := 1; n <= 5; n++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", n)
		assert.Equal(t, n, d.Count)
		assert.Zero(t, d.RetryAfter)
	}

	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 6, d.Count)
	assert.Equal(t, 5, d.Limit)
	assert.Equal(t, 15*time.Minute, d.RetryAfter)
}

func TestMemoryLimiter_RetryAfterIsRemainingWindow(t *testing.T) {
	l, clock := newMemory(t, Options{Window: 15 * time.Minute, Max: 1})
	ctx := context.Background()

	l.Allow(ctx, "a")
	clock.Advance(10 * time.Minute)

	d, _ := l.Allow(ctx, "a")
	assert.False(t, d.Allowed)
	assert.Equal(t, 5*time.Minute, d.RetryAfter)
}

func TestMemoryLimiter_WindowResets(t *testing.T) {
	l, clock := newMemory(t, Options{Window: time.Minute, Max: 2})
	ctx := context.Background()

	l.Allow(ctx, "a")
	l.Allow(ctx, "a")
	d, _ := l.Allow(ctx, "a")
	assert.False(t, d.Allowed)

	clock.Advance(time.Minute)
	d, _ = l.Allow(ctx, "a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestMemoryLimiter_IdentitiesAreIndependent(t *testing.T) {
	l, _ := newMemory(t, Options{Max: 1})
	ctx := context.Background()

	a, _ := l.Allow(ctx, "a")
	b, _ := l.Allow(ctx, "b")
	a2, _ := l.Allow(ctx, "a")
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)
	assert.False(t, a2.Allowed)
}

func TestMemoryLimiter_ConcurrentAllowExactlyMax(t *testing.T) {
	l, _ := newMemory(t, Options{Max: 10})
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, _ := l.Allow(ctx, "burst"); d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), allowed.Load())
}

func TestMemoryLimiter_MaxTrackedEvicts(t *testing.T) {
	l, clock := newMemory(t, Options{Window: time.Minute, Max: 1, MaxTracked: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.Allow(ctx, fmt.Sprintf("id-%d", i))
	}
	clock.Advance(30 * time.Second)
	for i := 3; i < 10; i++ {
		d, _ := l.Allow(ctx, fmt.Sprintf("id-%d", i))
		assert.True(t, d.Allowed)
		assert.LessOrEqual(t, l.Len(), 3)
	}
}

func TestMemoryLimiter_SweepAndReset(t *testing.T) {
	l, clock := newMemory(t, Options{Window: time.Minute})
	ctx := context.Background()

	l.Allow(ctx, "a")
	clock.Advance(45 * time.Second)
	l.Allow(ctx, "b")
	clock.Advance(20 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	require.NoError(t, l.Reset(ctx))
	assert.Equal(t, 0, l.Len())
}

func TestMemoryLimiter_Defaults(t *testing.T) {
	l := NewMemoryLimiter(Options{})
	defer l.Close()
	d, err := l.Allow(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, DefaultMax, d.Limit)
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, 15*time.Minute, 3)
	ctx := context.Background()

	for n := 1; n <= 3; n++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, n, d.Count)
	}

	mr.FastForward(5 * time.Minute)
	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.InDelta(t, (10 * time.Minute).Seconds(), d.RetryAfter.Seconds(), 1)

	mr.FastForward(10 * time.Minute)
	d, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestRedisLimiter_Reset(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, time.Minute, 1)
	ctx := context.Background()

	l.Allow(ctx, "a")
	d, _ := l.Allow(ctx, "a")
	assert.False(t, d.Allowed)

	require.NoError(t, l.Reset(ctx))
	d, _ = l.Allow(ctx, "a")
	assert.True(t, d.Allowed)
}
