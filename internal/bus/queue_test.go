package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueue(t *testing.T) {
	q := NewQueue(0)
	assert.Equal(t, DefaultSize, q.Cap())
	assert.Equal(t, 0, q.Size())
}

func TestQueue_PublishAssignsID(t *testing.T) {
	q := NewQueue(4)
	ev := InboundEvent{Type: EventCastCreated, CastHash: "0xabc"}

	task, err := q.Publish("0xabc", ev)
	require.NoError(t, err)
	_, err = uuid.Parse(task.ID)
	assert.NoError(t, err)
	assert.Equal(t, "0xabc", task.Key)
	assert.Equal(t, ev, task.Event)
	assert.False(t, task.AdmittedAt.IsZero())
	assert.Equal(t, 1, q.Size())
}

func TestQueue_FullDoesNotBlock(t *testing.T) {
	q := NewQueue(1)
	_, err := q.Publish("a", InboundEvent{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := q.Publish("b", InboundEvent{})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

func TestQueue_RunDrainsOnClose(t *testing.T) {
	q := NewQueue(16)

	var mu sync.Mutex
	var seen []string
	for _, k := range []string{"a", "b", "c"} {
		_, err := q.Publish(k, InboundEvent{CastHash: k})
		require.NoError(t, err)
	}

	q.Run(context.Background(), 2, func(_ context.Context, task Task) {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen = append(seen, task.Key)
		mu.Unlock()
	})
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))

	assert.ElementsMatch(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, int64(3), q.Handled())
	assert.Equal(t, int64(0), q.InFlight())
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(1)
	q.Close()
	q.Close()

	_, err := q.Publish("a", InboundEvent{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_WaitHonoursContext(t *testing.T) {
	q := NewQueue(1)
	release := make(chan struct{})
	q.Run(context.Background(), 1, func(context.Context, Task) { <-release })
	defer close(release)

	_, err := q.Publish("slow", InboundEvent{})
	require.NoError(t, err)
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
}
