package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultSize is the queue capacity when none is given.
const DefaultSize = 256

var (
	// ErrQueueFull is returned by Publish when no buffer slot is free.
	ErrQueueFull = errors.New("bus: queue full")
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("bus: queue closed")
)

// Handler processes one task.
type Handler func(ctx context.Context, t Task)

// Queue is a bounded task queue drained by a fixed worker pool.
// Uses a buffered Go channel; Publish never blocks the HTTP path.
type Queue struct {
	tasks chan Task

	mu     sync.RWMutex
	closed bool

	wg       sync.WaitGroup
	inFlight atomic.Int64
	handled  atomic.Int64
}

// NewQueue creates a queue with the given capacity.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultSize
	}
	return &Queue{tasks: make(chan Task, size)}
}

// Publish enqueues ev under key and returns the created task.
func (q *Queue) Publish(key string, ev InboundEvent) (Task, error) {
	t := Task{
		ID:         uuid.NewString(),
		Key:        key,
		Event:      ev,
		AdmittedAt: time.Now(),
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return Task{}, ErrClosed
	}
	select {
	case q.tasks <- t:
		return t, nil
	default:
		return Task{}, ErrQueueFull
	}
}

// Run starts workers goroutines that call h for each task until the queue
// is closed and drained. It returns immediately.
func (q *Queue) Run(ctx context.Context, workers int, h Handler) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for t := range q.tasks {
				q.inFlight.Add(1)
				h(ctx, t)
				q.inFlight.Add(-1)
				q.handled.Add(1)
			}
		}()
	}
}

// Close stops accepting tasks. Queued tasks are still handed to workers.
// It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}

// Wait blocks until every worker has exited or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Size returns the number of queued tasks.
func (q *Queue) Size() int { return len(q.tasks) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.tasks) }

// InFlight returns the number of tasks currently being handled.
func (q *Queue) InFlight() int64 { return q.inFlight.Load() }

// Handled returns the number of tasks handled so far.
func (q *Queue) Handled() int64 { return q.handled.Load() }
