package pipeline

import (
	"context"
	"sync"
	"time"
)

// TaskQueue is a bounded FIFO between one producer and a pool of workers.
// Unlike Slot it applies backpressure: Put blocks while the queue is full.
//
// Shutdown is two-phase. Close means "no more submissions"; Join waits until
// every submitted task has been marked Done. Workers keep draining a closed
// queue and see ErrQueueClosed only once it is empty.
type TaskQueue[T any] struct {
	ch chan Task[T]

	closeMu sync.RWMutex
	closed  bool

	mu         sync.Mutex
	unfinished int
	idle       chan struct{} // closed when unfinished drops to zero
}

// NewTaskQueue returns a queue holding at most capacity tasks.
func NewTaskQueue[T any](capacity int) *TaskQueue[T] {
	return &TaskQueue[T]{ch: make(chan Task[T], max(capacity, 1))}
}

// Put enqueues task, blocking while the queue is full. It returns
// ErrQueueClosed after Close, or ctx.Err() if ctx ends first.
func (q *TaskQueue[T]) Put(ctx context.Context, task Task[T]) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.track()
	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		q.Done()
		return ctx.Err()
	}
}

// Get dequeues the oldest task, waiting up to timeout. It returns
// ErrQueueTimeout when nothing arrived in time, ErrQueueClosed when the
// queue is closed and drained, or ctx.Err().
func (q *TaskQueue[T]) Get(ctx context.Context, timeout time.Duration) (Task[T], error) {
	var zero Task[T]

	select {
	case t, ok := <-q.ch:
		if !ok {
			return zero, ErrQueueClosed
		}
		return t, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case t, ok := <-q.ch:
		if !ok {
			return zero, ErrQueueClosed
		}
		return t, nil
	case <-timer.C:
		return zero, ErrQueueTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Done marks one dequeued task as fully processed.
func (q *TaskQueue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.unfinished--
	switch {
	case q.unfinished < 0:
		panic("pipeline: TaskQueue.Done called more times than tasks were put")
	case q.unfinished == 0:
		close(q.idle)
	}
}

// Close stops accepting submissions. It waits for a Put in progress to
// finish and is safe to call more than once.
func (q *TaskQueue[T]) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Join blocks until every task put so far has been marked Done.
func (q *TaskQueue[T]) Join(ctx context.Context) error {
	q.mu.Lock()
	if q.unfinished == 0 {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of tasks waiting in the queue.
func (q *TaskQueue[T]) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *TaskQueue[T]) Cap() int { return cap(q.ch) }

// Unfinished returns how many put tasks have not been marked Done.
func (q *TaskQueue[T]) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

func (q *TaskQueue[T]) track() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished == 0 {
		q.idle = make(chan struct{})
	}
	q.unfinished++
}
