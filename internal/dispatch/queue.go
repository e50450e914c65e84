package dispatch

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueStopped is returned by Sync when the queue no longer accepts tasks.
var ErrQueueStopped = errors.New("dispatch: queue stopped")

// Task is a unit of work executed on a queue. The context carries the
// queue itself (see Current) and is valid only for the task's duration.
type Task func(ctx context.Context)

// Queue is a serial task-processing unit backed by one goroutine.
//
// The queue is unbounded so that commit notifications can enqueue fetch
// cycles without ever blocking the writer.
//
// Thread-safety model:
//   - Async(), Sync(): safe from any goroutine
//   - Stop(): safe from any goroutine except the queue's own
//   - guard field: touched only by tasks running on the queue
type Queue struct {
	label string

	mu     sync.Mutex
	tasks  []Task
	closed bool
	signal chan struct{} // Signals task availability (buffered, size 1)
	done   chan struct{} // Closed when the run loop exits

	// guard is the queue's connection-access guard slot. It is installed
	// once by Bind and only ever read or mutated by tasks running on this
	// queue, so no lock protects it.
	guard *Guard
}

type queueKey struct{}

// NewQueue creates a queue and starts its run loop.
func NewQueue(label string) *Queue {
	q := &Queue{
		label:  label,
		tasks:  make([]Task, 0, 16),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Label returns the queue's diagnostic label.
func (q *Queue) Label() string {
	return q.label
}

// Current returns the queue the calling task is running on, if any.
// It reports false for contexts that did not originate from a queue task.
func Current(ctx context.Context) (*Queue, bool) {
	q, ok := ctx.Value(queueKey{}).(*Queue)
	return q, ok
}

// Async submits a task for execution. Tasks run strictly in submission
// order. Returns false if the queue has been stopped.
func (q *Queue) Async(task Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, task)

	// Coalescing signal: buffer of 1 absorbs bursts.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Sync submits a task and waits until it has run, or until ctx is done.
// When called from a task already running on q, the task runs inline
// instead of deadlocking.
func (q *Queue) Sync(ctx context.Context, task Task) error {
	if cur, ok := Current(ctx); ok && cur == q {
		task(ctx)
		return nil
	}

	ran := make(chan struct{})
	ok := q.Async(func(taskCtx context.Context) {
		defer close(ran)
		task(taskCtx)
	})
	if !ok {
		return ErrQueueStopped
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ran:
		return nil
	}
}

// Stop closes the queue. Already-submitted tasks are drained before the
// run loop exits; Stop blocks until the drain completes. Idempotent.
// Must not be called from a task running on q.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.signal) // Wakes the run loop
	}
	q.mu.Unlock()

	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)

	ctx := context.WithValue(context.Background(), queueKey{}, q)
	for {
		task, ok := q.next()
		if !ok {
			return
		}
		task(ctx)
	}
}

// next blocks until a task is available. Returns false once the queue is
// closed and drained.
func (q *Queue) next() (Task, bool) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]

			// Nil out the slot so the closure (and anything it captures)
			// is collectable before the array is reused.
			q.tasks[0] = nil
			if len(q.tasks) == 1 {
				q.tasks = q.tasks[:0]
			} else {
				q.tasks = q.tasks[1:]
			}
			q.mu.Unlock()
			return task, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, false
		}
		<-q.signal
	}
}
