package recording

import (
	"sync"
)

// DefaultQueueSize is the number of pending tasks a sample queue holds
// before new samples are dropped.
const DefaultQueueSize = 64

// SerialQueue runs tasks one at a time, in submission order, on a single
// goroutine.
type SerialQueue struct {
	tasks chan func()
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewSerialQueue starts a queue holding up to size pending tasks.
func NewSerialQueue(size int) *SerialQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &SerialQueue{
		tasks: make(chan func(), size),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *SerialQueue) run() {
	defer close(q.done)
	for task := range q.tasks {
		task()
	}
}

// TryAsync enqueues fn without blocking. It reports false when the queue
// is full or closed.
func (q *SerialQueue) TryAsync(fn func()) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.tasks <- fn:
		return true
	default:
		return false
	}
}

// Async enqueues fn, waiting for room if the queue is full.
func (q *SerialQueue) Async(fn func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.tasks <- fn
	return nil
}

// Sync runs fn on the queue after every task already submitted and waits
// for it to finish.
func (q *SerialQueue) Sync(fn func()) error {
	finished := make(chan struct{})
	if err := q.Async(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	<-finished
	return nil
}

// Close stops accepting tasks and waits for the pending ones to run. It
// must not be called from a task; use Shutdown there.
func (q *SerialQueue) Close() {
	q.Shutdown()
	<-q.done
}

// Shutdown stops accepting tasks without waiting. Pending tasks still run
// in order, so it is safe to call from a task.
func (q *SerialQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}

// Done is closed once the queue is shut down and every pending task ran.
func (q *SerialQueue) Done() <-chan struct{} { return q.done }
