// Package queue provides an unbounded FIFO handoff between pipeline stages.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded, order-preserving FIFO backed by channels.
// Producers never block on a slow consumer; consumers block on Out until an
// item is available or the queue is closed and drained.
//
// Every item that has been Put must be acknowledged with Done once processed;
// Join waits for all outstanding items to be acknowledged.
type Queue[T any] struct {
	in  chan T
	out chan T

	stop chan struct{}

	mu        sync.Mutex
	closed    bool
	discarded bool
	pending   int
	idle      chan struct{} // closed while pending == 0
	observe   func(depth int)
}

// New creates a queue and starts its pump goroutine. The pump exits after
// Close once every buffered item has been received from Out.
func New[T any]() *Queue[T] {
	q := &Queue[T]{
		in:   make(chan T),
		out:  make(chan T),
		stop: make(chan struct{}),
		idle: make(chan struct{}),
	}
	close(q.idle)
	go q.pump()
	return q
}

// Put appends v to the queue.
func (q *Queue[T]) Put(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.pending == 0 {
		q.idle = make(chan struct{})
	}
	q.pending++
	q.notify()
	// Send under the lock so Close cannot close q.in mid-send. The pump
	// never takes the lock, so this cannot deadlock.
	q.in <- v
	q.mu.Unlock()
	return nil
}

// Out returns the channel consumers receive from. It is closed once the queue
// is closed and empty.
func (q *Queue[T]) Out() <-chan T {
	return q.out
}

// Get blocks until an item is available. ok is false if the queue is closed
// and drained or ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (v T, ok bool) {
	select {
	case v, ok = <-q.out:
		return v, ok
	case <-ctx.Done():
		return v, false
	}
}

// Done acknowledges one item previously received from the queue.
func (q *Queue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.discarded {
		return
	}
	if q.pending == 0 {
		panic("queue: Done called more times than Put")
	}
	q.pending--
	q.notify()
	if q.pending == 0 {
		close(q.idle)
	}
}

// Observe installs fn to be called with the new Len after every Put and
// Done. fn runs with the queue locked and must not call back into it.
func (q *Queue[T]) Observe(fn func(depth int)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observe = fn
	q.notify()
}

func (q *Queue[T]) notify() {
	if q.observe != nil {
		q.observe(q.pending)
	}
}

// Len returns the number of items put but not yet acknowledged.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Join blocks until every item put so far has been acknowledged, or ctx is done.
func (q *Queue[T]) Join(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new items. Items already queued are still delivered.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.in)
}

// Discard closes the queue and drops every item not yet received. Out is
// closed promptly and Join returns. Used when consumers have stopped.
func (q *Queue[T]) Discard() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.discarded {
		return
	}
	q.discarded = true
	if !q.closed {
		q.closed = true
		close(q.in)
	}
	close(q.stop)
	if q.pending > 0 {
		q.pending = 0
		q.notify()
		close(q.idle)
	}
}

func (q *Queue[T]) pump() {
	defer close(q.out)

	var buf []T
	in := q.in
	for in != nil || len(buf) > 0 {
		var out chan T
		var head T
		if len(buf) > 0 {
			out = q.out
			head = buf[0]
		}

		select {
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			buf = append(buf, v)
		case out <- head:
			var zero T
			buf[0] = zero
			buf = buf[1:]
		case <-q.stop:
			return
		}
	}
}
