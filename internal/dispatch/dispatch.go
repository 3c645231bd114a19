// Package dispatch provides an unbounded, ordered hand-off queue.
//
// Producers enqueue without blocking (typically while holding their own locks)
// and a single goroutine forwards the queued functions, in order, to a runner.
package dispatch

import "sync"

// Queue forwards enqueued functions to its runner in FIFO order.
// Constructed by [New].
type Queue struct {
	run     func(func())
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	closed  bool
	dropped bool
}

// New starts a queue that hands every enqueued function to run.
// Calls to run are serialized and happen in enqueue order.
func New(run func(func())) *Queue {
	q := &Queue{
		run:  run,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go q.pump()
	return q
}

// Enqueue appends fn to the queue and reports whether it was accepted.
// Functions enqueued after [Queue.Close] are dropped.
func (q *Queue) Enqueue(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of functions not yet handed to the runner.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close drops pending functions and waits for the pump to exit.
// A function currently being run is allowed to finish.
// Close must not be called from within the runner.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.dropped = true
	q.pending = nil
	q.mu.Unlock()
	close(q.stop)
	<-q.done
}

// Drain closes the queue after every accepted function was handed to the runner.
func (q *Queue) Drain() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.stop)
	<-q.done
}

func (q *Queue) pump() {
	defer close(q.done)
	for {
		batch := q.take()
		for _, fn := range batch {
			if q.isDropped() {
				break
			}
			q.run(fn)
		}
		if len(batch) != 0 {
			continue
		}
		select {
		case <-q.wake:
		case <-q.stop:
			for batch := q.take(); len(batch) != 0; batch = q.take() {
				for _, fn := range batch {
					q.run(fn)
				}
			}
			return
		}
	}
}

func (q *Queue) isDropped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) take() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	return batch
}
