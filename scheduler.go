package pagevirt

import (
	"context"
	"sync"

	"github.com/djdv/go-pagevirt/internal/dispatch"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type (
	// Scheduler runs functions on behalf of a collection.
	// Schedule must not block the caller for the duration of fn.
	//
	// Background schedulers run page and count fetches and may run
	// functions concurrently. Notification schedulers deliver [Change]s
	// and must run functions one at a time, in the order received.
	Scheduler interface {
		Schedule(fn func())
	}
	// InlineScheduler runs functions on the calling goroutine.
	// As a notification scheduler, changes are delivered on the
	// collection's internal dispatch goroutine.
	InlineScheduler struct{}
	// GoScheduler runs every function on a new goroutine.
	GoScheduler struct{}
	// SerialScheduler runs functions in order on a single goroutine.
	// Constructed by [NewSerialScheduler].
	SerialScheduler struct {
		queue *dispatch.Queue
	}

	// PoolConfig holds the limits of a [WorkerPool].
	PoolConfig struct {
		// MaxWorkers bounds the number of functions running at once.
		// If <= 0, defaults to 1.
		MaxWorkers int64
		// FetchesPerSecond throttles how often functions start.
		// If 0, unlimited.
		FetchesPerSecond float64
		// Burst is the number of functions that may start at once
		// before throttling applies. If <= 0, defaults to 1.
		Burst int
	}
	// WorkerPool is a bounded, optionally throttled background [Scheduler].
	// Constructed by [NewWorkerPool].
	WorkerPool struct {
		slots   *semaphore.Weighted
		limiter *rate.Limiter
		ctx     context.Context
		cancel  context.CancelFunc
		workers sync.WaitGroup
	}
)

func (InlineScheduler) Schedule(fn func()) { fn() }

func (GoScheduler) Schedule(fn func()) { go fn() }

// NewSerialScheduler starts a FIFO scheduler.
// Call [SerialScheduler.Close] to release its goroutine.
func NewSerialScheduler() *SerialScheduler {
	return &SerialScheduler{
		queue: dispatch.New(func(fn func()) { fn() }),
	}
}

// Schedule queues fn behind every function scheduled before it.
// Functions scheduled after Close are dropped.
func (s *SerialScheduler) Schedule(fn func()) { s.queue.Enqueue(fn) }

// Close runs the functions already scheduled, then stops the scheduler.
func (s *SerialScheduler) Close() error {
	s.queue.Drain()
	return nil
}

// NewWorkerPool creates a pool limited by cfg.
func NewWorkerPool(cfg PoolConfig) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	pool := &WorkerPool{
		slots:  semaphore.NewWeighted(cfg.MaxWorkers),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.FetchesPerSecond > 0 {
		pool.limiter = rate.NewLimiter(rate.Limit(cfg.FetchesPerSecond), max(cfg.Burst, 1))
	}
	return pool
}

// Schedule runs fn once a worker slot (and rate token) is available.
// After [WorkerPool.Close], fn runs without limits so that
// anything waiting on it is still released.
func (p *WorkerPool) Schedule(fn func()) {
	p.workers.Add(1)
	go func() {
		defer p.workers.Done()
		if err := p.slots.Acquire(p.ctx, 1); err != nil {
			fn()
			return
		}
		defer p.slots.Release(1)
		if p.limiter != nil {
			// Cancellation only lifts the throttle.
			_ = p.limiter.Wait(p.ctx)
		}
		fn()
	}()
}

// Close lifts the pool's limits and waits for scheduled functions to return.
func (p *WorkerPool) Close() error {
	p.cancel()
	p.workers.Wait()
	return nil
}
