package pagevirt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/djdv/go-pagevirt/internal/dispatch"
)

type (
	// ChangeKind identifies the kind of a [Change].
	ChangeKind uint8
	// Change describes a modification of a collection's contents,
	// delivered through the notification [Scheduler].
	Change[T any] struct {
		// Old is the value previously visible at Index
		// (a placeholder) for [ChangeReplace].
		Old T
		// New is the value now visible at Index for [ChangeReplace].
		New T
		// Index is the position replaced for [ChangeReplace].
		Index int
		// Count is the length of the collection
		// for [ChangeCount] and [ChangeReset].
		Count int
		Kind  ChangeKind
	}

	// Collection is an indexable view of a paged sequence.
	// Constructed by a [Builder].
	//
	// In synchronous mode reads block until the page holding
	// the index is loaded. In asynchronous mode reads return a
	// placeholder and a [ChangeReplace] follows once the value arrives.
	// In both modes a read waits until the count is known,
	// since indices are checked against it.
	Collection[T any] struct {
		cfg         collectionConfig[T]
		outbox      *dispatch.Queue
		store       *storage[T]
		attempt     *initAttempt
		ready       chan struct{}
		subscribers broadcaster[T]
		mu          sync.Mutex
		closed      bool
	}
	// ResettableCollection is a [Collection] driven by cancellable
	// fetchers, which can be reinitialized from scratch.
	ResettableCollection[T any] struct {
		*Collection[T]
	}

	collectionConfig[T any] struct {
		pages              pageSource[T]
		count              countSource
		newPolicy          func() (RemovalPolicy, error)
		background         Scheduler
		notification       Scheduler
		placeholder        PlaceholderFunc[T]
		preloadPlaceholder PlaceholderFunc[T]
		options
		pageSize          int
		async, preloading bool
	}
	// initAttempt is a single count fetch.
	initAttempt struct {
		cancel context.CancelFunc
		done   chan struct{}
		err    error // Valid after done.
	}
)

const (
	// ChangeReplace reports that the value at an index changed,
	// typically from a placeholder to the fetched value.
	ChangeReplace ChangeKind = iota + 1
	// ChangeCount reports that the length of the collection became known.
	ChangeCount
	// ChangeReset reports that all previously observed values
	// (and the count) are no longer valid.
	ChangeReset
)

// errSuperseded marks an initialization replaced by [ResettableCollection.Reset].
const errSuperseded = constError("initialization superseded")

func (kind ChangeKind) String() string {
	switch kind {
	case ChangeReplace:
		return "replace"
	case ChangeCount:
		return "count"
	case ChangeReset:
		return "reset"
	default:
		return fmt.Sprintf("ChangeKind(%d)", kind)
	}
}

func newCollection[T any](cfg collectionConfig[T]) *Collection[T] {
	notification := cfg.notification
	return &Collection[T]{
		cfg:   cfg,
		ready: make(chan struct{}),
		outbox: dispatch.New(func(fn func()) {
			notification.Schedule(fn)
		}),
	}
}

// beginLocked registers a new count fetch.
// The returned function performs it and must be called exactly once.
func (c *Collection[T]) beginLocked() (*initAttempt, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	attempt := &initAttempt{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.attempt = attempt
	return attempt, func() { c.initialize(ctx, attempt) }
}

func (c *Collection[T]) initialize(ctx context.Context, attempt *initAttempt) {
	defer attempt.cancel()
	count, err := c.cfg.count.fetchCount(ctx)
	if err == nil && count < 0 {
		err = fmt.Errorf("source reported negative count %d", count)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(attempt.done)
	switch {
	case c.closed:
		attempt.err = ErrClosed
		return
	case c.attempt != attempt:
		attempt.err = errSuperseded
		return
	case err != nil:
		attempt.err = countFetchError(err)
		c.cfg.logger.Warn("count fetch failed", "error", err)
		return
	}
	policy, err := c.cfg.newPolicy()
	if err != nil {
		attempt.err = err
		return
	}
	c.store = newStorage(storageConfig[T]{
		source:             c.cfg.pages,
		policy:             policy,
		background:         c.cfg.background,
		outbox:             c.outbox,
		publish:            c.publish,
		placeholder:        c.cfg.placeholder,
		preloadPlaceholder: c.cfg.preloadPlaceholder,
		logger:             c.cfg.logger,
		observer:           c.cfg.observer,
		pageSize:           c.cfg.pageSize,
		count:              count,
		async:              c.cfg.async,
		preloading:         c.cfg.preloading,
	})
	close(c.ready)
	c.cfg.logger.Debug("collection initialized", "count", count)
	c.outbox.Enqueue(func() {
		c.publish(Change[T]{Kind: ChangeCount, Count: count})
	})
}

// storage returns the initialized storage,
// starting or waiting for a count fetch as needed.
// Canceling ctx stops the wait, not the count fetch.
func (c *Collection[T]) storage(ctx context.Context) (*storage[T], error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		if c.store != nil {
			store := c.store
			c.mu.Unlock()
			return store, nil
		}
		var (
			attempt = c.attempt
			run     func()
		)
		if attempt == nil || settled(attempt) {
			// Previous attempt failed; retry on this access.
			attempt, run = c.beginLocked()
		}
		c.mu.Unlock()
		if run != nil {
			c.cfg.background.Schedule(run)
		}
		select {
		case <-attempt.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if err := attempt.err; err != nil &&
			!errors.Is(err, errSuperseded) {
			return nil, err
		}
	}
}

func settled(attempt *initAttempt) bool {
	select {
	case <-attempt.done:
		return true
	default:
		return false
	}
}

// At returns the value at index.
//
// Indices outside of [0, Len) return [ErrOutOfRange].
// Synchronous collections return an [ErrFetch] error if the page
// could not be loaded; it is fetched again on the next read.
func (c *Collection[T]) At(index int) (T, error) {
	for {
		store, err := c.storage(context.Background())
		if err != nil {
			var zero T
			return zero, err
		}
		if index < 0 || index >= store.count {
			var zero T
			return zero, outOfRangeError(index, store.count)
		}
		item, err := store.get(index)
		if errors.Is(err, ErrClosed) && !c.isClosed() {
			continue // Storage replaced by a reset.
		}
		return item, err
	}
}

// Len returns the length of the collection,
// or 0 while the count is not yet known.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return 0
	}
	return c.store.count
}

// Ready returns a channel that is closed once the count is known,
// or once the collection is closed.
func (c *Collection[T]) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// WaitReady blocks until the count is known, starting a new
// count fetch if the previous one failed.
func (c *Collection[T]) WaitReady(ctx context.Context) error {
	_, err := c.storage(ctx)
	return err
}

// Stats returns a snapshot of the page cache.
func (c *Collection[T]) Stats() Stats {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	if store == nil {
		return Stats{}
	}
	return store.stats()
}

// Subscribe registers fn to receive changes, which are delivered
// through the notification scheduler in the order they occurred.
// Subscribers should check [Collection.Len] after subscribing,
// since a [ChangeCount] may precede the subscription.
func (c *Collection[T]) Subscribe(fn func(Change[T])) (unsubscribe func()) {
	return c.subscribers.subscribe(fn)
}

func (c *Collection[T]) publish(change Change[T]) { c.subscribers.publish(change) }

// post runs fn through the notification scheduler,
// ordered with the collection's own changes.
func (c *Collection[T]) post(fn func()) { c.outbox.Enqueue(fn) }

func (c *Collection[T]) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close cancels outstanding fetches, waits for initialization
// to settle, and disposes every cached item.
// Calling Close more than once has no effect.
func (c *Collection[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	attempt, store := c.attempt, c.store
	c.store = nil
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
	c.mu.Unlock()
	if attempt != nil {
		attempt.cancel()
		<-attempt.done
	}
	if store != nil {
		store.close()
	}
	c.outbox.Close()
	c.cfg.logger.Debug("collection closed")
	return nil
}

// Reset cancels the count fetch and every page fetch in flight,
// disposes all cached items, and starts initialization again.
// A [ChangeReset] is published before any change of the new generation.
func (c *ResettableCollection[T]) Reset() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	var (
		previous, store = c.attempt, c.store
		_, run          = c.beginLocked()
	)
	c.store = nil
	select {
	case <-c.ready:
		c.ready = make(chan struct{})
	default: // Still pending; waiters carry over to the new generation.
	}
	c.mu.Unlock()
	if previous != nil {
		previous.cancel()
	}
	if store != nil {
		store.close()
	}
	c.post(func() {
		c.publish(Change[T]{Kind: ChangeReset})
	})
	c.cfg.logger.Debug("collection reset")
	c.cfg.background.Schedule(run)
	return nil
}

// touchRange feeds the removal policy with the cached pages
// covering [from, to), without fetching anything.
func (c *Collection[T]) touchRange(from, to int) {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	if store != nil {
		store.touchCached(from, to)
	}
}
