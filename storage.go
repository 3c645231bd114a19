package pagevirt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/djdv/go-pagevirt/internal/dispatch"
)

type (
	pageState uint8
	page[T any] struct {
		ctx    context.Context
		cancel context.CancelFunc
		done   chan struct{} // Closed once the fetch settles.
		err    error         // Valid after done.
		// after, if set, is the done channel of an evicted fetch
		// for the same key; this fetch starts once it closes.
		after <-chan struct{}
		// items holds the page's values.
		// In async mode it is allocated up front and
		// holds placeholders beyond filled.
		items  []T
		key    int
		filled int // items[:filled] are owned by the page.
		state  pageState
		// preloaded pages were requested speculatively
		// and do not preload their own neighbors.
		preloaded bool
	}
	storageConfig[T any] struct {
		source             pageSource[T]
		policy             RemovalPolicy
		background         Scheduler
		outbox             *dispatch.Queue
		publish            func(Change[T])
		placeholder        PlaceholderFunc[T]
		preloadPlaceholder PlaceholderFunc[T]
		logger             *slog.Logger
		observer           Observer
		pageSize, count    int
		async, preloading  bool
	}
	// storage caches the pages of a sequence whose count is known.
	// An entry exists in pages from the moment a fetch is requested
	// until the page is evicted. Pages evicted mid-fetch move to
	// draining until their fetch settles, and a new fetch for the
	// same key waits for them, so every page key has at most one
	// fetch in flight.
	storage[T any] struct {
		storageConfig[T]
		ctx      context.Context
		cancel   context.CancelFunc
		pages    map[int]*page[T]
		draining map[int]*page[T]
		touches chan TouchEvent
		stop    chan struct{}
		stopped chan struct{}
		fetches sync.WaitGroup
		mu      sync.Mutex
		closed  bool
	}
	// Stats is a snapshot of a collection's page cache.
	Stats struct {
		// ResidentPages counts pages that finished loading.
		ResidentPages int
		// LoadingPages counts pages with a fetch in flight.
		LoadingPages int
	}
)

const (
	pageLoading pageState = iota
	pageLoaded
)

const (
	touchBuffer = 256
	// errEvicted is reported to readers
	// waiting on a page that was evicted mid-fetch.
	errEvicted = constError("page evicted while loading")
)

func newStorage[T any](cfg storageConfig[T]) *storage[T] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &storage[T]{
		storageConfig: cfg,
		ctx:           ctx,
		cancel:        cancel,
		pages:         make(map[int]*page[T]),
		draining:      make(map[int]*page[T]),
		touches:       make(chan TouchEvent, touchBuffer),
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go s.evictLoop(cfg.policy)
	return s
}

func (s *storage[T]) pageLength(key int) int {
	return min(s.pageSize, s.count-key*s.pageSize)
}

func (s *storage[T]) get(index int) (T, error) {
	var (
		key  = index / s.pageSize
		slot = index % s.pageSize
	)
	if s.async {
		s.touch(TouchEvent{PageKey: key, PageIndex: slot})
		return s.getAsync(key, slot)
	}
	return s.getSync(key, slot)
}

// getAsync never waits for a fetch; it returns whatever the page
// currently holds at slot, which is a placeholder until loaded.
func (s *storage[T]) getAsync(key, slot int) (T, error) {
	s.mu.Lock()
	p, start, err := s.requestLocked(key, false)
	if err != nil {
		s.mu.Unlock()
		var zero T
		return zero, err
	}
	var (
		item          = p.items[slot]
		hit           = p.state == pageLoaded
		warmNeighbors = s.promoteLocked(p)
	)
	s.mu.Unlock()
	s.observer.PageRequested(key, hit)
	if start {
		s.schedule(p)
	}
	if warmNeighbors {
		s.preloadNeighbors(key)
	}
	return item, nil
}

// getSync waits for the page, fetching it on the calling
// goroutine if no other reader already is.
// Each attempt touches the key, since the policy stops
// tracking a key once it decides to evict it.
func (s *storage[T]) getSync(key, slot int) (T, error) {
	var zero T
	for {
		s.touch(TouchEvent{PageKey: key, PageIndex: slot})
		s.mu.Lock()
		p, start, err := s.requestLocked(key, false)
		if err != nil {
			s.mu.Unlock()
			return zero, err
		}
		var (
			hit           = p.state == pageLoaded
			warmNeighbors = s.promoteLocked(p)
		)
		s.mu.Unlock()
		s.observer.PageRequested(key, hit)
		if warmNeighbors {
			s.preloadNeighbors(key)
		}
		if start {
			s.load(p)
		}
		<-p.done
		switch err := p.err; {
		case err == nil:
			if slot >= len(p.items) {
				return zero, shortPageError(key, slot, len(p.items))
			}
			return p.items[slot], nil
		case errors.Is(err, errEvicted):
			continue
		case errors.Is(err, ErrClosed):
			return zero, err
		default:
			return zero, pageFetchError(key, err)
		}
	}
}

// requestLocked returns the page for key, registering a new
// loading page if none exists. When start is true, the caller
// must arrange for [storage.load] to be called exactly once.
func (s *storage[T]) requestLocked(key int, preload bool) (p *page[T], start bool, err error) {
	if s.closed {
		return nil, false, ErrClosed
	}
	if p, ok := s.pages[key]; ok {
		return p, false, nil
	}
	ctx, cancel := context.WithCancel(s.ctx)
	p = &page[T]{
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		key:       key,
		preloaded: preload,
	}
	if evicted, ok := s.draining[key]; ok {
		p.after = evicted.done
	}
	if s.async {
		p.items = s.placeholders(key, preload)
	}
	s.pages[key] = p
	s.fetches.Add(1)
	return p, true, nil
}

// promoteLocked marks a speculatively requested page as read directly.
// It reports whether the caller should now preload its neighbors.
func (s *storage[T]) promoteLocked(p *page[T]) bool {
	if !p.preloaded {
		return false
	}
	p.preloaded = false
	return s.preloading && p.state == pageLoaded
}

func (s *storage[T]) placeholders(key int, preload bool) []T {
	var (
		length      = s.pageLength(key)
		items       = make([]T, length)
		placeholder = s.placeholder
	)
	if preload && s.preloadPlaceholder != nil {
		placeholder = s.preloadPlaceholder
	}
	for i := range items {
		items[i] = placeholder(key, i)
	}
	return items
}

// schedule runs [storage.load] on background.
// A page waiting on a draining fetch is only handed over once
// that fetch settles, so it never holds a worker while it waits.
func (s *storage[T]) schedule(p *page[T]) {
	if p.after == nil {
		s.background.Schedule(func() { s.load(p) })
		return
	}
	go func() {
		<-p.after
		s.background.Schedule(func() { s.load(p) })
	}()
}

func (s *storage[T]) load(p *page[T]) {
	defer s.fetches.Done()
	if p.after != nil {
		<-p.after
		if err := p.ctx.Err(); err != nil {
			s.settle(p, nil, err)
			return
		}
	}
	if debugging {
		s.mu.Lock()
		_, draining := s.draining[p.key]
		live := p.ctx.Err() == nil
		s.mu.Unlock()
		assert(!live || !draining, "page fetch started while another is draining")
	}
	var (
		offset  = p.key * s.pageSize
		size    = s.pageLength(p.key)
		start   = time.Now()
		deliver = func(index int, item T) {
			s.deliver(p, index, item)
		}
	)
	items, err := s.source.fetchPage(p.ctx, offset, size, deliver)
	s.observer.PageLoaded(p.key, time.Since(start), err)
	if s.settle(p, items, err) {
		s.preloadNeighbors(p.key)
	}
}

// deliver publishes a single streamed item.
func (s *storage[T]) deliver(p *page[T], index int, item T) {
	s.mu.Lock()
	if !s.currentLocked(p) || index >= len(p.items) {
		s.mu.Unlock()
		s.dispose([]T{item})
		return
	}
	old := p.items[index]
	p.items[index] = item
	p.filled = max(p.filled, index+1)
	s.publishLocked(p.key*s.pageSize+index, old, item)
	s.mu.Unlock()
}

func (s *storage[T]) currentLocked(p *page[T]) bool {
	return !s.closed && s.pages[p.key] == p
}

// settle records the outcome of a fetch and releases waiting readers.
// It reports whether the page's neighbors should be preloaded.
func (s *storage[T]) settle(p *page[T], items []T, err error) bool {
	var (
		discard   []T
		populated bool
	)
	s.mu.Lock()
	if s.draining[p.key] == p {
		delete(s.draining, p.key)
	}
	switch {
	case !s.currentLocked(p):
		// Evicted or closed mid-fetch; the result was never cached.
		discard = items
		if s.closed {
			p.err = ErrClosed
		} else {
			p.err = errEvicted
		}
	case err != nil:
		delete(s.pages, p.key)
		discard = make([]T, 0, len(items)+p.filled)
		discard = append(discard, items...)
		discard = append(discard, s.retractLocked(p)...)
		p.err = err
	default:
		discard = s.populateLocked(p, items)
		populated = true
	}
	p.cancel()
	close(p.done)
	preload := populated && s.preloading && !p.preloaded
	s.mu.Unlock()

	s.dispose(discard)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		s.logger.Debug("page fetch canceled", "page", p.key)
	default:
		s.logger.Warn("page fetch failed",
			"page", p.key,
			"offset", p.key*s.pageSize,
			"error", err)
	}
	return preload
}

// retractLocked takes back the items a page delivered so far.
// In async mode, each delivered index is announced as
// reverting to the placeholder a new read would return.
func (s *storage[T]) retractLocked(p *page[T]) []T {
	delivered := p.items[:p.filled]
	if s.async {
		offset := p.key * s.pageSize
		for i, item := range delivered {
			s.publishLocked(offset+i, item, s.placeholder(p.key, i))
		}
	}
	p.filled = 0
	return delivered
}

// populateLocked stores a fetched page and
// returns any surplus items the source delivered.
func (s *storage[T]) populateLocked(p *page[T], items []T) (surplus []T) {
	size := s.pageLength(p.key)
	if len(items) > size {
		items, surplus = items[:size], items[size:]
	}
	if s.async {
		offset := p.key * s.pageSize
		for i, item := range items {
			old := p.items[i]
			p.items[i] = item
			s.publishLocked(offset+i, old, item)
		}
		p.filled = max(p.filled, len(items))
	} else {
		p.items = items
		p.filled = len(items)
	}
	p.state = pageLoaded
	if p.filled < size {
		s.logger.Warn("page delivered fewer items than requested",
			"page", p.key,
			"size", size,
			"count", p.filled)
	}
	if debugging {
		assert(s.pages[p.key] == p, "populated a page that is not mapped")
	}
	return surplus
}

func (s *storage[T]) publishLocked(index int, old, item T) {
	change := Change[T]{
		Kind:  ChangeReplace,
		Index: index,
		Old:   old,
		New:   item,
	}
	s.outbox.Enqueue(func() { s.publish(change) })
}

func (s *storage[T]) preloadNeighbors(key int) {
	for _, neighbor := range [...]int{key - 1, key + 1} {
		if neighbor < 0 || neighbor*s.pageSize >= s.count {
			continue
		}
		s.touch(TouchEvent{PageKey: neighbor})
		s.mu.Lock()
		p, start, err := s.requestLocked(neighbor, true)
		s.mu.Unlock()
		if err != nil {
			return
		}
		if start {
			s.schedule(p)
		}
	}
}

// touchCached feeds the removal policy with the pages in
// [from, to) that are currently cached or loading.
func (s *storage[T]) touchCached(from, to int) {
	if to <= from {
		return
	}
	var (
		first = from / s.pageSize
		last  = (to - 1) / s.pageSize
		keys  = make([]int, 0, last-first+1)
	)
	s.mu.Lock()
	for key := first; key <= last; key++ {
		if _, ok := s.pages[key]; ok {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()
	for _, key := range keys {
		s.touch(TouchEvent{PageKey: key})
	}
}

func (s *storage[T]) touch(event TouchEvent) {
	select {
	case s.touches <- event:
	case <-s.stop:
	}
}

// evictLoop is the only user of policy.
func (s *storage[T]) evictLoop(policy RemovalPolicy) {
	defer close(s.stopped)
	for {
		select {
		case event := <-s.touches:
			if batch := policy.Touch(event); len(batch) != 0 {
				s.evict(batch)
			}
		case <-s.stop:
			return
		}
	}
}

// evict removes the pages from the map, transferring
// their items to the disposer. Loading pages are canceled
// and kept as draining until their fetch settles;
// its result is discarded then.
func (s *storage[T]) evict(batch []int) {
	var discard []T
	s.mu.Lock()
	for _, key := range batch {
		p, ok := s.pages[key]
		if !ok {
			continue
		}
		delete(s.pages, key)
		if p.state == pageLoaded {
			discard = append(discard, p.items[:p.filled]...)
			p.filled = 0
			continue
		}
		p.cancel()
		s.draining[key] = p
		discard = append(discard, s.retractLocked(p)...)
	}
	s.mu.Unlock()
	s.observer.PagesEvicted(batch)
	s.logger.Debug("pages evicted", "pages", batch)
	s.dispose(discard)
}

func (s *storage[T]) stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats Stats
	for _, p := range s.pages {
		if p.state == pageLoaded {
			stats.ResidentPages++
		} else {
			stats.LoadingPages++
		}
	}
	return stats
}

// close cancels every fetch, waits for them to settle,
// and disposes all cached items.
func (s *storage[T]) close() {
	var discard []T
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for key, p := range s.pages {
		if p.state == pageLoading {
			p.cancel()
		}
		discard = append(discard, p.items[:p.filled]...)
		p.filled = 0
		delete(s.pages, key)
	}
	clear(s.draining)
	s.mu.Unlock()
	s.cancel()
	close(s.stop)
	<-s.stopped
	s.fetches.Wait()
	s.dispose(discard)
}

func (s *storage[T]) dispose(items []T) {
	if err := disposeItems(items); err != nil {
		s.logger.Warn("disposing items", "error", err)
	}
}

// disposeItems closes every item that implements [io.Closer].
func disposeItems[T any](items []T) error {
	var errs []error
	for _, item := range items {
		if closer, ok := any(item).(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
