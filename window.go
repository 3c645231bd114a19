package pagevirt

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

type (
	// SlidingWindow is a bounded, repositionable view over a [Collection].
	// Index i of the window is index Offset()+i of the collection.
	// Constructed by [NewSlidingWindow].
	//
	// Subscribers receive [ChangeReplace] for indices in view
	// (relative to the window) and [ChangeReset] whenever the
	// window moves or resizes; Change.Count then holds the new size.
	SlidingWindow[T any] struct {
		source      *Collection[T]
		unsubscribe func()
		subscribers broadcaster[T]
		mu          sync.Mutex
		// offset and size are the window as positioned by its methods.
		offset, size int
		// wantSize is the last size requested,
		// restored when the count grows again after a reset.
		wantSize int
		// view is the window as last announced to subscribers.
		view   struct{ offset, size int }
		closed bool
	}
)

// prefetchWorkers bounds [SlidingWindow.Prefetch].
const prefetchWorkers = 4

// NewSlidingWindow waits for source's count, then
// positions a window of size elements at offset.
// Both are clamped to fit the collection.
// Closing the window does not close source.
func NewSlidingWindow[T any](ctx context.Context, source *Collection[T], offset, size int) (*SlidingWindow[T], error) {
	if size < 1 {
		return nil, configError("sliding window", "size must be >=1 but %d was requested", size)
	}
	if err := source.WaitReady(ctx); err != nil {
		return nil, err
	}
	w := &SlidingWindow[T]{
		source:   source,
		wantSize: size,
	}
	w.offset, w.size = clampWindow(offset, size, source.Len())
	w.view.offset, w.view.size = w.offset, w.size
	w.unsubscribe = source.Subscribe(w.relay)
	w.touchView(w.offset, w.size)
	return w, nil
}

// clampWindow fits a window in [0, count).
// size is kept within [1, count] and offset within [0, count-size].
func clampWindow(offset, size, count int) (int, int) {
	if count <= 0 {
		return 0, 0
	}
	size = min(max(size, 1), count)
	offset = min(max(offset, 0), count-size)
	return offset, size
}

// Offset returns the collection index of the first element in view.
func (w *SlidingWindow[T]) Offset() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

// Size returns the number of elements in view.
func (w *SlidingWindow[T]) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// At returns the element at window index i.
// Indices outside of [0, Size) return [ErrOutOfRange].
func (w *SlidingWindow[T]) At(i int) (T, error) {
	w.mu.Lock()
	var (
		closed       = w.closed
		offset, size = w.offset, w.size
	)
	w.mu.Unlock()
	var zero T
	if closed {
		return zero, ErrClosed
	}
	if i < 0 || i >= size {
		return zero, outOfRangeError(i, size)
	}
	return w.source.At(offset + i)
}

// SlideLeft moves the window back by one element.
// It has no effect at the start of the collection.
func (w *SlidingWindow[T]) SlideLeft() {
	w.move(func(offset, size int) (int, int) { return offset - 1, size })
}

// SlideRight moves the window forward by one element.
// It has no effect at the end of the collection.
func (w *SlidingWindow[T]) SlideRight() {
	w.move(func(offset, size int) (int, int) { return offset + 1, size })
}

// IncreaseWindowSize grows the window by one element at its end,
// moving it back if it would run past the end of the collection.
func (w *SlidingWindow[T]) IncreaseWindowSize() {
	w.move(func(offset, size int) (int, int) { return offset, size + 1 })
}

// DecreaseWindowSize shrinks the window by one element at its end.
// The window never shrinks below one element.
func (w *SlidingWindow[T]) DecreaseWindowSize() {
	w.move(func(offset, size int) (int, int) { return offset, size - 1 })
}

// JumpTo moves the window to offset, clamped to the collection.
func (w *SlidingWindow[T]) JumpTo(offset int) {
	w.move(func(_, size int) (int, int) { return offset, size })
}

func (w *SlidingWindow[T]) move(next func(offset, size int) (int, int)) {
	count := w.source.Len()
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	requestedOffset, requestedSize := next(w.offset, w.size)
	if requestedSize != w.size {
		w.wantSize = max(requestedSize, 1)
	}
	offset, size := clampWindow(requestedOffset, requestedSize, count)
	if offset == w.offset && size == w.size {
		w.mu.Unlock()
		return
	}
	w.offset, w.size = offset, size
	w.mu.Unlock()
	w.touchView(offset, size)
	w.announce(offset, size)
}

func (w *SlidingWindow[T]) touchView(offset, size int) {
	w.source.touchRange(offset, offset+size)
}

// announce publishes a reset in order with the source's changes.
func (w *SlidingWindow[T]) announce(offset, size int) {
	w.source.post(func() {
		w.mu.Lock()
		w.view.offset, w.view.size = offset, size
		w.mu.Unlock()
		w.subscribers.publish(Change[T]{Kind: ChangeReset, Count: size})
	})
}

// relay translates the source's changes into the window's index space.
// It runs on the source's notification path, after every
// announcement enqueued before the change.
func (w *SlidingWindow[T]) relay(change Change[T]) {
	switch change.Kind {
	case ChangeReplace:
		w.mu.Lock()
		view := w.view
		w.mu.Unlock()
		index := change.Index - view.offset
		if index < 0 || index >= view.size {
			return
		}
		change.Index = index
		w.subscribers.publish(change)
	case ChangeCount:
		w.mu.Lock()
		offset, size := clampWindow(w.offset, w.wantSize, change.Count)
		unchanged := w.view.offset == offset && w.view.size == size
		w.offset, w.size = offset, size
		w.view.offset, w.view.size = offset, size
		w.mu.Unlock()
		if unchanged {
			return
		}
		w.touchView(offset, size)
		w.subscribers.publish(Change[T]{Kind: ChangeReset, Count: size})
	case ChangeReset:
		w.mu.Lock()
		w.offset, w.size = 0, 0
		w.view.offset, w.view.size = 0, 0
		w.mu.Unlock()
		w.subscribers.publish(change)
	}
}

// Subscribe registers fn to receive the window's changes.
// See [Collection.Subscribe].
func (w *SlidingWindow[T]) Subscribe(fn func(Change[T])) (unsubscribe func()) {
	return w.subscribers.subscribe(fn)
}

// Prefetch requests every page in view, a few at a time.
// For synchronous collections it returns once they are loaded,
// or with the first fetch error.
func (w *SlidingWindow[T]) Prefetch(ctx context.Context) error {
	w.mu.Lock()
	offset, size := w.offset, w.size
	w.mu.Unlock()
	if size == 0 {
		return nil
	}
	var (
		pageSize = w.source.cfg.pageSize
		first    = offset / pageSize
		last     = (offset + size - 1) / pageSize
	)
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(prefetchWorkers)
	for key := first; key <= last; key++ {
		index := max(key*pageSize, offset)
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := w.source.At(index)
			return err
		})
	}
	return group.Wait()
}

// Close detaches the window from its collection.
// Calling Close more than once has no effect.
func (w *SlidingWindow[T]) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	w.unsubscribe()
	return nil
}
