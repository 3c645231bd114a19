package pagevirt

import "errors"

type (
	// Builder is the first stage of collection construction.
	// Each stage only offers the choices that are valid after the
	// previous one, so an illegal combination (such as synchronous
	// reads over cancellable fetchers) cannot be expressed.
	// Constructed by [NewBuilder].
	Builder[T any] struct{ state *buildState[T] }
	// RemovalStage selects the page removal policy.
	RemovalStage[T any] struct{ state *buildState[T] }
	// FetcherStage selects the data access convention.
	FetcherStage[T any] struct{ state *buildState[T] }
	// BlockingAccessStage selects synchronous or asynchronous
	// reads over blocking fetchers.
	BlockingAccessStage[T any] struct{ state *buildState[T] }
	// TaskAccessStage completes a collection over cancellable
	// or incremental fetchers, which only support asynchronous reads.
	TaskAccessStage[T any] struct{ state *buildState[T] }

	buildState[T any] struct {
		cfg  collectionConfig[T]
		errs []error
	}
)

// NewBuilder starts the construction of a collection
// with the given page size. Changes are delivered through
// notification; if nil, they are delivered on the collection's
// internal dispatch goroutine.
func NewBuilder[T any](pageSize int, notification Scheduler, options ...Option) Builder[T] {
	state := &buildState[T]{
		cfg: collectionConfig[T]{
			pageSize:     pageSize,
			notification: notification,
			options:      newOptions(options),
		},
	}
	if pageSize < 1 {
		state.fail("page size", "must be >=1 but %d was requested", pageSize)
	}
	if notification == nil {
		state.cfg.notification = InlineScheduler{}
	}
	return Builder[T]{state: state}
}

func (state *buildState[T]) fail(stage, format string, args ...any) {
	state.errs = append(state.errs, configError(stage, format, args...))
}

func (state *buildState[T]) finish() (collectionConfig[T], error) {
	return state.cfg, errors.Join(state.errs...)
}

// Preloading makes the collection fetch the neighbors of every
// page it loads. Neighbor items read before their page arrives
// show placeholder's values; if nil, the placeholder of
// [BlockingAccessStage.AsyncIndexAccess] is used.
func (b Builder[T]) Preloading(placeholder PlaceholderFunc[T]) RemovalStage[T] {
	b.state.cfg.preloading = true
	b.state.cfg.preloadPlaceholder = placeholder
	return RemovalStage[T](b)
}

// NonPreloading only fetches pages that are read.
func (b Builder[T]) NonPreloading() RemovalStage[T] {
	return RemovalStage[T](b)
}

// Hoarding keeps every page for the lifetime of the collection.
func (stage RemovalStage[T]) Hoarding() FetcherStage[T] {
	stage.state.cfg.newPolicy = func() (RemovalPolicy, error) {
		return Hoarding(), nil
	}
	return FetcherStage[T](stage)
}

// LeastRecentlyUsed bounds the cache with [NewLeastRecentlyUsed].
func (stage RemovalStage[T]) LeastRecentlyUsed(pageLimit, removalCount int, options ...LRUOption) FetcherStage[T] {
	preloading := stage.state.cfg.preloading
	stage.state.cfg.newPolicy = func() (RemovalPolicy, error) {
		return NewLeastRecentlyUsed(pageLimit, removalCount, preloading, options...), nil
	}
	return FetcherStage[T](stage)
}

// ClockPro bounds the cache with [NewClockPro].
func (stage RemovalStage[T]) ClockPro(capacity int) FetcherStage[T] {
	preloading := stage.state.cfg.preloading
	stage.state.cfg.newPolicy = func() (RemovalPolicy, error) {
		return NewClockPro(capacity, preloading), nil
	}
	return FetcherStage[T](stage)
}

// AdaptiveReplacement bounds the cache with [NewAdaptiveReplacement].
func (stage RemovalStage[T]) AdaptiveReplacement(capacity int) FetcherStage[T] {
	preloading := stage.state.cfg.preloading
	stage.state.cfg.newPolicy = func() (RemovalPolicy, error) {
		return NewAdaptiveReplacement(capacity, preloading)
	}
	return FetcherStage[T](stage)
}

// BlockingFetchers reads pages and the count with blocking calls.
func (stage FetcherStage[T]) BlockingFetchers(pages PageFetchFunc[T], count CountFetchFunc) BlockingAccessStage[T] {
	if pages == nil || count == nil {
		stage.state.fail("blocking fetchers", "page and count fetchers are required")
	}
	stage.state.cfg.pages = blockingPages[T](pages)
	stage.state.cfg.count = blockingCount(count)
	return BlockingAccessStage[T](stage)
}

// TaskBasedFetchers reads pages and the count with cancellable calls.
func (stage FetcherStage[T]) TaskBasedFetchers(pages PageFetchContextFunc[T], count CountFetchContextFunc) TaskAccessStage[T] {
	if pages == nil || count == nil {
		stage.state.fail("task based fetchers", "page and count fetchers are required")
	}
	stage.state.cfg.pages = contextPages[T](pages)
	stage.state.cfg.count = contextCount(count)
	return TaskAccessStage[T](stage)
}

// IncrementalFetchers streams page items as they are produced.
func (stage FetcherStage[T]) IncrementalFetchers(pages IncrementalFetchFunc[T], count CountFetchContextFunc) TaskAccessStage[T] {
	if pages == nil || count == nil {
		stage.state.fail("incremental fetchers", "page and count fetchers are required")
	}
	stage.state.cfg.pages = incrementalPages[T](pages)
	stage.state.cfg.count = contextCount(count)
	return TaskAccessStage[T](stage)
}

// SyncIndexAccess fetches the count and the first page before returning.
// Reads block until their page is loaded.
func (stage BlockingAccessStage[T]) SyncIndexAccess() (*Collection[T], error) {
	cfg, err := stage.state.finish()
	if err != nil {
		return nil, err
	}
	// Only used to preload neighbors.
	cfg.background = GoScheduler{}
	collection := newCollection(cfg)
	collection.mu.Lock()
	attempt, initialize := collection.beginLocked()
	collection.mu.Unlock()
	initialize()
	if err := attempt.err; err != nil {
		collection.Close()
		return nil, err
	}
	if collection.Len() > 0 {
		if _, err := collection.At(0); err != nil {
			cfg.logger.Warn("loading first page", "error", err)
		}
	}
	return collection, nil
}

// AsyncIndexAccess returns immediately; the count and pages are
// fetched on background. Reads return placeholder values until their
// page arrives. If background is nil, a [GoScheduler] is used.
func (stage BlockingAccessStage[T]) AsyncIndexAccess(placeholder PlaceholderFunc[T], background Scheduler) (*Collection[T], error) {
	return buildAsync(stage.state, placeholder, background)
}

// AsyncIndexAccess is the only access mode for cancellable fetchers.
// See [BlockingAccessStage.AsyncIndexAccess].
func (stage TaskAccessStage[T]) AsyncIndexAccess(placeholder PlaceholderFunc[T], background Scheduler) (*ResettableCollection[T], error) {
	collection, err := buildAsync(stage.state, placeholder, background)
	if err != nil {
		return nil, err
	}
	return &ResettableCollection[T]{Collection: collection}, nil
}

func buildAsync[T any](state *buildState[T], placeholder PlaceholderFunc[T], background Scheduler) (*Collection[T], error) {
	if placeholder == nil {
		state.fail("async index access", "a placeholder is required")
	}
	cfg, err := state.finish()
	if err != nil {
		return nil, err
	}
	if background == nil {
		background = GoScheduler{}
	}
	cfg.async = true
	cfg.placeholder = placeholder
	cfg.background = background
	if cfg.preloadPlaceholder == nil {
		cfg.preloadPlaceholder = placeholder
	}
	collection := newCollection(cfg)
	collection.mu.Lock()
	_, initialize := collection.beginLocked()
	collection.mu.Unlock()
	background.Schedule(initialize)
	return collection, nil
}
