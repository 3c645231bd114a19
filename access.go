package pagevirt

import (
	"context"
	"iter"
)

type (
	// PageFetchFunc blocks until the items in [offset, offset+pageSize) are read.
	// Only the final page of a sequence may be shorter than pageSize.
	PageFetchFunc[T any] func(offset, pageSize int) ([]T, error)
	// CountFetchFunc blocks until the length of the sequence is known.
	CountFetchFunc func() (int, error)

	// PageFetchContextFunc is the cancellable form of [PageFetchFunc].
	// Implementations should return promptly once ctx is done.
	PageFetchContextFunc[T any] func(ctx context.Context, offset, pageSize int) ([]T, error)
	// CountFetchContextFunc is the cancellable form of [CountFetchFunc].
	CountFetchContextFunc func(ctx context.Context) (int, error)

	// IncrementalFetchFunc streams the items of a page.
	// Items are published to readers as they are yielded,
	// rather than once the page is complete.
	// The sequence is consumed at most once per fetch.
	IncrementalFetchFunc[T any] func(ctx context.Context, offset, pageSize int) iter.Seq2[T, error]

	// PlaceholderFunc creates the value shown for an item
	// of page pageKey (at pageIndex within that page)
	// while the page is being fetched.
	PlaceholderFunc[T any] func(pageKey, pageIndex int) T

	// pageSource unifies the fetcher shapes.
	// deliver is called for each item that should be
	// published before the fetch completes; items delivered
	// that way are not repeated in the returned slice.
	pageSource[T any] interface {
		fetchPage(ctx context.Context, offset, size int, deliver func(int, T)) ([]T, error)
	}
	// countSource unifies the count fetcher shapes.
	countSource interface {
		fetchCount(ctx context.Context) (int, error)
	}

	blockingPages[T any]    PageFetchFunc[T]
	contextPages[T any]     PageFetchContextFunc[T]
	incrementalPages[T any] IncrementalFetchFunc[T]
	blockingCount           CountFetchFunc
	contextCount            CountFetchContextFunc
)

// fetchPage cannot interrupt the blocking call,
// but reports cancellation that happened while it ran.
func (fetch blockingPages[T]) fetchPage(ctx context.Context, offset, size int, _ func(int, T)) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := fetch(offset, size)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return items, err
	}
	return items, nil
}

func (fetch contextPages[T]) fetchPage(ctx context.Context, offset, size int, _ func(int, T)) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := fetch(ctx, offset, size)
	if err != nil {
		return items, err
	}
	if err := ctx.Err(); err != nil {
		return items, err
	}
	return items, nil
}

func (fetch incrementalPages[T]) fetchPage(ctx context.Context, offset, size int, deliver func(int, T)) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var index int
	for item, err := range fetch(ctx, offset, size) {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			// Not delivered; still owned here.
			_ = disposeItems([]T{item})
			return nil, err
		}
		if index == size {
			_ = disposeItems([]T{item})
			break // Source ignored the requested size.
		}
		deliver(index, item)
		index++
	}
	return nil, ctx.Err()
}

func (fetch blockingCount) fetchCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count, err := fetch()
	if err != nil {
		return 0, err
	}
	return count, ctx.Err()
}

func (fetch contextCount) fetchCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count, err := fetch(ctx)
	if err != nil {
		return 0, err
	}
	return count, ctx.Err()
}
