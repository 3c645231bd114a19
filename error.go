package pagevirt

import "fmt"

type constError string

const (
	// ErrInvalidConfiguration is returned by the terminal [Builder] stages
	// when a value supplied to an earlier stage cannot be used.
	ErrInvalidConfiguration = constError("invalid configuration")
	// ErrOutOfRange is returned when an index falls outside of a
	// collection or window.
	ErrOutOfRange = constError("index out of range")
	// ErrFetch wraps failures reported by a data source.
	// The page (or count) that failed remains unloaded
	// and is fetched again on its next access.
	ErrFetch = constError("fetch failed")
	// ErrClosed is returned by operations on a closed collection.
	ErrClosed = constError("collection closed")
)

func (errStr constError) Error() string { return string(errStr) }

func configError(stage, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s",
		ErrInvalidConfiguration, stage, fmt.Sprintf(format, args...))
}

func outOfRangeError(index, count int) error {
	return fmt.Errorf(
		"%w: index %d not in [0,%d)",
		ErrOutOfRange, index, count)
}

func pageFetchError(pageKey int, err error) error {
	return fmt.Errorf("%w: page %d: %w", ErrFetch, pageKey, err)
}

func countFetchError(err error) error {
	return fmt.Errorf("%w: count: %w", ErrFetch, err)
}

func shortPageError(pageKey, index, have int) error {
	return fmt.Errorf(
		"%w: page %d holds %d items, index %d was not delivered",
		ErrFetch, pageKey, have, index)
}
