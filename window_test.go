package pagevirt_test

import (
	"context"
	"testing"

	"github.com/djdv/go-pagevirt"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindow(t *testing.T) {
	t.Parallel()
	t.Run("clamping", windowClamping)
	t.Run("movement", windowMovement)
	t.Run("indexing", windowIndexing)
	t.Run("empty collection", windowEmpty)
	t.Run("notifications", windowNotifications)
	t.Run("prefetch", windowPrefetch)
	t.Run("close", windowClose)
}

func newWindow(tb testing.TB, source *pagevirt.Collection[int], offset, size int) *pagevirt.SlidingWindow[int] {
	tb.Helper()
	window, err := pagevirt.NewSlidingWindow(tb.Context(), source, offset, size)
	require.NoError(tb, err)
	tb.Cleanup(func() { window.Close() })
	return window
}

func requirePosition(tb testing.TB, window *pagevirt.SlidingWindow[int], offset, size int) {
	tb.Helper()
	require.Equal(tb, offset, window.Offset(), "offset")
	require.Equal(tb, size, window.Size(), "size")
}

func windowClamping(t *testing.T) {
	t.Parallel()
	collection := newSyncCollection(t, 10, 100)
	for _, test := range []struct {
		name                 string
		offset, size         int
		wantOffset, wantSize int
	}{
		{"in range", 20, 10, 20, 10},
		{"past the end", 95, 10, 90, 10},
		{"negative offset", -5, 10, 0, 10},
		{"larger than collection", 30, 500, 0, 100},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			window := newWindow(t, collection, test.offset, test.size)
			requirePosition(t, window, test.wantOffset, test.wantSize)
		})
	}
	_, err := pagevirt.NewSlidingWindow(t.Context(), collection, 0, 0)
	require.ErrorIs(t, err, pagevirt.ErrInvalidConfiguration)
}

func windowMovement(t *testing.T) {
	t.Parallel()
	const count = 100
	var (
		collection = newSyncCollection(t, 10, count)
		window     = newWindow(t, collection, 88, 10)
	)
	window.SlideRight()
	window.SlideRight()
	requirePosition(t, window, 90, 10)
	window.SlideRight() // Already at the end.
	requirePosition(t, window, 90, 10)
	window.SlideLeft()
	requirePosition(t, window, 89, 10)

	window.IncreaseWindowSize()
	window.IncreaseWindowSize()
	requirePosition(t, window, 88, 12)
	window.DecreaseWindowSize()
	requirePosition(t, window, 88, 11)

	window.JumpTo(-40)
	requirePosition(t, window, 0, 11)
	window.SlideLeft()
	requirePosition(t, window, 0, 11)
	window.JumpTo(count * 2)
	requirePosition(t, window, count-11, 11)

	for range count {
		window.DecreaseWindowSize()
	}
	requirePosition(t, window, count-11, 1)
	for range count * 2 {
		window.IncreaseWindowSize()
	}
	requirePosition(t, window, 0, count)
}

func windowIndexing(t *testing.T) {
	t.Parallel()
	var (
		collection = newSyncCollection(t, 10, 100)
		window     = newWindow(t, collection, 42, 5)
	)
	for i := range window.Size() {
		value, err := window.At(i)
		require.NoError(t, err)
		require.Equal(t, 42+i, value)
	}
	for _, i := range []int{-1, 5} {
		_, err := window.At(i)
		require.ErrorIs(t, err, pagevirt.ErrOutOfRange)
	}
}

func windowEmpty(t *testing.T) {
	t.Parallel()
	var (
		collection = newSyncCollection(t, 10, 0)
		window     = newWindow(t, collection, 3, 3)
	)
	requirePosition(t, window, 0, 0)
	window.SlideRight()
	window.IncreaseWindowSize()
	requirePosition(t, window, 0, 0)
	_, err := window.At(0)
	require.ErrorIs(t, err, pagevirt.ErrOutOfRange)
}

func windowNotifications(t *testing.T) {
	t.Parallel()
	const (
		pageSize = 10
		offset   = 52
		size     = 5
	)
	gate := make(chan struct{})
	collection, err := pagevirt.NewBuilder[int](pageSize, nil).
		NonPreloading().
		Hoarding().
		TaskBasedFetchers(gatedPages(gate, 0),
			func(context.Context) (int, error) { return 100, nil },
		).
		AsyncIndexAccess(placeholder, nil)
	require.NoError(t, err)
	t.Cleanup(func() { collection.Close() })
	window := newWindow(t, collection.Collection, 0, size)
	changes, unsubscribe := collectChanges(window.Subscribe)
	defer unsubscribe()

	window.JumpTo(offset)
	reset := awaitChange(t, changes, func(change pagevirt.Change[int]) bool {
		return change.Kind == pagevirt.ChangeReset
	})
	require.Equal(t, size, reset.Count)
	value, err := window.At(0)
	require.NoError(t, err)
	require.Equal(t, -1, value)

	close(gate)
	seen := make(map[int]bool)
	for len(seen) < size {
		change := awaitChange(t, changes, func(change pagevirt.Change[int]) bool {
			return change.Kind == pagevirt.ChangeReplace
		})
		require.Less(t, change.Index, size, "replace outside of the window")
		require.GreaterOrEqual(t, change.Index, 0)
		require.Equal(t, offset+change.Index, change.New)
		seen[change.Index] = true
	}
}

func windowPrefetch(t *testing.T) {
	t.Parallel()
	var (
		collection = newSyncCollection(t, 10, 1000)
		window     = newWindow(t, collection, 95, 60)
	)
	require.NoError(t, window.Prefetch(t.Context()))
	// Page 0 from construction, then pages 9 through 15.
	require.Equal(t, pagevirt.Stats{ResidentPages: 8}, collection.Stats())
}

func windowClose(t *testing.T) {
	t.Parallel()
	var (
		collection = newSyncCollection(t, 10, 100)
		window     = newWindow(t, collection, 0, 10)
	)
	require.NoError(t, window.Close())
	require.NoError(t, window.Close())
	_, err := window.At(0)
	require.ErrorIs(t, err, pagevirt.ErrClosed)
	window.SlideRight()
	requirePosition(t, window, 0, 10)
	_, err = collection.At(0)
	require.NoError(t, err, "closing a window leaves its collection open")
}
