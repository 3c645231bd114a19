package pagevirt_test

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/djdv/go-pagevirt"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu sync.Mutex
	bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.String()
}

func TestWithLogger(t *testing.T) {
	t.Parallel()
	var (
		output syncBuffer
		logger = slog.New(slog.NewTextHandler(&output, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	)
	collection, err := pagevirt.NewBuilder[int](10, nil, pagevirt.WithLogger(logger)).
		NonPreloading().
		Hoarding().
		BlockingFetchers(
			func(offset, size int) ([]int, error) {
				if offset == 30 {
					return nil, errUnreachable
				}
				return sequence(offset, size), nil
			},
			fixedCount(50),
		).
		AsyncIndexAccess(placeholder, nil)
	require.NoError(t, err)
	require.NoError(t, collection.WaitReady(t.Context()))
	_, err = collection.At(35)
	require.NoError(t, err, "async reads report failures through the log")
	require.Eventually(t, func() bool {
		return strings.Contains(output.String(), "page fetch failed")
	}, waitFor, tick)
	require.NoError(t, collection.Close())
	logs := output.String()
	require.Contains(t, logs, "page=3")
	require.Contains(t, logs, "offset=30")
	require.Contains(t, logs, "collection initialized")
	require.Contains(t, logs, "collection closed")
}
