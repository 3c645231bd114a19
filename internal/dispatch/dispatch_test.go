package dispatch_test

import (
	"sync"
	"testing"
	"time"

	"github.com/djdv/go-pagevirt/internal/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	t.Run("order", order)
	t.Run("drain", drain)
	t.Run("close drops", closeDrops)
}

func inline(fn func()) { fn() }

func order(t *testing.T) {
	t.Parallel()
	const count = 1000
	var (
		queue = dispatch.New(inline)
		mu    sync.Mutex
		got   = make([]int, 0, count)
	)
	for i := range count {
		require.True(t, queue.Enqueue(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	queue.Drain()
	require.Len(t, got, count)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func drain(t *testing.T) {
	t.Parallel()
	var (
		queue = dispatch.New(inline)
		ran   int
	)
	queue.Enqueue(func() { ran++ })
	queue.Drain()
	assert.Equal(t, 1, ran)
	assert.False(t, queue.Enqueue(func() { ran++ }),
		"queue accepted work after drain")
	queue.Close() // Must not block or panic.
}

func closeDrops(t *testing.T) {
	t.Parallel()
	var (
		release = make(chan struct{})
		started = make(chan struct{})
		queue   = dispatch.New(inline)
		ran     int
	)
	queue.Enqueue(func() {
		close(started)
		<-release
	})
	<-started
	for range 10 {
		queue.Enqueue(func() { ran++ })
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	queue.Close()
	assert.Zero(t, ran, "pending functions ran after close")
	assert.Zero(t, queue.Len())
}
