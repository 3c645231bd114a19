package ring_test

import (
	"testing"

	"github.com/djdv/go-pagevirt/internal/ring"
)

func TestRing(t *testing.T) {
	t.Run("zero value", zeroValue)
	t.Run("link", link)
	t.Run("unlink", unlink)
}

func zeroValue(t *testing.T) {
	t.Parallel()
	var r ring.Ring[int]
	if r.Next() != &r || r.Prev() != &r {
		t.Fatal("zero ring must point to itself")
	}
	checkLen(t, &r, 1)
	checkLen(t, (*ring.Ring[int])(nil), 0)
}

func link(t *testing.T) {
	t.Parallel()
	head := newElements(3)
	checkLen(t, head, 3)
	checkOrder(t, head, []int{0, 1, 2})
}

func unlink(t *testing.T) {
	t.Parallel()
	head := newElements(4)
	removed := head.Unlink(1)
	if removed.Name != 1 {
		t.Fatalf("unlinked wrong element: %d", removed.Name)
	}
	checkLen(t, removed, 1)
	checkOrder(t, head, []int{0, 2, 3})
	if got := head.Unlink(0); got != nil {
		t.Fatal("unlinking zero elements must return nil")
	}
}

func newElements(n int) *ring.Ring[int] {
	var (
		head = &ring.Ring[int]{}
		tail = head
	)
	for i := 1; i < n; i++ {
		next := &ring.Ring[int]{Metadata: ring.Metadata[int]{Name: i}}
		tail.Link(next)
		tail = next
	}
	return head
}

func checkLen(tb testing.TB, r *ring.Ring[int], want int) {
	tb.Helper()
	if got := r.Len(); got != want {
		tb.Fatalf("unexpected ring length"+
			"\n\tgot: %d"+
			"\n\twant: %d",
			got, want)
	}
}

func checkOrder(tb testing.TB, r *ring.Ring[int], want []int) {
	tb.Helper()
	p := r
	for i, name := range want {
		if p.Name != name {
			tb.Fatalf("element %d"+
				"\n\tgot: %d"+
				"\n\twant: %d",
				i, p.Name, name)
		}
		p = p.Next()
	}
	if p != r {
		tb.Fatal("ring did not wrap around")
	}
}
