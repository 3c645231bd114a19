// Package ring provides the circular page list used by the CLOCK-Pro removal policy.
//
// Unlike `container/ring` a ring element carries no value;
// the removal policy only tracks page keys and their replacement state.
package ring

type (
	// A Ring is an element of a circular list of page keys.
	// Empty rings are represented as nil Ring pointers.
	// The zero value is a one-element ring.
	Ring[Key comparable] struct {
		next, prev *Ring[Key]
		Metadata[Key]
	}
	// Metadata stores the replacement state of a tracked page.
	Metadata[Key comparable] struct {
		// Name is the key of the page.
		Name Key
		// LIR (Low Inter-Reference Recency) is true for hot pages,
		// which are spared from eviction.
		LIR bool
		// Resident is true while the page is expected to be
		// held by the page storage.
		Resident bool
		// Demoted is true if the page was moved from hot to cold
		// and has not been referenced since.
		Demoted bool
		// Referenced is true if the page was touched since the last sweep.
		Referenced bool
		// Stacked is true if the page is within the recency stack.
		Stacked bool
	}
)

func (r *Ring[Key]) init() *Ring[Key] {
	r.next = r
	r.prev = r
	return r
}

// Next returns the next ring element. r must not be empty.
func (r *Ring[Key]) Next() *Ring[Key] {
	if r.next == nil {
		return r.init()
	}
	return r.next
}

// Prev returns the previous ring element. r must not be empty.
func (r *Ring[Key]) Prev() *Ring[Key] {
	if r.next == nil {
		return r.init()
	}
	return r.prev
}

func (r *Ring[Key]) move(n int) *Ring[Key] {
	if r.next == nil {
		return r.init()
	}
	for ; n > 0; n-- {
		r = r.next
	}
	return r
}

// Link inserts s after r and returns the element that previously followed r.
// If r and s belong to the same ring, the elements between them
// are removed and returned as a subring.
func (r *Ring[Key]) Link(s *Ring[Key]) *Ring[Key] {
	n := r.Next()
	if s != nil {
		p := s.Prev()
		// Separate statements; LHS evaluation order is unspecified.
		r.next = s
		s.prev = r
		n.prev = p
		p.next = n
	}
	return n
}

// Unlink removes n elements starting at r.Next()
// and returns them as a subring.
func (r *Ring[Key]) Unlink(n int) *Ring[Key] {
	if n <= 0 {
		return nil
	}
	return r.Link(r.move(n + 1))
}

// Len counts the elements of the ring in linear time.
func (r *Ring[Key]) Len() int {
	if r == nil {
		return 0
	}
	n := 1
	for p := r.Next(); p != r; p = p.next {
		n++
	}
	return n
}
