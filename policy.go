package pagevirt

type (
	// TouchEvent is emitted every time an index of a page is read.
	TouchEvent struct {
		// PageKey identifies the page (its index within the sequence of pages).
		PageKey int
		// PageIndex is the position of the item read within the page.
		PageIndex int
	}
	// RemovalPolicy decides which pages a storage should release.
	//
	// Touch is called once per [TouchEvent], in event order,
	// from a single goroutine owned by the storage.
	// The returned batch (if any) lists the keys to evict,
	// least valuable first. Implementations may forget the
	// returned keys immediately; the storage honors every batch.
	RemovalPolicy interface {
		Touch(TouchEvent) []int
	}

	hoarding struct{}
)

const (
	// MinimumPageLimit is the lowest page limit a policy retains.
	MinimumPageLimit = 1
	// MinimumPreloadingPageLimit is the lowest page limit a policy
	// retains when neighbor pages are preloaded: the touched page,
	// both neighbors, and one page to rotate.
	MinimumPreloadingPageLimit = 4
	// preloadReserve is the number of pages a preloading
	// storage keeps warm around the page being read.
	preloadReserve = 3
)

// Hoarding returns a policy that never evicts.
func Hoarding() RemovalPolicy { return hoarding{} }

func (hoarding) Touch(TouchEvent) []int { return nil }

// clampLimits adjusts a page limit and removal batch size so that
// a removal never drops the pages a reader currently depends on.
func clampLimits(pageLimit, removalCount int, preloading bool) (int, int) {
	if preloading {
		pageLimit = max(pageLimit, MinimumPreloadingPageLimit)
		removalCount = min(removalCount, pageLimit-preloadReserve)
	} else {
		pageLimit = max(pageLimit, MinimumPageLimit)
		removalCount = min(removalCount, pageLimit)
	}
	return pageLimit, max(removalCount, 1)
}
