package pagevirt

import (
	"cmp"
	"slices"
)

type (
	// LeastRecentlyUsed retains a bounded number of pages,
	// releasing the ones touched least recently.
	// Constructed by [NewLeastRecentlyUsed].
	LeastRecentlyUsed struct {
		lastTouched  map[int]int64
		now          func() int64
		pageLimit    int
		removalCount int
	}
	// LRUOption customizes a [LeastRecentlyUsed] policy.
	LRUOption func(*LeastRecentlyUsed)

	touchStamp struct {
		key   int
		stamp int64
	}
)

// WithClock replaces the timestamp source used to order touches.
// now must return a strictly increasing value on each call;
// equal stamps make the eviction order between those pages arbitrary.
func WithClock(now func() int64) LRUOption {
	return func(policy *LeastRecentlyUsed) {
		policy.now = now
	}
}

// NewLeastRecentlyUsed creates a policy which, once more than pageLimit
// pages are tracked, evicts enough of the least recently touched pages
// to bring the count back to pageLimit-removalCount+1.
//
// Limits are clamped to [MinimumPageLimit] (or [MinimumPreloadingPageLimit]
// when preloading), and removalCount is clamped so that the pages kept
// warm by preloading are never part of a batch.
func NewLeastRecentlyUsed(pageLimit, removalCount int, preloading bool, options ...LRUOption) *LeastRecentlyUsed {
	pageLimit, removalCount = clampLimits(pageLimit, removalCount, preloading)
	policy := &LeastRecentlyUsed{
		lastTouched:  make(map[int]int64, pageLimit+1),
		pageLimit:    pageLimit,
		removalCount: removalCount,
	}
	for _, apply := range options {
		apply(policy)
	}
	if policy.now == nil {
		var tick int64
		policy.now = func() int64 {
			tick++
			return tick
		}
	}
	return policy
}

// PageLimit returns the (clamped) number of pages retained.
func (policy *LeastRecentlyUsed) PageLimit() int { return policy.pageLimit }

// RemovalCount returns the (clamped) eviction batch size.
func (policy *LeastRecentlyUsed) RemovalCount() int { return policy.removalCount }

// Len returns the number of pages currently tracked.
func (policy *LeastRecentlyUsed) Len() int { return len(policy.lastTouched) }

// Touch records the access and returns the pages to evict, if any.
// Returned keys are no longer tracked.
func (policy *LeastRecentlyUsed) Touch(event TouchEvent) []int {
	policy.lastTouched[event.PageKey] = policy.now()
	tracked := len(policy.lastTouched)
	if tracked <= policy.pageLimit {
		return nil
	}
	// The page just touched is never part of the overflow.
	removals := tracked - 1 - policy.pageLimit + policy.removalCount
	return policy.removeOldest(removals, event.PageKey)
}

func (policy *LeastRecentlyUsed) removeOldest(count, keep int) []int {
	stamps := make([]touchStamp, 0, len(policy.lastTouched))
	for key, stamp := range policy.lastTouched {
		if key == keep {
			continue
		}
		stamps = append(stamps, touchStamp{key: key, stamp: stamp})
	}
	slices.SortFunc(stamps, func(a, b touchStamp) int {
		return cmp.Compare(a.stamp, b.stamp)
	})
	count = min(count, len(stamps))
	batch := make([]int, count)
	for i, oldest := range stamps[:count] {
		batch[i] = oldest.key
		delete(policy.lastTouched, oldest.key)
	}
	return batch
}
