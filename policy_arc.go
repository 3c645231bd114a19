package pagevirt

import (
	"github.com/hashicorp/golang-lru/arc/v2"
)

// AdaptiveReplacement is a [RemovalPolicy] backed by an
// Adaptive Replacement Cache, which balances recency
// and frequency of page touches.
// Constructed by [NewAdaptiveReplacement].
type AdaptiveReplacement struct {
	arc      *arc.ARCCache[int, struct{}]
	resident map[int]struct{}
}

// NewAdaptiveReplacement creates an ARC policy retaining capacity pages.
// Capacity is clamped like the page limit of [NewLeastRecentlyUsed].
func NewAdaptiveReplacement(capacity int, preloading bool) (*AdaptiveReplacement, error) {
	capacity, _ = clampLimits(capacity, 1, preloading)
	cache, err := arc.NewARC[int, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &AdaptiveReplacement{
		arc:      cache,
		resident: make(map[int]struct{}, capacity+1),
	}, nil
}

// Len returns the number of resident pages.
func (policy *AdaptiveReplacement) Len() int { return policy.arc.Len() }

// Touch admits or refreshes the page and returns
// the pages the ARC dropped to make room for it.
func (policy *AdaptiveReplacement) Touch(event TouchEvent) []int {
	key := event.PageKey
	if _, ok := policy.arc.Get(key); ok {
		return nil
	}
	policy.arc.Add(key, struct{}{})
	policy.resident[key] = struct{}{}
	if len(policy.resident) <= policy.arc.Len() {
		return nil
	}
	var batch []int
	for resident := range policy.resident {
		if !policy.arc.Contains(resident) {
			batch = append(batch, resident)
			delete(policy.resident, resident)
		}
	}
	return batch
}
