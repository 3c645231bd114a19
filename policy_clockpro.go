package pagevirt

import (
	"iter"

	"github.com/djdv/go-pagevirt/internal/ring"
)

type (
	clockPage = ring.Ring[int]
	// ClockPro is a scan resistant [RemovalPolicy] using the CLOCK-Pro+
	// replacement algorithm over page keys.
	// Constructed by [NewClockPro].
	//
	// A page is considered resident from its first touch until it
	// is returned in an eviction batch. Evicted pages may linger as
	// nonresident "test" metadata, which guides the adaptive split
	// between hot and cold pages when they are touched again.
	ClockPro struct {
		index map[int]*clockPage
		hot, cold,
		test, lru *clockPage
		evicted []int
		capacity, coldTarget, hotTarget,
		coldCount, hotCount, testCount,
		demotions int
	}
)

// MinimumClockProCapacity is the lowest capacity supported by [NewClockPro],
// allowing for both a hot and a cold page.
const MinimumClockProCapacity = 2

// NewClockPro creates a CLOCK-Pro+ policy retaining capacity pages.
// Capacity is clamped to [MinimumClockProCapacity]
// (or [MinimumPreloadingPageLimit] when preloading).
func NewClockPro(capacity int, preloading bool) *ClockPro {
	const minimumColdRatio = 0.01
	capacity = max(capacity, MinimumClockProCapacity)
	if preloading {
		capacity = max(capacity, MinimumPreloadingPageLimit)
	}
	var ( // Range: [1,half-capacity]
		coldInitial = max(float64(capacity)*minimumColdRatio, 1)
		coldTarget  = min(int(coldInitial), capacity/2)
		hotTarget   = capacity - coldTarget
	)
	return &ClockPro{
		capacity:   capacity,
		index:      make(map[int]*clockPage, capacity*2),
		coldTarget: coldTarget,
		hotTarget:  hotTarget,
	}
}

// Touch marks a resident page as referenced, or admits a new one.
// Admission past capacity evicts exactly one cold page.
func (c *ClockPro) Touch(event TouchEvent) []int {
	page, found := c.index[event.PageKey]
	if found && page.Resident {
		page.Referenced = true
		return nil
	}
	c.handleMiss(event.PageKey, found)
	batch := c.evicted
	c.evicted = nil
	return batch
}

// handleMiss admits key as resident.
// Caller must provide if the page's metadata was present
// (even if the page was not resident).
func (c *ClockPro) handleMiss(key int, hadMetadata bool) {
	c.sweepHot()
	c.sweepCold()
	if hadMetadata {
		// Test pages which survived the sweeps are readmitted as hot.
		if test, hit := c.index[key]; hit {
			c.promoteTest(test)
			return
		}
	}
	if c.atCapacity() {
		c.evictCold()
	}
	c.addNew(key)
}

func (c *ClockPro) atCapacity() bool {
	return c.coldCount+c.hotCount == c.capacity
}

func (c *ClockPro) addNew(key int) {
	var (
		lowIRR = c.coldCount == 0 &&
			c.hotCount < c.hotTarget
		page = &clockPage{
			Metadata: ring.Metadata[int]{
				Name:     key,
				Resident: true,
				LIR:      lowIRR,
				Stacked:  true,
			},
		}
	)
	c.addToClock(page)
	if lowIRR {
		c.hotCount++
	} else {
		if c.cold == nil {
			c.cold = page
		}
		c.coldCount++
	}
	c.sweepCold()
	c.pruneTest()
}

func (c *ClockPro) promoteTest(testToHot *clockPage) {
	if debugging {
		assert(testToHot.Stacked,
			"hit a non-resident cold page out of the stack")
		assert(!testToHot.Referenced,
			"hit a referenced non-resident cold page")
		assert(c.hotCount+c.coldCount == c.capacity,
			"clock not full")
	}
	c.increaseColdTarget()
	c.evictCold()
	testToHot.Resident = true
	c.testCount--
	c.coldCount++
	if testToHot == c.test {
		c.sweepTest()
	}
	c.promoteCold(testToHot)
	c.sweepCold()
}

func (c *ClockPro) sweepHot() {
	if c.hotCount == 0 {
		return
	}
	page := c.hot
	for !page.LIR || page.Referenced {
		next := page.Next()
		if page.LIR {
			page.Referenced = false
			c.lru = page
		} else {
			c.handleHotHIR(page, next)
		}
		page = next
	}
	c.hot = page
}

func (c *ClockPro) handleHotHIR(page, next *clockPage) {
	switch {
	case !page.Resident:
		c.removeTest(page)
	case page.Referenced:
		page.Referenced = false
		if page.Demoted {
			c.decreaseColdTarget()
			page.Demoted = false
			c.demotions--
		}
		c.lru = page
		if page == c.cold {
			c.cold = next
		}
	default:
		page.Stacked = false
	}
}

func (c *ClockPro) increaseColdTarget() {
	c.adjustColdTarget(max(c.demotions/c.testCount, 1))
}

func (c *ClockPro) decreaseColdTarget() {
	c.adjustColdTarget(-max(c.testCount/max(c.demotions, 1), 1))
}

func (c *ClockPro) adjustColdTarget(delta int) {
	coldTarget := min(max(c.coldTarget+delta, 1), c.capacity/2)
	c.coldTarget = coldTarget
	c.hotTarget = c.capacity - coldTarget
}

func (c *ClockPro) removeTest(test *clockPage) {
	if test == c.test {
		c.test = test.Next()
	}
	delete(c.index, test.Name)
	test.Prev().Unlink(1)
	c.testCount--
	c.sweepTest()
}

func (c *ClockPro) sweepTest() {
	if c.testCount == 0 {
		c.test = nil
		return
	}
	hand := c.test
	for hand.LIR || hand.Resident {
		hand = hand.Next()
	}
	c.test = hand
}

func (c *ClockPro) sweepCold() {
	if c.coldCount == 0 {
		return
	}
	hand := c.cold
	for hand.LIR ||
		!hand.Resident ||
		hand.Referenced {
		page := hand
		hand = hand.Next()
		if page.LIR || !page.Referenced {
			continue
		}
		c.handleReferencedCold(page)
	}
	c.cold = hand
}

func (c *ClockPro) handleReferencedCold(page *clockPage) {
	page.Referenced = false
	if page.Demoted {
		c.decreaseColdTarget()
		page.Demoted = false
		c.demotions--
	}
	if page.Stacked {
		c.promoteCold(page)
	} else {
		page.Stacked = true
		c.moveToLRU(page)
	}
}

func (c *ClockPro) promoteCold(coldToHot *clockPage) {
	coldToHot.LIR = true
	c.hotCount++
	c.coldCount--
	c.moveToLRU(coldToHot)
	for c.hotCount > c.hotTarget {
		c.demoteHot()
	}
}

func (c *ClockPro) moveToLRU(page *clockPage) {
	if page == c.lru {
		return
	}
	leaf := page.Prev().Unlink(1)
	c.lru.Link(leaf)
	c.lru = leaf
}

func (c *ClockPro) demoteHot() {
	if debugging {
		assert(!c.hot.Referenced,
			"hot hand stops on a referenced page")
	}
	page := c.hot
	c.hot = page.Next()
	page.LIR = false
	page.Stacked = false
	page.Demoted = true
	c.hotCount--
	c.coldCount++
	c.demotions++
	c.moveToLRU(page)
	c.sweepHot()
}

// evictCold releases the page under the cold hand and
// records its key in the pending eviction batch.
// Stacked pages stay behind as nonresident test pages.
func (c *ClockPro) evictCold() {
	if debugging {
		assert(
			!c.cold.LIR && c.cold.Resident && !c.cold.Referenced,
			"cold hand does not stop at a non-referenced resident cold page")
	}
	page := c.cold
	c.cold = page.Next()
	page.Resident = false
	c.evicted = append(c.evicted, page.Name)
	c.coldCount--
	c.testCount++
	if page.Demoted {
		page.Demoted = false
		c.demotions--
	}
	if c.test == nil {
		c.test = page
	}
	if !page.Stacked {
		if page == c.lru {
			c.lru = page.Prev()
		}
		c.removeTest(page)
	}
}

func (c *ClockPro) addToClock(page *clockPage) {
	if c.lru == nil {
		c.lru = page
		c.hot = page
	} else {
		c.lru.Link(page)
		c.lru = page
	}
	c.index[page.Name] = page
}

// pruneTest bounds metadata to twice the capacity.
func (c *ClockPro) pruneTest() {
	metadataLimit := c.capacity * 2
	for c.coldCount+c.hotCount+c.testCount > metadataLimit {
		if debugging {
			assert(
				c.test.Stacked && !c.test.LIR && !c.test.Resident,
				"test hand does not stop at a test page")
		}
		c.removeTest(c.test)
	}
}

// Capacity returns the (clamped) number of resident pages.
func (c *ClockPro) Capacity() int { return c.capacity }

// Len returns the number of resident pages.
func (c *ClockPro) Len() int {
	return c.hotCount + c.coldCount
}

// Keys returns an iterator over the (unordered) keys of resident pages.
func (c *ClockPro) Keys() iter.Seq[int] {
	return func(yield func(int) bool) {
		residents := c.Len()
		if residents == 0 {
			return
		}
		for key, page := range c.index {
			if !page.Resident {
				continue
			}
			if !yield(key) {
				return
			}
			if residents--; residents == 0 {
				return
			}
		}
	}
}
