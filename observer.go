package pagevirt

import "time"

type (
	// Observer receives page level events from a collection's storage.
	// Implementations must be safe for concurrent use
	// and should return quickly.
	//
	// See package metrics for a Prometheus implementation.
	Observer interface {
		// PageRequested is called for every read;
		// hit reports whether the page was loaded at the time.
		PageRequested(pageKey int, hit bool)
		// PageLoaded is called when a fetch settles.
		// err is nil on success.
		PageLoaded(pageKey int, elapsed time.Duration, err error)
		// PagesEvicted is called with every eviction batch applied.
		PagesEvicted(pageKeys []int)
	}
	// NoopObserver discards all events.
	NoopObserver struct{}
)

func (NoopObserver) PageRequested(int, bool)              {}
func (NoopObserver) PageLoaded(int, time.Duration, error) {}
func (NoopObserver) PagesEvicted([]int)                   {}
