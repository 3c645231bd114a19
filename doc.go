// Package pagevirt presents a large, remotely stored sequence as an
// indexable [Collection] that only holds a bounded set of pages in memory.
//
// Items are read through user supplied fetchers one page at a time,
// cached, and released again by a [RemovalPolicy]. A [Builder] assembles
// a collection from a valid combination of behaviors; the combinations
// that cannot work (such as blocking reads over cancellable fetchers)
// have no method to express them.
//
// The following is a summary (intended for maintainers)
// of how the parts interact.
//
// Glossary and invariants:
//
//   - Page
//
//     A run of pageSize items starting at pageKey*pageSize.
//     Only the final page of a sequence may be shorter.
//
//   - Page key
//
//     The index of a page within the sequence of pages.
//
//   - Placeholder
//
//     A stand-in value returned by asynchronous collections
//     for items that have not arrived yet.
//     A [ChangeReplace] follows once the real item is stored.
//
//   - Touch
//
//     Every read emits a [TouchEvent] for its page.
//     Touches feed the removal policy, which may answer with
//     a batch of page keys to evict.
//
//   - Preloading
//
//     Once a page is loaded its neighbors are requested as well.
//     Preloaded pages do not preload their own neighbors
//     until they are read directly.
//
//   - Hoarding
//
//     A policy that never evicts.
//
// Ownership:
//
//   - A page map entry exists from the moment a fetch is requested
//     until the page is evicted. Readers of a loading page wait on
//     that entry, so a page has at most one fetch in flight.
//
//   - Eviction moves a page's items out of the map under the lock
//     and closes them (if they implement [io.Closer]) after releasing it.
//     A fetch that settles for a page that is no longer mapped closes
//     its own result. Every fetched item is closed exactly once,
//     at eviction, reset, or [Collection.Close].
//
//   - The removal policy is owned by a single goroutine per storage;
//     touch events reach it over a channel, in the order they were emitted.
//
// Notifications:
//
//   - Changes are queued in the order they occur and handed to the
//     notification [Scheduler] one at a time. A [ResettableCollection]
//     announces [ChangeReset] before any change of its new generation.
//
// Policies:
//
//   - [LeastRecentlyUsed] evicts the pages touched longest ago,
//     a batch at a time.
//
//   - [ClockPro] implements CLOCK-Pro+, an adaptive and scan resistant
//     approximation of LIRS, derived from the [2005 USENIX CLOCK-Pro paper]
//     and adapted via the [CLOCK-PRO+ paper].
//
//   - [AdaptiveReplacement] wraps an Adaptive Replacement Cache.
//
// [2005 USENIX CLOCK-Pro paper]: https://www.usenix.org/conference/2005-usenix-annual-technical-conference/clock-pro-effective-improvement-clock-replacement
// [CLOCK-PRO+ paper]: https://dl.acm.org/doi/10.1145/3319647.3325838
package pagevirt
