package pagevirt_test

import (
	"fmt"
	"math/bits"
	"math/rand"
	"testing"

	"github.com/djdv/go-pagevirt"
)

type (
	policyCtor        = func(capacity int, b *testing.B) pagevirt.RemovalPolicy
	policyConstructor struct {
		name string
		new  policyCtor
	}
	patternGen    = func(capacity int) []int
	accessPattern struct {
		name string
		gen  patternGen
	}
	// residency replays a policy's batches,
	// tracking which pages a storage would hold.
	residency struct {
		policy   pagevirt.RemovalPolicy
		resident map[int]struct{}
	}
)

// Fixed RNG seed for reproducibility.
// Change to test variance between runs.
const rngSeed = 1

func BenchmarkRemovalPolicy(b *testing.B) {
	var (
		constructors = policyConstructors()
		capacities   = []int{128, 512, 2048}
		patterns     = accessPatterns()
	)
	for _, pattern := range patterns {
		b.Run(pattern.name, newBenchPattern(pattern.gen, capacities, constructors))
	}
}

func BenchmarkCollection(b *testing.B) {
	const (
		pageSize = 64
		count    = 1 << 20
		pages    = 256
	)
	collection, err := pagevirt.NewBuilder[int](pageSize, nil).
		NonPreloading().
		ClockPro(pages).
		BlockingFetchers(
			func(offset, size int) ([]int, error) {
				return sequence(offset, size), nil
			},
			func() (int, error) { return count, nil },
		).
		SyncIndexAccess()
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { collection.Close() })
	var (
		rng     = newReproducibleRNG()
		indices = makeZipf(count, 1<<16, 1.2, 1.0)
		mask    = len(indices) - 1
	)
	rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
	b.ReportAllocs()
	for i := 0; b.Loop(); i++ {
		if _, err := collection.At(indices[i&mask]); err != nil {
			b.Fatal(err)
		}
	}
}

func policyConstructors() []policyConstructor {
	return []policyConstructor{
		{
			"LRU",
			func(capacity int, _ *testing.B) pagevirt.RemovalPolicy {
				return pagevirt.NewLeastRecentlyUsed(capacity, 1, false)
			},
		},
		{
			"ClockProPlus",
			func(capacity int, _ *testing.B) pagevirt.RemovalPolicy {
				return pagevirt.NewClockPro(capacity, false)
			},
		},
		{
			"ARC",
			func(capacity int, b *testing.B) pagevirt.RemovalPolicy {
				policy, err := pagevirt.NewAdaptiveReplacement(capacity, false)
				if err != nil {
					b.Fatal(err)
				}
				return policy
			},
		},
	}
}

func accessPatterns() []accessPattern {
	return []accessPattern{
		{
			"Sequential scan",
			func(int) []int {
				const (
					universe = 1 << 16 // Key space large enough to force misses.
					seqLen   = 1 << 15 // Power of two for cheap masking.
				)
				return makeSequential(universe, seqLen)
			},
		},
		{
			"Loop working set",
			func(capacity int) []int {
				const (
					universe = 8192 // Moderately larger than capacity.
					seqLen   = 1 << 16
					hotRatio = 0.9 // 90% of accesses hit hot set.
				)
				return makeLooping(capacity, universe, seqLen, hotRatio)
			},
		},
		{
			"Zipf",
			func(int) []int {
				const (
					universe = 16384 // Large enough to show skew.
					seqLen   = 1 << 16
					skew     = 1.2
					bias     = 1.0
				)
				return makeZipf(universe, seqLen, skew, bias)
			},
		},
	}
}

func newBenchPattern(
	genPattern patternGen, capacities []int,
	constructors []policyConstructor,
) func(b *testing.B) {
	return func(b *testing.B) {
		for _, capacity := range capacities {
			var (
				name    = fmt.Sprintf("Cap%d", capacity)
				touches = genPattern(capacity)
			)
			b.Run(name, func(b *testing.B) {
				for _, constructor := range constructors {
					b.Run(constructor.name, newBenchPolicy(
						constructor.new, capacity, touches,
					))
				}
			})
		}
	}
}

func newBenchPolicy(ctor policyCtor, capacity int, touches []int) func(b *testing.B) {
	return func(b *testing.B) {
		cache := &residency{
			policy:   ctor(capacity, b),
			resident: make(map[int]struct{}, capacity),
		}
		for _, key := range touches {
			cache.touch(key)
		}
		b.ReportAllocs()
		b.ResetTimer()
		var (
			hits, misses int64
			mask         = len(touches) - 1
		)
		for i := 0; b.Loop(); i++ {
			if cache.touch(touches[i&mask]) {
				hits++
			} else {
				misses++
			}
		}
		b.StopTimer()
		var (
			total    = float64(hits + misses)
			hitRate  = float64(hits) / total * 100.0
			missRate = float64(misses) / total * 100.0
		)
		b.ReportMetric(hitRate, "hit_rate_pct")
		b.ReportMetric(missRate, "miss_rate_pct")
	}
}

// touch reports whether key was resident before the touch.
func (r *residency) touch(key int) bool {
	_, hit := r.resident[key]
	r.resident[key] = struct{}{}
	for _, evicted := range r.policy.Touch(pagevirt.TouchEvent{PageKey: key}) {
		delete(r.resident, evicted)
	}
	return hit
}

func makeSequential(universe, seqLen int) []int {
	seq := make([]int, nextPow2(seqLen))
	for i := range seq {
		seq[i] = i % universe
	}
	return seq
}

func makeLooping(capacity, universe, seqLen int, hotRatio float64) []int {
	var (
		seq      = make([]int, nextPow2(seqLen))
		rng      = newReproducibleRNG()
		hotSize  = max(1, capacity)
		coldSize = max(1, universe-hotSize)
	)
	for i := range seq {
		if rng.Float64() < hotRatio {
			seq[i] = rng.Intn(hotSize)
		} else {
			seq[i] = hotSize + rng.Intn(coldSize)
		}
	}
	return seq
}

func makeZipf(universe, seqLen int, skew, bias float64) []int {
	var (
		seq  = make([]int, nextPow2(seqLen))
		rng  = newReproducibleRNG()
		imax = uint64(max(universe, 2) - 1)
		zipf = rand.NewZipf(rng, skew, bias, imax)
	)
	for i := range seq {
		seq[i] = int(zipf.Uint64())
	}
	return seq
}

func nextPow2(x int) int {
	if x <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(x)-1)
}

func newReproducibleRNG() *rand.Rand {
	return rand.New(rand.NewSource(rngSeed))
}
