package cache

import (
	"github.com/sarchlab/ooosim/cache/prefetcher"
	"github.com/sarchlab/ooosim/cache/replacement"
)

// Builder assembles a Comp from a chain of With* calls, grounded on the
// teacher's mem/cache.Builder value-receiver chaining convention.
type Builder struct {
	name string

	numSet, numWay     int
	mshrSize, pqSize   int
	hitLatency         uint64
	fillLatency        uint64
	maxTag, maxFill    int
	offsetBits         int
	prefetchAsLoad     bool
	virtualPrefetch    bool
	matchOffsetBits    bool
	prefActivateMask   map[replacement.AccessType]bool
	replacementPolicy  replacement.Policy
	prefetcherPolicy   prefetcher.Prefetcher
}

// MakeBuilder creates a builder seeded with a 32 KiB 8-way cache at a
// 4-cycle hit latency, the common L1-ish default.
func MakeBuilder() Builder {
	return Builder{
		numSet:           64,
		numWay:           8,
		mshrSize:         16,
		pqSize:           8,
		hitLatency:       4,
		fillLatency:      1,
		maxTag:           2,
		maxFill:          1,
		offsetBits:       6,
		prefActivateMask: DefaultPrefActivateMask(),
		replacementPolicy: replacement.NewLRU(),
	}
}

// WithName sets the cache's name, used in stats and deadlock reports.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithGeometry sets the number of sets and ways.
func (b Builder) WithGeometry(numSet, numWay int) Builder {
	b.numSet = numSet
	b.numWay = numWay

	return b
}

// WithMSHRSize sets the MSHR capacity.
func (b Builder) WithMSHRSize(size int) Builder {
	b.mshrSize = size
	return b
}

// WithPQSize sets the internal prefetch-queue capacity.
func (b Builder) WithPQSize(size int) Builder {
	b.pqSize = size
	return b
}

// WithLatency sets the hit and fill latencies, in cycles.
func (b Builder) WithLatency(hit, fill uint64) Builder {
	b.hitLatency = hit
	b.fillLatency = fill

	return b
}

// WithBandwidth sets the per-tick tag-check and fill budgets.
func (b Builder) WithBandwidth(maxTag, maxFill int) Builder {
	b.maxTag = maxTag
	b.maxFill = maxFill

	return b
}

// WithOffsetBits sets log2(block size).
func (b Builder) WithOffsetBits(bits int) Builder {
	b.offsetBits = bits
	return b
}

// WithMatchOffsetBits configures a TLB-like cache whose tag includes the
// offset bits (spec.md §4.3.1).
func (b Builder) WithMatchOffsetBits(match bool) Builder {
	b.matchOffsetBits = match
	return b
}

// WithPrefActivateMask overrides which access types activate the
// prefetcher.
func (b Builder) WithPrefActivateMask(mask map[replacement.AccessType]bool) Builder {
	b.prefActivateMask = mask
	return b
}

// WithReplacementPolicy overrides the default LRU policy.
func (b Builder) WithReplacementPolicy(p replacement.Policy) Builder {
	b.replacementPolicy = p
	return b
}

// WithPrefetcher attaches a prefetcher. Omitting this call leaves the
// cache with no prefetcher, a valid configuration per spec.md §6.
func (b Builder) WithPrefetcher(p prefetcher.Prefetcher) Builder {
	b.prefetcherPolicy = p
	return b
}

// Build constructs the Comp.
func (b Builder) Build() *Comp {
	cfg := Config{
		Name:             b.name,
		NumSet:           b.numSet,
		NumWay:           b.numWay,
		MSHRSize:         b.mshrSize,
		PQSize:           b.pqSize,
		HitLatency:       b.hitLatency,
		FillLatency:      b.fillLatency,
		MaxTag:           b.maxTag,
		MaxFill:          b.maxFill,
		OffsetBits:       b.offsetBits,
		PrefetchAsLoad:   b.prefetchAsLoad,
		VirtualPrefetch:  b.virtualPrefetch,
		MatchOffsetBits:  b.matchOffsetBits,
		PrefActivateMask: b.prefActivateMask,
	}

	return New(cfg, b.replacementPolicy, b.prefetcherPolicy)
}
