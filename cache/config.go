// Package cache implements the generic set-associative cache module used
// at every level of the hierarchy (L1I, L1D, L2, LLC, STLB, ...), per
// spec.md §4.3. Grounded on the teacher's mem/cache/internal/mshr,
// mem/cache/internal/tagging and mem/cache/writeback packages, collapsed
// from their multi-stage sim.Buffer pipeline into the single ordered
// Tick spec.md §4.3.2 mandates.
package cache

import "github.com/sarchlab/ooosim/cache/replacement"

// Config holds a cache's construction-time parameters (spec.md §4.3.1).
// All fields are fixed once a Comp is built.
type Config struct {
	Name string

	NumSet int
	NumWay int

	MSHRSize int
	PQSize   int

	HitLatency  uint64
	FillLatency uint64

	MaxTag  int // tag checks admitted per tick
	MaxFill int // fills processed per tick

	OffsetBits int // log2(block size)

	PrefetchAsLoad   bool
	VirtualPrefetch  bool
	MatchOffsetBits  bool // true for TLB-like caches: offset is part of the tag
	PrefActivateMask map[replacement.AccessType]bool
}

// activatesPrefetch reports whether an access of the given type should
// invoke the prefetcher's CacheOperate hook.
func (c *Config) activatesPrefetch(t replacement.AccessType) bool {
	return c.PrefActivateMask[t]
}

// DefaultPrefActivateMask activates the prefetcher on demand loads and
// stores only, the common ChampSim default.
func DefaultPrefActivateMask() map[replacement.AccessType]bool {
	return map[replacement.AccessType]bool{
		replacement.AccessLoad:  true,
		replacement.AccessStore: true,
	}
}
