// Package prefetcher defines the pluggable prefetcher module contract
// (spec.md §6) and ships one concrete policy, Stride.
package prefetcher

import "github.com/sarchlab/ooosim/cache/replacement"

// CacheIssuer is the narrow slice of cache.Comp a prefetcher needs to
// issue its own prefetches, letting a prefetcher stay decoupled from the
// concrete cache implementation.
type CacheIssuer interface {
	PrefetchLine(addr uint64, fillThisLevel bool, metadata uint32) bool
}

// Prefetcher is the prefetcher module interface of spec.md §6.
type Prefetcher interface {
	Initialize(issuer CacheIssuer)

	// CacheOperate is invoked on every access whose type is in the
	// cache's pref_activate_mask (spec.md §4.3.3). It returns an
	// updated prefetch-metadata word to stash alongside the access.
	CacheOperate(
		addr uint64,
		ip uint64,
		hit bool,
		useful bool,
		accessType replacement.AccessType,
		metadata uint32,
	) (newMetadata uint32)

	// CacheFill is invoked from handle_fill (spec.md §4.3.5) so the
	// prefetcher can observe what it evicted.
	CacheFill(
		addr uint64,
		set, way int,
		isPrefetch bool,
		evictedAddr uint64,
		metadata uint32,
	) (newMetadata uint32)

	// CycleOperate is the per-tick hook (spec.md §4.3.2 step 9) that lets
	// a prefetcher issue speculative accesses independent of demand
	// traffic.
	CycleOperate()

	// BranchOperate lets a prefetcher observe retired branches, mirroring
	// the teacher's branch-aware prefetch hooks.
	BranchOperate(ip uint64, branchType int, target uint64)

	// FinalStats is called once at the end of a run so a prefetcher can
	// report policy-specific counters alongside the cache's own stats.
	FinalStats() map[string]uint64
}
