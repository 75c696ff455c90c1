// Package replacement defines the pluggable cache replacement policy
// contract (spec.md §6) and ships one default implementation, LRU.
package replacement

// AccessType distinguishes why a block was touched, since some policies
// (and the prefetch-activation mask) care whether an access was a
// demand load, store, RFO, writeback, translation, or prefetch.
type AccessType int

// The access types a replacement policy or prefetcher may observe.
const (
	AccessLoad AccessType = iota
	AccessStore
	AccessRFO
	AccessWriteback
	AccessTranslation
	AccessPrefetch
)

// Policy is the replacement-policy module interface of spec.md §6.
type Policy interface {
	// Initialize prepares the policy for a cache of the given geometry.
	Initialize(numSet, numWay int)

	// FindVictim picks a way to evict from the given set. validWays
	// reports, by way index, which ways hold a valid block; cache.Comp
	// fills a free way itself before asking the policy, so in practice
	// every way is valid when FindVictim is called.
	FindVictim(
		cpu int,
		instrID uint64,
		set int,
		validWays []bool,
		ip uint64,
		addr uint64,
		accessType AccessType,
	) (way int)

	// UpdateReplacementState is invoked on both hits and fills/victim
	// selections to let the policy adjust its bookkeeping (e.g. LRU
	// recency order).
	UpdateReplacementState(
		cpu int,
		set, way int,
		addr uint64,
		ip uint64,
		victimAddr uint64,
		accessType AccessType,
		hit bool,
	)
}
