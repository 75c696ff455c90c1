package cache

// Block is one cache line's metadata and data (spec.md §3.3).
type Block struct {
	Valid    bool
	Dirty    bool
	Prefetch bool

	PhysicalAddress uint64
	VirtualAddress  uint64
	Data            []byte

	PrefetchMetadata uint32
}

// tag returns the block's tag: the address bits above OFFSET_BITS, the
// value TryHit compares against (spec.md §4.3.3). Two addresses that
// collide on this value necessarily also collide on set index, since set
// index is itself derived from the same bits, so a direct comparison is
// sufficient without separately masking out the set-index bits.
func tag(address uint64, offsetBits int) uint64 {
	return address >> uint(offsetBits)
}
