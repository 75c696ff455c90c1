package predictor

// DirectMappedBTB is a direct-mapped, tag-checked branch target buffer.
// Grounded on syifan-m2sim2/timing/pipeline/branch_predictor.go's btb
// table (PC-indexed, one entry per index, tag-validated on lookup).
type DirectMappedBTB struct {
	size   uint32
	valid  []bool
	tag    []uint64
	target []uint64
}

// NewDirectMappedBTB creates a BTB with the given table size, which must
// be a power of two.
func NewDirectMappedBTB(size uint32) *DirectMappedBTB {
	return &DirectMappedBTB{size: size}
}

// InitializeBTB (re)allocates the table, all entries invalid.
func (b *DirectMappedBTB) InitializeBTB() {
	b.valid = make([]bool, b.size)
	b.tag = make([]uint64, b.size)
	b.target = make([]uint64, b.size)
}

func (b *DirectMappedBTB) index(ip uint64) uint32 {
	return uint32(ip) & (b.size - 1)
}

// BTBPrediction returns the cached target for ip, if the tag matches.
func (b *DirectMappedBTB) BTBPrediction(ip uint64) (uint64, bool) {
	idx := b.index(ip)

	if b.valid[idx] && b.tag[idx] == ip {
		return b.target[idx], true
	}

	return 0, false
}

// UpdateBTB records target for ip. Only taken branches are worth
// caching a target for; an untaken branch's "target" is just fall-
// through and carries no information the BTB needs to remember.
func (b *DirectMappedBTB) UpdateBTB(ip, target uint64, taken bool, _ BranchType) {
	if !taken {
		return
	}

	idx := b.index(ip)
	b.valid[idx] = true
	b.tag[idx] = ip
	b.target[idx] = target
}
