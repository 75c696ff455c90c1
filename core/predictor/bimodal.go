package predictor

// Bimodal is a PC-indexed table of 2-bit saturating counters: 0/1
// predict not-taken, 2/3 predict taken. Grounded directly on
// syifan-m2sim2/timing/pipeline/branch_predictor.go's BHT, resized from
// that file's `pc >> 2` ARM-instruction-aligned index (4-byte
// instructions) to nothing — this repository's traces carry no fixed
// instruction width, so the index simply masks the low bits off the raw
// table size instead of pre-shifting by an architecture-specific amount.
type Bimodal struct {
	size    uint32
	counter []uint8
}

// NewBimodal creates a Bimodal predictor with the given table size, which
// must be a power of two.
func NewBimodal(size uint32) *Bimodal {
	return &Bimodal{size: size}
}

// Initialize (re)allocates the counter table, biased weakly-taken.
func (b *Bimodal) Initialize() {
	b.counter = make([]uint8, b.size)

	for i := range b.counter {
		b.counter[i] = 2
	}
}

func (b *Bimodal) index(ip uint64) uint32 {
	return uint32(ip) & (b.size - 1)
}

// PredictBranch reports taken when the indexed counter is 2 or 3.
func (b *Bimodal) PredictBranch(ip uint64) bool {
	return b.counter[b.index(ip)] >= 2
}

// LastBranchResult saturating-adjusts the indexed counter toward the
// resolved direction.
func (b *Bimodal) LastBranchResult(ip, _ uint64, taken bool, _ BranchType) {
	idx := b.index(ip)

	if taken {
		if b.counter[idx] < 3 {
			b.counter[idx]++
		}
	} else if b.counter[idx] > 0 {
		b.counter[idx]--
	}
}
