package prefetcher

import "github.com/sarchlab/ooosim/cache/replacement"

const (
	strideTableSize  = 64
	strideConfidence = 1 // consecutive matching strides required to trust it
	strideDegree     = 3 // blocks issued ahead once confident
	blockSize        = 64
)

type strideEntry struct {
	valid      bool
	ip         uint64
	lastBlock  int64
	stride     int64
	confidence int
}

// Stride is an instruction-pointer-indexed stride prefetcher: each IP
// gets one table entry tracking its last accessed block and stride;
// once the same stride repeats strideConfidence times in a row, the
// prefetcher issues strideDegree blocks ahead. Grounded on
// original_source/prefetcher/next_line's module shape, generalized from
// "always prefetch the next line" to an IP-keyed stride predictor per
// spec.md §8 scenario 3.
type Stride struct {
	issuer  CacheIssuer
	table   []strideEntry
	issued  uint64
	useful  uint64
}

// NewStride creates a Stride prefetcher.
func NewStride() *Stride {
	return &Stride{table: make([]strideEntry, strideTableSize)}
}

// Initialize records the cache this prefetcher will issue lines through.
func (s *Stride) Initialize(issuer CacheIssuer) {
	s.issuer = issuer
}

func (s *Stride) slot(ip uint64) int {
	return int(ip % strideTableSize)
}

// CacheOperate tracks the access's block and, once a stride has been
// confirmed, issues prefetches strideDegree blocks ahead.
func (s *Stride) CacheOperate(
	addr uint64,
	ip uint64,
	_ bool,
	useful bool,
	_ replacement.AccessType,
	metadata uint32,
) uint32 {
	if useful {
		s.useful++
	}

	block := int64(addr / blockSize)
	e := &s.table[s.slot(ip)]

	if !e.valid || e.ip != ip {
		*e = strideEntry{valid: true, ip: ip, lastBlock: block}
		return metadata
	}

	delta := block - e.lastBlock
	e.lastBlock = block

	if delta == 0 {
		return metadata
	}

	if delta == e.stride {
		if e.confidence < strideConfidence {
			e.confidence++
		}
	} else {
		e.stride = delta
		e.confidence = 0
	}

	if e.confidence >= strideConfidence {
		for i := 1; i <= strideDegree; i++ {
			target := uint64(block+delta*int64(i)) * blockSize
			if s.issuer.PrefetchLine(target, true, metadata) {
				s.issued++
			}
		}
	}

	return metadata
}

// CacheFill does not adjust Stride's own state; fill-time bookkeeping
// (useful-prefetch accounting) lives in cache.Comp.
func (s *Stride) CacheFill(
	_ uint64, _, _ int, _ bool, _ uint64, metadata uint32,
) uint32 {
	return metadata
}

// CycleOperate is a no-op: Stride only reacts to demand accesses.
func (s *Stride) CycleOperate() {}

// BranchOperate is a no-op: Stride does not correlate with control flow.
func (s *Stride) BranchOperate(uint64, int, uint64) {}

// FinalStats reports the number of prefetches issued and found useful.
func (s *Stride) FinalStats() map[string]uint64 {
	return map[string]uint64{
		"stride_issued": s.issued,
		"stride_useful": s.useful,
	}
}
