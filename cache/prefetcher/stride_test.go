package prefetcher

import (
	"testing"

	"github.com/sarchlab/ooosim/cache/replacement"
)

type fakeIssuer struct {
	addrs []uint64
}

func (f *fakeIssuer) PrefetchLine(addr uint64, _ bool, _ uint32) bool {
	f.addrs = append(f.addrs, addr)
	return true
}

func strideScenarioAddrs(k int64) []uint64 {
	base := uint64(0xffff003f) &^ (blockSize - 1)
	out := make([]uint64, 3)

	for i := range out {
		out[i] = uint64(int64(base) + k*int64(i)*blockSize)
	}

	return out
}

// See spec.md §8 scenario 3: three loads at a fixed IP with a consistent
// block-index stride k must, within the same run, cause the lower level to
// see a constant-stride sequence of at least 6 addresses total (the 3
// demand accesses plus the prefetches the third one's confirmation issues).
func TestStrideScenarioAllDirections(t *testing.T) {
	const demandAccesses = 3
	const minLowerLevelAddrs = 6

	for _, k := range []int64{1, -1, 2, -2, 3, -3, 4, -4} {
		issuer := &fakeIssuer{}
		s := NewStride()
		s.Initialize(issuer)

		for _, addr := range strideScenarioAddrs(k) {
			s.CacheOperate(addr, 0xcafecafe, false, false, replacement.AccessLoad, 0)
		}

		total := demandAccesses + len(issuer.addrs)
		if total < minLowerLevelAddrs {
			t.Fatalf("k=%d: expected at least %d addresses at the lower level (%d demand + prefetches), got %d",
				k, minLowerLevelAddrs, demandAccesses, total)
		}

		for i := 1; i < len(issuer.addrs); i++ {
			delta := (int64(issuer.addrs[i]) - int64(issuer.addrs[i-1])) / blockSize
			if delta != k {
				t.Fatalf("k=%d: delta between prefetch %d and %d was %d, want %d",
					k, i-1, i, delta, k)
			}
		}
	}
}

func TestStrideRequiresConfirmationBeforeIssuing(t *testing.T) {
	issuer := &fakeIssuer{}
	s := NewStride()
	s.Initialize(issuer)

	// A single access establishes the baseline; a second sets stride but
	// confidence is still below strideConfidence, so nothing issues yet.
	s.CacheOperate(0x1000, 0x42, false, false, replacement.AccessLoad, 0)
	s.CacheOperate(0x1040, 0x42, false, false, replacement.AccessLoad, 0)

	if len(issuer.addrs) != 0 {
		t.Fatalf("expected no prefetch before confidence threshold, got %v", issuer.addrs)
	}
}
