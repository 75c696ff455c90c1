// Package ptw implements the page-table walker module of spec.md §4.5:
// one Page-Size Cache Lookaside (PSCL) per intermediate translation
// level, deepest-to-shallowest probing, and a recursive level-by-level
// walk issued over the same channel.Channel abstraction every other
// component uses. Grounded on the teacher's mem/vm/tlb (set-associative
// lookup table shape) and mem/vm/mmu (multi-level walk orchestration,
// CR3 bookkeeping).
package ptw

import "github.com/sarchlab/ooosim/cache/replacement"

// pscl is a small set-associative table caching the physical address of
// one intermediate page-table level, keyed by the virtual-address bits
// above that level's shift amount. Reuses replacement.LRU — the same
// recency algorithm a data cache uses, at a different granularity.
type pscl struct {
	level     int
	shiftBits uint

	numSet, numWay int
	valid          [][]bool
	tag            [][]uint64
	phys           [][]uint64

	policy replacement.Policy
}

func newPSCL(level int, shiftBits uint, numSet, numWay int) *pscl {
	p := &pscl{
		level:     level,
		shiftBits: shiftBits,
		numSet:    numSet,
		numWay:    numWay,
		policy:    replacement.NewLRU(),
	}

	p.valid = make([][]bool, numSet)
	p.tag = make([][]uint64, numSet)
	p.phys = make([][]uint64, numSet)

	for i := 0; i < numSet; i++ {
		p.valid[i] = make([]bool, numWay)
		p.tag[i] = make([]uint64, numWay)
		p.phys[i] = make([]uint64, numWay)
	}

	p.policy.Initialize(numSet, numWay)

	return p
}

func (p *pscl) setAndTag(va uint64) (int, uint64) {
	key := va >> p.shiftBits
	return int(key % uint64(p.numSet)), key
}

// lookup returns the cached physical address of this level's table, if
// any entry covers va.
func (p *pscl) lookup(va uint64) (uint64, bool) {
	setID, tag := p.setAndTag(va)

	for way := 0; way < p.numWay; way++ {
		if p.valid[setID][way] && p.tag[setID][way] == tag {
			p.policy.UpdateReplacementState(0, setID, way, tag, 0, 0, replacement.AccessTranslation, true)
			return p.phys[setID][way], true
		}
	}

	return 0, false
}

// insert records phys as the address of this level's table for va's
// upper bits, evicting a victim if the set is full.
func (p *pscl) insert(va, phys uint64) {
	setID, tag := p.setAndTag(va)

	way := -1
	for w := 0; w < p.numWay; w++ {
		if !p.valid[setID][w] {
			way = w
			break
		}
	}

	validWays := make([]bool, p.numWay)
	for w := 0; w < p.numWay; w++ {
		validWays[w] = p.valid[setID][w]
	}

	if way < 0 {
		way = p.policy.FindVictim(0, 0, setID, validWays, 0, tag, replacement.AccessTranslation)
	}

	p.valid[setID][way] = true
	p.tag[setID][way] = tag
	p.phys[setID][way] = phys

	p.policy.UpdateReplacementState(0, setID, way, tag, 0, 0, replacement.AccessTranslation, false)
}
