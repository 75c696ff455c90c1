package core

import "github.com/sarchlab/ooosim/cache/replacement"

// dib is the decoded-instruction buffer of spec.md §3.5: a set-
// associative LRU table keyed by ip >> shamt. A hit lets a fetched
// instruction skip decode latency. Grounded on replacement.LRU, the
// same recency algorithm a data cache uses, reused here at micro-op
// cache-line granularity instead of a data block.
type dib struct {
	numSet, numWay int
	shamt          uint

	valid [][]bool
	tag   [][]uint64

	policy replacement.Policy
}

func newDIB(numSet, numWay int, shamt uint) *dib {
	d := &dib{
		numSet: numSet,
		numWay: numWay,
		shamt:  shamt,
		policy: replacement.NewLRU(),
	}

	d.valid = make([][]bool, numSet)
	d.tag = make([][]uint64, numSet)

	for i := 0; i < numSet; i++ {
		d.valid[i] = make([]bool, numWay)
		d.tag[i] = make([]uint64, numWay)
	}

	d.policy.Initialize(numSet, numWay)

	return d
}

func (d *dib) setAndTag(ip uint64) (int, uint64) {
	key := ip >> d.shamt
	return int(key % uint64(d.numSet)), key
}

// lookup reports whether ip is already decoded and cached.
func (d *dib) lookup(ip uint64) bool {
	setID, tag := d.setAndTag(ip)

	for way := 0; way < d.numWay; way++ {
		if d.valid[setID][way] && d.tag[setID][way] == tag {
			d.policy.UpdateReplacementState(0, setID, way, ip, ip, 0, replacement.AccessLoad, true)
			return true
		}
	}

	return false
}

// insert records ip as decoded, evicting the LRU way if the set is full.
func (d *dib) insert(ip uint64) {
	setID, tag := d.setAndTag(ip)

	way := -1
	for w := 0; w < d.numWay; w++ {
		if !d.valid[setID][w] {
			way = w
			break
		}
	}

	if way < 0 {
		validWays := make([]bool, d.numWay)
		for w := range validWays {
			validWays[w] = d.valid[setID][w]
		}

		way = d.policy.FindVictim(0, 0, setID, validWays, ip, ip, replacement.AccessLoad)
	}

	d.valid[setID][way] = true
	d.tag[setID][way] = tag

	d.policy.UpdateReplacementState(0, setID, way, ip, ip, 0, replacement.AccessLoad, false)
}
