package cache

import (
	"math"

	"github.com/sarchlab/ooosim/channel"
)

// neverReturned is the sentinel EventCycle value meaning "the lower
// level has not yet responded" (spec.md §3.3).
const neverReturned = uint64(math.MaxUint64)

// mshrEntry is one outstanding miss (spec.md §3.3): the request fields
// that started it, plus the bookkeeping needed to fill the block once
// the lower level responds. Two entries never share a block-aligned
// address (spec.md §3.3 invariant).
type mshrEntry struct {
	req *channel.Request

	cycleEnqueued uint64
	eventCycle    uint64 // ready time; neverReturned until the lower level responds

	// toReturn is derived from req.ToReturn at fill time; merges update
	// req.ToReturn directly so there is a single source of truth (see
	// handleMiss/handleWrite).
	instrDependOnMe []uint64

	isPrefetch bool
	useful     bool
}

func (e *mshrEntry) blockAddress() uint64 {
	return e.req.BlockAddress()
}

// mshrTable is the fixed-capacity set of outstanding misses a cache
// tracks. Grounded on the teacher's mem/cache/internal/mshr package, but
// exposing the ordering operations (promoteAheadOfUnreturned) spec.md
// §4.3.2 step 2 requires to preserve return order.
type mshrTable struct {
	capacity int
	entries  []*mshrEntry
}

func newMSHRTable(capacity int) *mshrTable {
	return &mshrTable{capacity: capacity}
}

func (t *mshrTable) isFull() bool {
	return len(t.entries) >= t.capacity
}

func (t *mshrTable) len() int {
	return len(t.entries)
}

// lookup returns the MSHR entry for the given block address, if any.
func (t *mshrTable) lookup(blockAddr uint64) (*mshrEntry, bool) {
	for _, e := range t.entries {
		if e.blockAddress() == blockAddr {
			return e, true
		}
	}

	return nil, false
}

// allocate adds a new MSHR entry. Panics if the table is full or an
// entry for the same block already exists: both are caller bugs since
// cache.Comp always checks isFull/lookup first (spec.md §4.3.4).
func (t *mshrTable) allocate(e *mshrEntry) {
	if t.isFull() {
		panic("cache: allocating MSHR entry into a full table")
	}

	if _, exists := t.lookup(e.blockAddress()); exists {
		panic("cache: duplicate MSHR entry for the same block address")
	}

	t.entries = append(t.entries, e)
}

// remove deletes e from the table once its fill has been processed.
func (t *mshrTable) remove(e *mshrEntry) {
	for i, candidate := range t.entries {
		if candidate == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// promoteAheadOfUnreturned moves e to the front of every entry that has
// not yet returned (EventCycle == neverReturned), preserving the order
// in which the lower level's responses actually arrived (spec.md §4.3.2
// step 2, §5 "Ordering guarantees").
func (t *mshrTable) promoteAheadOfUnreturned(e *mshrEntry) {
	idx := -1

	for i, candidate := range t.entries {
		if candidate == e {
			idx = i
			break
		}
	}

	if idx < 0 {
		return
	}

	t.entries = append(t.entries[:idx], t.entries[idx+1:]...)

	insertAt := 0
	for i, candidate := range t.entries {
		if candidate.eventCycle == neverReturned {
			insertAt = i
			break
		}

		insertAt = i + 1
	}

	t.entries = append(t.entries, nil)
	copy(t.entries[insertAt+1:], t.entries[insertAt:])
	t.entries[insertAt] = e
}

// readyEntries returns, in table order, every entry whose EventCycle has
// arrived. Nothing in the package calls it; fills go through
// nextReadyMSHR.
func (t *mshrTable) readyEntries(now uint64) []*mshrEntry {
	var out []*mshrEntry

	for _, e := range t.entries {
		if e.eventCycle <= now {
			out = append(out, e)
		}
	}

	return out
}
