// Package ptw implements the page-table walker of spec.md §4.5. See
// pscl.go for the per-level lookaside cache and walk.go for the
// in-flight walk state.
package ptw

import (
	"fmt"
	"io"

	"github.com/rs/xid"

	"github.com/sarchlab/ooosim/addr"
	"github.com/sarchlab/ooosim/channel"
)

const tableAddrBits = 48

// tableAddrOf synthesizes a deterministic physical address for the
// page-table structure holding the entry that maps va at level. The
// walker models a fixed 4-level hierarchy (see config.go) without
// needing a real backing page-table structure to walk: completeLevel
// resolves every walk by identity mapping (the Non-goal of real
// page-fault handling resolved per spec.md's silence on allocation),
// so the only thing that must be consistent across walks is the table
// address used to key each level's PSCL and the lower-level memory
// access issued to "fetch" the PTE.
func tableAddrOf(level int, va uint64) uint64 {
	return addr.Hash(va>>shiftForLevel(level), tableAddrBits)
}

// Comp is the page-table walker: drains TRANSLATION requests off its
// upper channel, walks levels topLevel..0 through pscl lookups and
// (optionally) a lower memory channel, and returns the resolved
// physical address on the same channel. Grounded on the teacher's
// mem/vm/mmu.Comp orchestration and mem/vm/tlb.Comp lookup shape.
type Comp struct {
	name string
	cfg  Config

	upper *channel.Channel
	lower *channel.Channel // nil: self-timed internal latency only

	pscls map[int]*pscl

	active     []*walk
	nextWalkID uint64

	now uint64
}

// New constructs a page-table walker. lower may be nil, in which case
// every level fetch takes cfg.LevelLatency cycles instead of making a
// real memory access.
func New(name string, cfg Config, lower *channel.Channel) *Comp {
	c := &Comp{
		name:  name,
		cfg:   cfg,
		lower: lower,
		pscls: make(map[int]*pscl),
	}

	for level := 1; level <= topLevel-1; level++ {
		c.pscls[level] = newPSCL(level, shiftForLevel(level), cfg.PSCLSets, cfg.PSCLWays)
	}

	return c
}

// SetUpperChannel configures the channel this walker serves TRANSLATION
// requests from.
func (c *Comp) SetUpperChannel(ch *channel.Channel) {
	c.upper = ch
}

// Tick advances every in-flight walk by one cycle, admits newly arrived
// translation requests, and delivers any walk whose final HIT_LATENCY
// has elapsed.
func (c *Comp) Tick(now uint64) bool {
	c.now = now

	progressed := false

	progressed = c.drainLowerReturns() || progressed
	progressed = c.advanceInternal() || progressed
	progressed = c.admit() || progressed
	progressed = c.deliverDone() || progressed

	return progressed
}

// admit pulls newly arrived TRANSLATION requests off the upper channel
// and starts a walk for each, probing PSCLs deepest-to-shallowest.
func (c *Comp) admit() bool {
	if c.upper == nil {
		return false
	}

	progressed := false

	for len(c.upper.RQ()) > 0 {
		req := c.upper.RQ()[0]
		if req.Type != channel.TypeTranslation {
			break
		}

		c.upper.RemoveRQ(0)

		w := &walk{
			id:     c.nextWalkID,
			origin: req,
			va:     req.VirtualAddress,
		}
		c.nextWalkID++

		startLevel, tableAddr := c.probe(w.va)
		w.level = startLevel

		c.active = append(c.active, w)
		c.issueFetch(w, tableAddr)

		progressed = true
	}

	return progressed
}

// probe checks every cacheable PSCL level from deepest (fewest levels
// left to walk) to shallowest, returning the first hit's level and
// cached table address, or topLevel/CR3 if none hit.
func (c *Comp) probe(va uint64) (level int, tableAddr uint64) {
	for l := 1; l <= topLevel-1; l++ {
		if phys, ok := c.pscls[l].lookup(va); ok {
			return l, phys
		}
	}

	return topLevel, c.cfg.CR3
}

// issueFetch starts the memory access for the PTE at w.level, either
// through the lower channel or via the self-timed fallback.
func (c *Comp) issueFetch(w *walk, tableAddr uint64) {
	w.lowerReq = nil

	if c.lower == nil {
		w.readyCycle = c.now + c.cfg.LevelLatency
		return
	}

	req := &channel.Request{
		ID:              xid.New().String(),
		Type:            channel.TypeRead,
		PhysicalAddress: tableAddr,
		InstrID:         w.id,
		IsTranslated:    true,
	}

	if c.lower.AddRQ(req) {
		w.lowerReq = req
	}
	// If the lower channel's RQ is full, lowerReq stays nil and
	// advanceInternal retries the AddRQ next tick.
}

func (c *Comp) drainLowerReturns() bool {
	if c.lower == nil {
		return false
	}

	progressed := false

	for _, rsp := range c.lower.Returned() {
		for _, w := range c.active {
			if w.lowerReq != nil && w.lowerReq.InstrID == rsp.InstrID && !w.done {
				c.completeLevel(w)
				progressed = true

				break
			}
		}
	}

	c.lower.ClearReturned()

	return progressed
}

// advanceInternal retries any not-yet-admitted lower fetch and resolves
// the self-timed fallback path (no lower channel configured).
func (c *Comp) advanceInternal() bool {
	progressed := false

	for _, w := range c.active {
		if w.done {
			continue
		}

		if c.lower != nil {
			if w.lowerReq == nil {
				tableAddr := tableAddrOf(w.level, w.va)
				c.issueFetch(w, tableAddr)

				if w.lowerReq != nil {
					progressed = true
				}
			}

			continue
		}

		if w.readyCycle <= c.now {
			c.completeLevel(w)
			progressed = true
		}
	}

	return progressed
}

// completeLevel handles one level's PTE arriving: cache the next level's
// table address (if cacheable) and descend, or finalize the walk.
func (c *Comp) completeLevel(w *walk) {
	next := w.level - 1

	if next >= 1 && next <= topLevel-1 {
		c.pscls[next].insert(w.va, tableAddrOf(next, w.va))
	}

	if next < 0 {
		w.finalPhys = w.va
		w.deliverAt = c.now + c.cfg.HitLatency
		w.done = true

		return
	}

	w.level = next
	c.issueFetch(w, tableAddrOf(next, w.va))
}

// deliverDone delivers every walk whose final HIT_LATENCY has elapsed
// and removes it from the active set.
func (c *Comp) deliverDone() bool {
	progressed := false
	remaining := c.active[:0]

	for _, w := range c.active {
		if w.done && w.deliverAt <= c.now {
			rsp := *w.origin
			rsp.PhysicalAddress = w.finalPhys
			rsp.IsTranslated = true

			if c.upper != nil {
				c.upper.Return(&rsp)
			}

			for _, target := range rsp.ToReturn {
				target.Return(&rsp)
			}

			progressed = true

			continue
		}

		remaining = append(remaining, w)
	}

	c.active = remaining

	return progressed
}

// PrintDeadlock implements a minimal deadlock report (spec.md §7).
func (c *Comp) PrintDeadlock(w io.Writer) {
	fmt.Fprintf(w, "  %s: activeWalks=%d\n", c.name, len(c.active))
}
