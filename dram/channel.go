package dram

import (
	"fmt"
	"io"

	"github.com/sarchlab/ooosim/channel"
)

// Stats accumulates one Comp's own counters.
type Stats struct {
	ReadsServiced   uint64
	WritesServiced  uint64
	RowBufferHits   uint64
	RowBufferMisses uint64
	RefreshesDone   uint64
	WriteModeSwaps  uint64
}

// Comp is one DRAM channel: a bank array, a scheduler and a single data
// bus, fed from one upper channel.Channel and never itself a requester
// (spec.md §4.4 — DRAM is the bottom of the hierarchy).
type Comp struct {
	name string

	geom   Geometry
	timing Timing

	banks []bank

	upper *channel.Channel

	packets []*packet // admitted, not yet returned
	onBus   *packet

	dbusCycleAvailable uint64
	writeMode          bool

	refreshCountdown uint64
	refreshRow       uint64

	warmup bool

	now uint64

	stats Stats
}

// New constructs a DRAM channel controller.
func New(name string, geom Geometry, timing Timing) *Comp {
	return &Comp{
		name:             name,
		geom:             geom,
		timing:           timing,
		banks:            make([]bank, geom.NumBanks()),
		refreshCountdown: timing.TREFI,
	}
}

// SetUpperChannel configures the channel this controller serves.
func (c *Comp) SetUpperChannel(ch *channel.Channel) {
	c.upper = ch
}

// Stats returns a snapshot of this channel's counters.
func (c *Comp) Stats() Stats {
	return c.stats
}

// Name returns this channel's registered component name.
func (c *Comp) Name() string {
	return c.name
}

// SetWarmup toggles the warm-up fast path of spec.md §4.4.6.
func (c *Comp) SetWarmup(warmup bool) {
	c.warmup = warmup
}

// Tick runs one cycle of the algorithm of spec.md §4.4.2: write-mode
// swap check, finish the outstanding bus request, handle refresh,
// populate the data bus, schedule one new request, then service it.
func (c *Comp) Tick(now uint64) bool {
	c.now = now

	if c.warmup {
		return c.tickWarmup()
	}

	progressed := false

	progressed = c.checkWriteModeSwap() || progressed
	progressed = c.finishBusRequest() || progressed
	progressed = c.finishRefresh() || progressed
	progressed = c.handleRefreshDue() || progressed
	progressed = c.populateDataBus() || progressed
	progressed = c.scheduleAndService() || progressed

	return progressed
}

// tickWarmup implements spec.md §4.4.6: drain every RQ entry into an
// immediate response, silently drop every WQ entry.
func (c *Comp) tickWarmup() bool {
	if c.upper == nil {
		return false
	}

	progressed := false

	for _, req := range c.upper.RQ() {
		rsp := *req
		c.deliver(&rsp)
		progressed = true
	}

	for len(c.upper.RQ()) > 0 {
		c.upper.RemoveRQ(0)
	}

	for len(c.upper.WQ()) > 0 {
		c.upper.RemoveWQ(0)
	}

	return progressed
}

func (c *Comp) deliver(rsp *channel.Request) {
	if c.upper != nil {
		c.upper.Return(rsp)
	}

	for _, target := range rsp.ToReturn {
		target.Return(rsp)
	}
}

func (c *Comp) wqOccupancy() int {
	n := len(c.upper.WQ())

	for _, p := range c.packets {
		if p.isWrite {
			n++
		}
	}

	return n
}

func (c *Comp) rqOccupancy() int {
	n := len(c.upper.RQ())

	for _, p := range c.packets {
		if !p.isWrite {
			n++
		}
	}

	return n
}

// checkWriteModeSwap implements spec.md §4.4.2's write-mode watermarks.
func (c *Comp) checkWriteModeSwap() bool {
	if c.upper == nil {
		return false
	}

	wq := c.wqOccupancy()
	rq := c.rqOccupancy()

	swap := false

	if !c.writeMode && (wq >= c.timing.WriteHighWatermark || (rq == 0 && wq > 0)) {
		c.writeMode = true
		swap = true
	} else if c.writeMode && (wq == 0 || (rq > 0 && wq < c.timing.WriteLowWatermark)) {
		c.writeMode = false
		swap = true
	}

	if !swap {
		return false
	}

	c.unscheduleNonActive()
	c.dbusCycleAvailable = c.now + c.timing.DBusTurnAround
	c.stats.WriteModeSwaps++

	return true
}

// unscheduleNonActive releases every bank request that is not currently
// on the data bus back to idle, per spec.md §4.4.2.
func (c *Comp) unscheduleNonActive() {
	remaining := c.packets[:0]

	for _, p := range c.packets {
		if p == c.onBus {
			remaining = append(remaining, p)
			continue
		}

		b := &c.banks[p.bankIdx]
		if c.now < p.eventCycle-minUint64(p.eventCycle, c.timing.TCAS) {
			b.hasOpenRow = false
		}

		b.state = BankIdle
	}

	c.packets = remaining
}

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}

	return b
}

// finishBusRequest implements finish_dbus_request: once the packet
// currently on the bus has fully returned, push its response and free
// the bank.
func (c *Comp) finishBusRequest() bool {
	if c.onBus == nil || c.onBus.busFinishCycle > c.now {
		return false
	}

	p := c.onBus
	b := &c.banks[p.bankIdx]

	rsp := *p.req
	c.deliver(&rsp)

	if p.isWrite {
		c.stats.WritesServiced++
	} else {
		c.stats.ReadsServiced++
	}

	if b.pendingRefresh {
		b.state = BankRefreshing
		b.eventCycle = c.now + c.timing.TRFC
		b.hasOpenRow = false
		b.pendingRefresh = false
	} else {
		b.state = BankIdle
	}

	c.removePacket(p)
	c.onBus = nil

	return true
}

func (c *Comp) removePacket(target *packet) {
	for i, p := range c.packets {
		if p == target {
			c.packets = append(c.packets[:i], c.packets[i+1:]...)
			return
		}
	}
}

// finishRefresh completes any bank whose refresh interval has elapsed.
func (c *Comp) finishRefresh() bool {
	progressed := false

	for i := range c.banks {
		b := &c.banks[i]
		if b.state == BankRefreshing && b.eventCycle <= c.now {
			b.state = BankIdle
			b.hasOpenRow = false
			progressed = true
		}
	}

	return progressed
}

// handleRefreshDue implements spec.md §4.4.3: every refresh interval,
// mark a batch of rows needing refresh across all banks. An idle bank
// refreshes immediately; a busy bank defers until it next idles.
func (c *Comp) handleRefreshDue() bool {
	if c.now < c.refreshCountdown {
		return false
	}

	c.refreshCountdown = c.now + c.timing.TREFI
	c.refreshRow = (c.refreshRow + 8) % c.geom.NumRows()

	for i := range c.banks {
		b := &c.banks[i]

		switch b.state {
		case BankIdle:
			b.state = BankRefreshing
			b.eventCycle = c.now + c.timing.TRFC
			b.hasOpenRow = false
		case BankRefreshing:
			// already refreshing, nothing to do
		default:
			b.pendingRefresh = true
		}
	}

	c.stats.RefreshesDone++

	return true
}

// populateDataBus picks the ready active-bank packet with the smallest
// event_cycle and, if the bus is free, puts it on the bus.
func (c *Comp) populateDataBus() bool {
	if c.onBus != nil || c.dbusCycleAvailable > c.now {
		return false
	}

	var best *packet

	for _, p := range c.packets {
		b := &c.banks[p.bankIdx]
		if b.state != BankActive || p.eventCycle > c.now {
			continue
		}

		if best == nil || p.eventCycle < best.eventCycle {
			best = p
		}
	}

	if best == nil {
		return false
	}

	best.onBus = true
	best.busFinishCycle = c.now + c.timing.DBusReturn
	c.onBus = best

	return true
}

// scheduleAndService admits one new request from the upper channel's
// RQ (or WQ, in write mode) into a free, non-refreshing bank, and
// immediately services it: computing the row-buffer hit and driving the
// bank straight to active with its data-ready event_cycle, per spec.md
// §4.4.1/§4.4.2.
func (c *Comp) scheduleAndService() bool {
	if c.upper == nil {
		return false
	}

	c.checkWriteCollisions()
	c.checkReadCollisions()

	queue, remove, isWrite := c.sourceQueue()

	for i, req := range queue {
		bankIdx, row, _ := c.geom.decompose(req.BlockAddress())
		b := &c.banks[bankIdx]

		if b.state == BankRefreshing || b.state == BankScheduling || b.state == BankActive {
			continue
		}

		rowBufferHit := b.hasOpenRow && b.openRow == row

		latency := c.timing.TCAS
		if !rowBufferHit {
			if b.hasOpenRow {
				latency += c.timing.TRP + c.timing.TRCD
			} else {
				latency += c.timing.TRCD
			}
		}

		b.state = BankActive
		b.openRow = row
		b.hasOpenRow = true

		if rowBufferHit {
			c.stats.RowBufferHits++
		} else {
			c.stats.RowBufferMisses++
		}

		p := &packet{
			req:          req,
			bankIdx:      bankIdx,
			row:          row,
			isWrite:      isWrite,
			rowBufferHit: rowBufferHit,
			eventCycle:   c.now + latency,
		}

		c.packets = append(c.packets, p)
		remove(i)

		return true
	}

	return false
}

func (c *Comp) sourceQueue() ([]*channel.Request, func(int), bool) {
	if c.writeMode {
		return c.upper.WQ(), c.upper.RemoveWQ, true
	}

	return c.upper.RQ(), c.upper.RemoveRQ, false
}

// checkWriteCollisions implements spec.md §4.4.5: a newer WQ entry
// whose block-aligned address matches an existing WQ entry is dropped
// (write-coalescing).
func (c *Comp) checkWriteCollisions() {
	wq := c.upper.WQ()
	seen := make(map[uint64]bool, len(wq))

	for i := 0; i < len(wq); {
		addr := wq[i].BlockAddress()
		if seen[addr] {
			c.upper.RemoveWQ(i)
			wq = c.upper.WQ()
			continue
		}

		seen[addr] = true
		i++
	}
}

// checkReadCollisions implements spec.md §4.4.5: an RQ entry matching a
// WQ entry is satisfied immediately from that entry's data; an RQ entry
// matching an older RQ entry merges dependents into it and is dropped.
func (c *Comp) checkReadCollisions() {
	wq := c.upper.WQ()
	rq := c.upper.RQ()

	kept := make([]*channel.Request, 0, len(rq))

	for _, req := range rq {
		forwarded := false

		for _, w := range wq {
			if w.BlockAddress() == req.BlockAddress() {
				rsp := *req
				rsp.Data = w.Data
				c.deliver(&rsp)
				forwarded = true

				break
			}
		}

		if forwarded {
			continue
		}

		merged := false

		for _, k := range kept {
			if k.BlockAddress() == req.BlockAddress() {
				k.MergeDependents(req)
				merged = true

				break
			}
		}

		if !merged {
			kept = append(kept, req)
		}
	}

	for len(c.upper.RQ()) > 0 {
		c.upper.RemoveRQ(0)
	}

	for _, req := range kept {
		c.upper.AddRQ(req)
	}
}

// PrintDeadlock implements a minimal deadlock report (spec.md §7).
func (c *Comp) PrintDeadlock(w io.Writer) {
	fmt.Fprintf(w, "  %s: packets=%d writeMode=%v dbusAvailable=%d\n",
		c.name, len(c.packets), c.writeMode, c.dbusCycleAvailable)
}
