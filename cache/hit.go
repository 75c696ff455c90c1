package cache

import (
	"github.com/rs/xid"

	"github.com/sarchlab/ooosim/cache/replacement"
	"github.com/sarchlab/ooosim/channel"
)

// step 8: Tag-check resolution. Every entry whose event_cycle has
// arrived and is not stashed is resolved this tick: a hit completes
// immediately, a miss is handed to handleMiss (reads, RFOs, prefetches)
// or handleWrite (stores, which already carry their final data and so
// need no round trip to the lower level), per spec.md §4.3.2 step 8 and
// §4.3.3/§4.3.4.
func (c *Comp) tagCheckResolution() bool {
	progressed := false

	remaining := c.pending[:0]

	for _, p := range c.pending {
		if p.stashed || p.eventCycle > c.now {
			remaining = append(remaining, p)
			continue
		}

		if c.tryHit(p) {
			progressed = true
			continue
		}

		var ok bool
		if p.req.Type == channel.TypeWrite {
			ok = c.handleWrite(p)
		} else {
			ok = c.handleMiss(p)
		}

		if !ok {
			remaining = append(remaining, p)
			continue
		}

		progressed = true
	}

	c.pending = remaining

	return progressed
}

// tryHit implements spec.md §4.3.3: linear-search the addressed set for
// a valid block whose tag matches, updating replacement state and dirty
// bit on hit, and pushing the response to every interested channel. The
// prefetcher observes both hits and misses of activating access types.
func (c *Comp) tryHit(p *pendingTagCheck) bool {
	req := p.req
	blockAddr := req.BlockAddress()
	s, setID := c.setFor(blockAddr)

	t := c.tagOf(blockAddr)
	accessType := accessTypeFor(req)

	wayID := -1
	for i := range s.blocks {
		b := &s.blocks[i]
		if b.Valid && c.tagOf(b.PhysicalAddress) == t {
			wayID = i
			break
		}
	}

	if wayID < 0 {
		c.stats.Misses[accessType]++

		if c.prefetcherPolicy != nil && c.cfg.activatesPrefetch(accessType) {
			req.PrefetchMetadata = c.prefetcherPolicy.CacheOperate(
				blockAddr, req.IP, false, false, accessType, req.PrefetchMetadata)
		}

		return false
	}

	c.stats.Hits[accessType]++
	block := &s.blocks[wayID]

	wasUsefulPrefetch := block.Prefetch && accessType != replacement.AccessPrefetch
	if wasUsefulPrefetch {
		c.stats.PfUseful++
		block.Prefetch = false
	}

	if req.Type == channel.TypeWrite || req.Type == channel.TypeRFO {
		block.Dirty = true

		if req.Data != nil {
			block.Data = req.Data
		}
	}

	c.replacementPolicy.UpdateReplacementState(
		req.CPU, setID, wayID, blockAddr, req.IP, block.PhysicalAddress, accessType, true)

	if c.prefetcherPolicy != nil && c.cfg.activatesPrefetch(accessType) {
		req.PrefetchMetadata = c.prefetcherPolicy.CacheOperate(
			blockAddr, req.IP, true, wasUsefulPrefetch, accessType, req.PrefetchMetadata)
	}

	rsp := *req
	rsp.Data = block.Data
	c.deliver(p, &rsp)

	return true
}

// deliver pushes a completed response onto every channel awaiting it:
// the upper channel the entry was admitted from (if any) and every
// channel accumulated onto the request via MSHR merging.
func (c *Comp) deliver(p *pendingTagCheck, rsp *channel.Request) {
	if p.fromUpper != nil {
		p.fromUpper.Return(rsp)
	}

	for _, target := range p.req.ToReturn {
		target.Return(rsp)
	}
}

func (c *Comp) tagOf(physAddr uint64) uint64 {
	if c.cfg.MatchOffsetBits {
		return physAddr
	}

	return tag(physAddr, c.cfg.OffsetBits)
}

// handleMiss implements spec.md §4.3.4: merge into an existing MSHR
// entry for the same block if one exists (promoting a prior prefetch to
// demand status when a demand access arrives behind it), else allocate
// a new entry and forward the access to the lower level — a write miss
// is upgraded to an RFO, per the teacher's write-allocate convention.
func (c *Comp) handleMiss(p *pendingTagCheck) bool {
	req := p.req
	blockAddr := req.BlockAddress()
	isPrefetch := req.Type == channel.TypePrefetch

	if p.fromUpper != nil {
		req.AddToReturn(p.fromUpper)
	}

	if existing, ok := c.mshr.lookup(blockAddr); ok {
		existing.req.MergeDependents(req)

		if existing.isPrefetch && !isPrefetch {
			existing.isPrefetch = false
			c.stats.PfUseful++
		}

		return true
	}

	if c.mshr.isFull() {
		return false
	}

	e := &mshrEntry{
		req:             req,
		cycleEnqueued:   c.now,
		eventCycle:      neverReturned,
		instrDependOnMe: req.InstrDependOnMe,
		isPrefetch:      isPrefetch,
	}

	if c.lowerChannel == nil {
		e.eventCycle = c.now + c.cfg.FillLatency
		c.mshr.allocate(e)

		return true
	}

	lowerReq := &channel.Request{
		ID:               xid.New().String(),
		Type:             req.Type,
		PhysicalAddress:  req.PhysicalAddress,
		VirtualAddress:   req.VirtualAddress,
		CPU:              req.CPU,
		ASID:             req.ASID,
		InstrID:          req.InstrID,
		IP:               req.IP,
		PrefetchMetadata: req.PrefetchMetadata,
		SkipFill:         req.SkipFill,
		IsTranslated:     true,
	}

	var added bool
	switch req.Type {
	case channel.TypePrefetch:
		added = c.lowerChannel.AddPQ(lowerReq)
	case channel.TypeWrite:
		lowerReq.Type = channel.TypeRFO
		added = c.lowerChannel.AddRQ(lowerReq)
	default:
		added = c.lowerChannel.AddRQ(lowerReq)
	}

	if !added {
		return false
	}

	c.mshr.allocate(e)

	return true
}

// handleWrite implements spec.md §4.3.2 step 8's write path: a store
// miss already carries the final block data (no byte-merge from a
// lower level is needed), so it is scheduled straight onto the
// inflight-writes list to be installed by processFills after
// FillLatency, without ever touching the lower-level channel.
func (c *Comp) handleWrite(p *pendingTagCheck) bool {
	req := p.req
	blockAddr := req.BlockAddress()

	if p.fromUpper != nil {
		req.AddToReturn(p.fromUpper)
	}

	for _, e := range c.inflightWrites {
		if e.blockAddress() == blockAddr {
			e.req.MergeDependents(req)
			return true
		}
	}

	e := &mshrEntry{
		req:             req,
		cycleEnqueued:   c.now,
		eventCycle:      c.now + c.cfg.FillLatency,
		instrDependOnMe: req.InstrDependOnMe,
	}

	c.inflightWrites = append(c.inflightWrites, e)

	return true
}
