package cache

import (
	"github.com/rs/xid"

	"github.com/sarchlab/ooosim/cache/replacement"
	"github.com/sarchlab/ooosim/channel"
)

// step 4: Fills. Up to MaxFill per tick, across the MSHR and
// inflight-writes lists in that order, process entries whose EventCycle
// has arrived. Stops at the first entry that cannot be filled (budget
// decremented by successes only), per spec.md §4.3.2 step 4.
func (c *Comp) processFills() bool {
	budget := c.cfg.MaxFill
	progressed := false

	for budget > 0 {
		e := c.nextReadyMSHR()
		if e == nil {
			break
		}

		if !c.handleFill(e.req, e.req.ToReturn, e.isPrefetch, e.cycleEnqueued) {
			break
		}

		c.mshr.remove(e)
		budget--
		progressed = true
	}

	for budget > 0 {
		e := c.nextReadyWrite()
		if e == nil {
			break
		}

		if !c.handleFill(e.req, e.req.ToReturn, false, e.cycleEnqueued) {
			break
		}

		c.removeInflightWrite(e)
		budget--
		progressed = true
	}

	return progressed
}

func (c *Comp) nextReadyMSHR() *mshrEntry {
	for _, e := range c.mshr.entries {
		if e.eventCycle <= c.now {
			return e
		}
	}

	return nil
}

func (c *Comp) nextReadyWrite() *mshrEntry {
	for _, e := range c.inflightWrites {
		if e.eventCycle <= c.now {
			return e
		}
	}

	return nil
}

func (c *Comp) removeInflightWrite(target *mshrEntry) {
	for i, e := range c.inflightWrites {
		if e == target {
			c.inflightWrites = append(c.inflightWrites[:i], c.inflightWrites[i+1:]...)
			return
		}
	}
}

// handleFill installs a filled block into its set, evicting a victim
// (writing it back if dirty) if necessary, per spec.md §4.3.5. Returns
// false (leaving state untouched beyond a possible writeback attempt) if
// a dirty victim's writeback cannot be enqueued to the lower level.
func (c *Comp) handleFill(
	req *channel.Request,
	toReturn []*channel.Channel,
	isPrefetch bool,
	cycleEnqueued uint64,
) bool {
	blockAddr := req.BlockAddress()
	s, setID := c.setFor(blockAddr)

	wayID, hasFree := c.findInvalidWay(setID)
	if !hasFree {
		validWays := make([]bool, len(s.blocks))
		for i := range s.blocks {
			validWays[i] = s.blocks[i].Valid
		}

		wayID = c.replacementPolicy.FindVictim(
			req.CPU, req.InstrID, setID, validWays, req.IP, blockAddr,
			accessTypeFor(req))
	}

	victim := s.blocks[wayID]

	if victim.Valid && victim.Dirty {
		wb := &channel.Request{
			ID:              xid.New().String(),
			Type:            channel.TypeWrite,
			PhysicalAddress: victim.PhysicalAddress,
			VirtualAddress:  victim.VirtualAddress,
			Data:            victim.Data,
		}

		if c.lowerChannel != nil && !c.lowerChannel.AddWQ(wb) {
			return false // retry this fill next tick
		}
	}

	if victim.Valid && victim.Prefetch {
		c.stats.PfUseless++
	}

	if c.prefetcherPolicy != nil {
		c.prefetcherPolicy.CacheFill(
			blockAddr, setID, wayID, isPrefetch, victim.PhysicalAddress, req.PrefetchMetadata)
	}

	data := req.Data
	if data == nil {
		data = make([]byte, channel.BlockSize)
	}

	newBlock := Block{
		Valid:            true,
		Dirty:            req.Type == channel.TypeWrite || req.Type == channel.TypeRFO,
		Prefetch:         isPrefetch,
		PhysicalAddress:  req.PhysicalAddress,
		VirtualAddress:   req.VirtualAddress,
		Data:             data,
		PrefetchMetadata: req.PrefetchMetadata,
	}

	s.blocks[wayID] = newBlock

	c.replacementPolicy.UpdateReplacementState(
		req.CPU, setID, wayID, blockAddr, req.IP, victim.PhysicalAddress,
		accessTypeFor(req), false)

	rsp := *req
	for _, target := range toReturn {
		target.Return(&rsp)
	}

	if c.now > cycleEnqueued {
		c.stats.TotalMissLatency += c.now - (cycleEnqueued + 1)
	}

	c.stats.FilledBlocks++

	if isPrefetch {
		c.stats.PfFill++
	}

	return true
}

func (c *Comp) setFor(blockAddr uint64) (*set, int) {
	setID := int((blockAddr >> uint(c.cfg.OffsetBits)) % uint64(c.cfg.NumSet))
	return &c.sets[setID], setID
}

func (c *Comp) findInvalidWay(setID int) (int, bool) {
	for i, b := range c.sets[setID].blocks {
		if !b.Valid {
			return i, true
		}
	}

	return 0, false
}

func accessTypeFor(req *channel.Request) replacement.AccessType {
	switch req.Type {
	case channel.TypeWrite:
		return replacement.AccessStore
	case channel.TypeRFO:
		return replacement.AccessRFO
	case channel.TypePrefetch:
		return replacement.AccessPrefetch
	case channel.TypeTranslation:
		return replacement.AccessTranslation
	default:
		return replacement.AccessLoad
	}
}
