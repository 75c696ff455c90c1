package cache

import (
	"github.com/rs/xid"

	"github.com/sarchlab/ooosim/channel"
)

const stashCapacity = 32 // bound on untranslated entries awaiting a PTW response

// step 5: Tag-check intake. Admits entries from the translation stash
// (only already-translated members), then from each upper level's WQ,
// RQ, PQ in turn, then the internal prefetch queue, bounded by a
// bandwidth budget derived from current pipeline occupancy, per
// spec.md §4.3.2 step 5.
func (c *Comp) tagCheckIntake() bool {
	inflight := c.inflightCount()
	tagBW := clampInt(c.cfg.MaxTag*int(c.cfg.HitLatency)-inflight, 0, c.cfg.MaxTag)

	progressed := false
	admitted := 0

	admitted += c.admitFromStash(tagBW - admitted)
	if admitted > 0 {
		progressed = true
	}

	for _, up := range c.upperChannels {
		n := c.admitFromUpperQueue(up, up.WQ(), up.RemoveWQ, tagBW-admitted)
		admitted += n
		n = c.admitFromUpperQueue(up, up.RQ(), up.RemoveRQ, tagBW-admitted)
		admitted += n
		n = c.admitFromUpperQueue(up, up.PQ(), up.RemovePQ, tagBW-admitted)
		admitted += n
	}

	admitted += c.admitFromInternalPQ(tagBW - admitted)

	return progressed || admitted > 0
}

func (c *Comp) inflightCount() int {
	n := 0

	for _, p := range c.pending {
		if !p.stashed {
			n++
		}
	}

	return n
}

func (c *Comp) admitFromStash(budget int) int {
	admitted := 0

	for _, p := range c.pending {
		if admitted >= budget {
			break
		}

		if p.stashed && p.translated {
			p.stashed = false
			p.eventCycle = c.now + c.cfg.HitLatency
			admitted++
		}
	}

	return admitted
}

// admitFromUpperQueue admits requests from one of an upper channel's
// outgoing queues, in FIFO order, removing each from the source queue as
// it is admitted.
func (c *Comp) admitFromUpperQueue(
	up *channel.Channel,
	queue []*channel.Request,
	remove func(int),
	budget int,
) int {
	admitted := 0

	for admitted < budget && len(queue) > 0 {
		req := queue[0]

		if !c.canAdmitTranslation(req) {
			break
		}

		c.pending = append(c.pending, &pendingTagCheck{
			req:        req,
			fromUpper:  up,
			eventCycle: c.now + c.cfg.HitLatency,
			translated: c.isTranslated(req),
		})

		remove(0)
		queue = queue[1:]
		admitted++
	}

	return admitted
}

func (c *Comp) admitFromInternalPQ(budget int) int {
	admitted := 0

	for admitted < budget && len(c.internalPQ) > 0 {
		req := c.internalPQ[0]

		if !c.canAdmitTranslation(req) {
			break
		}

		c.pending = append(c.pending, &pendingTagCheck{
			req:        req,
			fromUpper:  nil,
			eventCycle: c.now + c.cfg.HitLatency,
			translated: c.isTranslated(req),
		})

		c.internalPQ = c.internalPQ[1:]
		admitted++
	}

	return admitted
}

func (c *Comp) isTranslated(req *channel.Request) bool {
	return c.translationChannel == nil || req.IsTranslated
}

// canAdmitTranslation enforces "an entry may only be admitted from the
// upper if is_translated or the translation stash has room" (spec.md
// §4.3.2 step 5).
func (c *Comp) canAdmitTranslation(req *channel.Request) bool {
	if c.isTranslated(req) {
		return true
	}

	return c.stashedCount() < stashCapacity
}

func (c *Comp) stashedCount() int {
	n := 0

	for _, p := range c.pending {
		if p.stashed {
			n++
		}
	}

	return n
}

// step 6: Issue translations for every inflight tag-check that is not
// translated and has not yet had translation issued.
func (c *Comp) issueTranslations() bool {
	if c.translationChannel == nil {
		return false
	}

	progressed := false

	for _, p := range c.pending {
		if p.translated || p.translateIssued || p.stashed {
			continue
		}

		req := &channel.Request{
			ID:              xid.New().String(),
			Type:            channel.TypeTranslation,
			VirtualAddress:  p.req.VirtualAddress,
			PhysicalAddress: p.req.PhysicalAddress,
			CPU:             p.req.CPU,
			ASID:            p.req.ASID,
		}

		if c.translationChannel.AddRQ(req) {
			p.translateIssued = true
			progressed = true
		}
	}

	return progressed
}

// step 7: Stash stragglers — any inflight tag-check whose event_cycle
// has arrived but that is still not translated moves to the stash.
func (c *Comp) stashStragglers() {
	for _, p := range c.pending {
		if !p.stashed && !p.translated && p.eventCycle < c.now {
			p.stashed = true
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
