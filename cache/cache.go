package cache

import (
	"fmt"
	"io"

	"github.com/rs/xid"

	"github.com/sarchlab/ooosim/cache/prefetcher"
	"github.com/sarchlab/ooosim/cache/replacement"
	"github.com/sarchlab/ooosim/channel"
)

type set struct {
	blocks []Block
}

// pendingTagCheck is an entry admitted onto the tag-check pipeline
// (spec.md §4.3.2 step 5) or parked in the translation stash (step 7).
type pendingTagCheck struct {
	req *channel.Request

	fromUpper *channel.Channel // nil if internally generated (own PQ)

	eventCycle      uint64
	translated      bool
	translateIssued bool
	stashed         bool
}

// Comp is a set-associative cache: tag array, MSHR, translation stash,
// prefetch queue and replacement/prefetcher hooks, ticked once per clock
// edge via Tick (spec.md §4.3).
type Comp struct {
	cfg Config

	sets []set

	replacementPolicy replacement.Policy
	prefetcherPolicy  prefetcher.Prefetcher

	upperChannels     []*channel.Channel
	lowerChannel      *channel.Channel
	translationChannel *channel.Channel

	internalPQ []*channel.Request

	mshr          *mshrTable
	inflightWrites []*mshrEntry

	pending []*pendingTagCheck // admitted, in flight or stashed

	now uint64

	stats Stats
}

// Stats accumulates the cache's own counters, read by package stats for
// the simulator-wide report (spec.md §8 invariant: hits+misses per
// access type is monotone non-decreasing).
type Stats struct {
	Hits, Misses     map[replacement.AccessType]uint64
	PfIssued         uint64
	PfFill           uint64
	PfUseful         uint64
	PfUseless        uint64
	TotalMissLatency uint64
	FilledBlocks     uint64
}

func newStats() Stats {
	return Stats{
		Hits:   make(map[replacement.AccessType]uint64),
		Misses: make(map[replacement.AccessType]uint64),
	}
}

// New constructs a cache from its configuration and policies. pf
// may be nil, meaning the cache never prefetches.
func New(cfg Config, rp replacement.Policy, pf prefetcher.Prefetcher) *Comp {
	c := &Comp{
		cfg:               cfg,
		replacementPolicy: rp,
		prefetcherPolicy:  pf,
		mshr:              newMSHRTable(cfg.MSHRSize),
		stats:             newStats(),
	}

	c.sets = make([]set, cfg.NumSet)
	for i := range c.sets {
		c.sets[i].blocks = make([]Block, cfg.NumWay)
	}

	c.replacementPolicy.Initialize(cfg.NumSet, cfg.NumWay)

	if c.prefetcherPolicy != nil {
		c.prefetcherPolicy.Initialize(c)
	}

	return c
}

// Stats returns a snapshot of this cache's hit/miss/prefetch counters.
func (c *Comp) Stats() Stats {
	return c.stats
}

// AddUpperChannel registers a channel this cache serves as the
// downstream owner of (spec.md §4.3.1: "Publishes to upper levels a
// channel it exposes").
func (c *Comp) AddUpperChannel(ch *channel.Channel) {
	c.upperChannels = append(c.upperChannels, ch)
}

// SetLowerChannel configures the channel this cache submits requests
// into as the upstream requester.
func (c *Comp) SetLowerChannel(ch *channel.Channel) {
	c.lowerChannel = ch
}

// SetTranslationChannel configures an out-of-band channel to a page-table
// walker, used when this cache is virtually indexed (spec.md §4.3.2 steps
// 3/6/7).
func (c *Comp) SetTranslationChannel(ch *channel.Channel) {
	c.translationChannel = ch
}

// PrefetchLine implements prefetcher.CacheIssuer (spec.md §4.3.6): pushes
// onto the cache's own internal prefetch queue, failing if it is full or
// the block is already present, in flight, or already queued for
// prefetch (a prefetcher may otherwise re-request the same line every
// cycle it remains unconfirmed).
func (c *Comp) PrefetchLine(addr uint64, fillThisLevel bool, metadata uint32) bool {
	blockAddr := addr &^ (channel.BlockSize - 1)

	if len(c.internalPQ) >= c.cfg.PQSize {
		return false
	}

	if c.alreadyTracked(blockAddr) {
		return false
	}

	req := &channel.Request{
		ID:               xid.New().String(),
		Type:             channel.TypePrefetch,
		PhysicalAddress:  addr,
		VirtualAddress:   addr,
		PrefetchMetadata: metadata,
		SkipFill:         !fillThisLevel,
		IsTranslated:     true,
	}

	c.internalPQ = append(c.internalPQ, req)
	c.stats.PfIssued++

	return true
}

// alreadyTracked reports whether blockAddr is already resident, already
// an outstanding miss, or already queued anywhere in the pipeline, so a
// prefetcher never duplicates work the cache is already doing.
func (c *Comp) alreadyTracked(blockAddr uint64) bool {
	_, setID := c.setFor(blockAddr)
	t := c.tagOf(blockAddr)

	for _, b := range c.sets[setID].blocks {
		if b.Valid && c.tagOf(b.PhysicalAddress) == t {
			return true
		}
	}

	if _, ok := c.mshr.lookup(blockAddr); ok {
		return true
	}

	for _, req := range c.internalPQ {
		if req.BlockAddress() == blockAddr {
			return true
		}
	}

	for _, p := range c.pending {
		if p.req.BlockAddress() == blockAddr {
			return true
		}
	}

	return false
}

// Tick runs the fixed nine-step algorithm of spec.md §4.3.2 exactly once.
// It returns whether any useful work happened, for deadlock detection.
func (c *Comp) Tick(now uint64) bool {
	c.now = now
	progressed := false

	progressed = c.collisionPass() || progressed
	progressed = c.drainReturns() || progressed
	progressed = c.drainTranslations() || progressed
	progressed = c.processFills() || progressed
	progressed = c.tagCheckIntake() || progressed
	progressed = c.issueTranslations() || progressed
	c.stashStragglers()
	progressed = c.tagCheckResolution() || progressed

	if c.prefetcherPolicy != nil {
		c.prefetcherPolicy.CycleOperate()
	}

	return progressed
}

// step 1: Collision pass.
func (c *Comp) collisionPass() bool {
	for _, up := range c.upperChannels {
		up.CheckCollision()
	}

	return false
}

// step 2: Drain returns from the lower level, matching MSHR entries by
// block address and promoting them ahead of unreturned entries to
// preserve return order (spec.md §4.3.2 step 2).
func (c *Comp) drainReturns() bool {
	if c.lowerChannel == nil {
		return false
	}

	progressed := false

	for _, rsp := range c.lowerChannel.Returned() {
		e, ok := c.mshr.lookup(rsp.BlockAddress())
		if !ok {
			panic(fmt.Sprintf("cache %s: response for unknown MSHR block %#x",
				c.cfg.Name, rsp.BlockAddress()))
		}

		e.req.Data = rsp.Data
		e.req.PrefetchMetadata = rsp.PrefetchMetadata
		e.eventCycle = c.now + c.cfg.FillLatency
		c.mshr.promoteAheadOfUnreturned(e)
		progressed = true
	}

	c.lowerChannel.ClearReturned()

	return progressed
}

// step 3: Drain translations, patching the physical address of every
// still-queued lookup whose virtual page matches the response.
func (c *Comp) drainTranslations() bool {
	if c.translationChannel == nil {
		return false
	}

	progressed := false

	for _, rsp := range c.translationChannel.Returned() {
		page := rsp.VirtualAddress >> 12

		for _, p := range c.pending {
			if p.translated || p.req.VirtualAddress>>12 != page {
				continue
			}

			p.req.PhysicalAddress = (rsp.PhysicalAddress &^ 0xFFF) | (p.req.VirtualAddress & 0xFFF)
			p.req.IsTranslated = true
			p.translated = true
			progressed = true
		}
	}

	c.translationChannel.ClearReturned()

	return progressed
}

// PrintDeadlock implements a minimal deadlock report (spec.md §7).
func (c *Comp) PrintDeadlock(w io.Writer) {
	fmt.Fprintf(w, "  %s: mshr=%d/%d pending=%d internalPQ=%d/%d\n",
		c.cfg.Name, c.mshr.len(), c.cfg.MSHRSize, len(c.pending),
		len(c.internalPQ), c.cfg.PQSize)
}
