package core

import (
	"fmt"
	"io"

	"github.com/rs/xid"

	"github.com/sarchlab/ooosim/channel"
	"github.com/sarchlab/ooosim/core/predictor"
	"github.com/sarchlab/ooosim/trace"
)

// Stats accumulates one core's own retirement/branch counters.
type Stats struct {
	Retired        uint64
	Branches       uint64
	Mispredictions uint64
}

// Comp is one out-of-order core: the staging deques, ROB/LQ/SQ/DIB and
// register-producer table of spec.md §3.5, ticked through the eight
// stage functions of spec.md §4.6 in reverse pipeline order.
type Comp struct {
	name string
	cfg  Config
	cpu  int

	predictorChain predictor.BranchPredictor
	btb            predictor.BTB

	l1i *channel.Channel
	l1d *channel.Channel

	inputQueue     []trace.Instr
	ifetchBuffer   []*Instr
	decodeBuffer   []*Instr
	dispatchBuffer []*Instr

	rob []*Instr
	lq  []*lqEntry // sparse: nil entry == free slot
	sq  []*sqEntry

	dib *dib

	regProducer []*Instr // per architectural register

	fetchResumeCycle uint64
	nextInstrID      uint64

	reader    *trace.Reader
	traceDone bool

	now uint64

	stats Stats
}

// New constructs a core fed from reader and wired to l1i/l1d channels
// for instruction fetch and load/store traffic respectively.
func New(name string, cfg Config, cpu int, predictorChain predictor.BranchPredictor, btb predictor.BTB, l1i, l1d *channel.Channel, reader *trace.Reader) *Comp {
	predictorChain.Initialize()
	btb.InitializeBTB()

	c := &Comp{
		name:           name,
		cfg:            cfg,
		cpu:            cpu,
		predictorChain: predictorChain,
		btb:            btb,
		l1i:            l1i,
		l1d:            l1d,
		reader:         reader,
		dib:            newDIB(cfg.DIBSets, cfg.DIBWays, cfg.DIBShamt),
		regProducer:    make([]*Instr, cfg.NumArchRegs),
		lq:             make([]*lqEntry, cfg.LQSize),
		sq:             make([]*sqEntry, 0, cfg.SQSize),
	}

	return c
}

// Stats returns a snapshot of this core's counters.
func (c *Comp) Stats() Stats {
	return c.stats
}

// Tick runs the eight pipeline stage functions of spec.md §4.6 in
// reverse order, so no instruction advances two stages in one cycle.
func (c *Comp) Tick(now uint64) bool {
	c.now = now

	progressed := false

	progressed = c.retireROB() || progressed
	progressed = c.completeInflightInstruction() || progressed
	progressed = c.handleMemoryReturn() || progressed
	progressed = c.operateLSQ() || progressed
	progressed = c.scheduleMemoryInstruction() || progressed
	progressed = c.executeInstruction() || progressed
	progressed = c.scheduleInstruction() || progressed
	progressed = c.dispatchInstruction() || progressed
	progressed = c.decodeInstruction() || progressed
	progressed = c.fetchInstruction() || progressed
	progressed = c.refillInputQueue() || progressed

	return progressed
}

// stage 1: retireROB retires up to RETIRE_WIDTH instructions at the ROB
// head that are ready, freeing their LQ/SQ slots and, for branches,
// reporting the resolved outcome to the predictor chain and BTB.
func (c *Comp) retireROB() bool {
	progressed := false

	for i := 0; i < c.cfg.RetireWidth; i++ {
		if len(c.rob) == 0 {
			break
		}

		head := c.rob[0]
		if !head.ready(c.now) {
			break
		}

		if head.IsBranch {
			c.predictorChain.LastBranchResult(head.IP, head.ResolvedTarget, head.BranchTaken, predictor.BranchConditional)
			c.btb.UpdateBTB(head.IP, head.ResolvedTarget, head.BranchTaken, predictor.BranchConditional)
			c.stats.Branches++

			if head.Mispredicted {
				c.stats.Mispredictions++
			}
		}

		if head.LQIdx >= 0 {
			c.lq[head.LQIdx] = nil
		}

		if head.SQIdx >= 0 {
			c.removeSQ(head)
		}

		c.rob = c.rob[1:]
		c.stats.Retired++
		progressed = true
	}

	return progressed
}

// removeSQ drops instr's Store Queue entry, found by identity rather
// than index since entries shift position as older stores retire.
func (c *Comp) removeSQ(instr *Instr) {
	for i, e := range c.sq {
		if e.instr == instr {
			c.sq = append(c.sq[:i], c.sq[i+1:]...)
			return
		}
	}
}

// stage 2: completeInflightInstruction marks up to EXEC_WIDTH executing
// instructions complete, freeing their register producers and waking
// dependents.
func (c *Comp) completeInflightInstruction() bool {
	progressed := false
	completedThisTick := 0

	for _, instr := range c.rob {
		if completedThisTick >= c.cfg.ExecWidth {
			break
		}

		if instr.Completed || !instr.ready(c.now) {
			continue
		}

		instr.Completed = true
		completedThisTick++
		progressed = true

		for r := range instr.DestRegs {
			reg := instr.DestRegs[r]
			if reg != 0 && c.regProducer[reg] == instr {
				c.regProducer[reg] = nil
			}
		}

		for _, dep := range instr.Dependents {
			if dep.AwaitingProducers > 0 {
				dep.AwaitingProducers--
			}
		}

		instr.Dependents = nil
	}

	return progressed
}

// stage 3: handleMemoryReturn consumes L1D and L1I responses: an L1D
// response completes the matching LQ entry; an L1I response marks its
// ifetch-buffer entry fetched (spec.md §4.6 step 3).
func (c *Comp) handleMemoryReturn() bool {
	progressed := false

	if c.l1d != nil {
		for _, rsp := range c.l1d.Returned() {
			for _, e := range c.lq {
				if e != nil && e.instr.ID == rsp.InstrID && !e.completed {
					e.completed = true
					e.instr.MemReturned = true
					e.instr.CompletedCycle = c.now
					progressed = true

					break
				}
			}
		}

		c.l1d.ClearReturned()
	}

	if c.l1i != nil {
		for _, rsp := range c.l1i.Returned() {
			for _, instr := range c.ifetchBuffer {
				if instr.ID == rsp.InstrID && instr.FetchedCycle == neverFetched {
					instr.FetchedCycle = c.now
					progressed = true

					break
				}
			}
		}

		c.l1i.ClearReturned()
	}

	return progressed
}

// neverFetched marks an ifetch-buffer entry still awaiting its L1I
// response.
const neverFetched = ^uint64(0)

// stage 4: operateLSQ issues up to LQ_WIDTH loads and SQ_WIDTH stores
// that were scheduled on a prior tick, forwarding a load from an older
// same-address store in the SQ instead of touching L1D when possible.
func (c *Comp) operateLSQ() bool {
	progressed := false

	issued := 0
	for _, e := range c.lq {
		if issued >= c.cfg.LQWidth {
			break
		}

		if e == nil || !e.scheduled || e.issued {
			continue
		}

		e.issued = true
		issued++
		progressed = true

		if fwd := c.forwardingStore(e); fwd != nil {
			e.completed = true
			e.instr.MemReturned = true
			e.instr.CompletedCycle = c.now

			continue
		}

		req := &channel.Request{
			ID:              xid.New().String(),
			Type:            channel.TypeRead,
			PhysicalAddress: e.addr,
			InstrID:         e.instr.ID,
			CPU:             c.cpu,
		}

		if c.l1d == nil || !c.l1d.AddRQ(req) {
			e.issued = false
		}
	}

	issued = 0
	for i := 0; i < len(c.sq); i++ {
		if issued >= c.cfg.SQWidth {
			break
		}

		e := c.sq[i]
		if !e.scheduled || e.issued {
			continue
		}

		req := &channel.Request{
			ID:              xid.New().String(),
			Type:            channel.TypeWrite,
			PhysicalAddress: e.addr,
			Data:            make([]byte, channel.BlockSize),
			InstrID:         e.instr.ID,
			CPU:             c.cpu,
		}

		if c.l1d != nil && c.l1d.AddWQ(req) {
			e.issued = true
			e.instr.MemIssued = true
			issued++
			progressed = true
		}
	}

	return progressed
}

// forwardingStore returns the nearest older store in the SQ addressing
// the same block as e, if its address is already known, satisfying the
// load without L1D traffic (spec.md §4.6 step 4).
func (c *Comp) forwardingStore(e *lqEntry) *sqEntry {
	var best *sqEntry

	for _, s := range c.sq {
		if !s.scheduled || s.instr.ID >= e.instr.ID {
			continue
		}

		if s.addr&^(channel.BlockSize-1) != e.addr&^(channel.BlockSize-1) {
			continue
		}

		if best == nil || s.instr.ID > best.instr.ID {
			best = s
		}
	}

	return best
}

// stage 5: scheduleMemoryInstruction marks a ROB entry's LQ/SQ slot
// scheduled once its address-computing source registers have all
// completed, making it eligible for operateLSQ on a later tick.
func (c *Comp) scheduleMemoryInstruction() bool {
	progressed := false

	for _, instr := range c.rob {
		if instr.AwaitingProducers > 0 {
			continue
		}

		if instr.LQIdx >= 0 {
			e := c.lq[instr.LQIdx]
			if e != nil && !e.scheduled {
				e.scheduled = true
				progressed = true
			}
		}

		if instr.SQIdx >= 0 {
			for _, e := range c.sq {
				if e.instr == instr && !e.scheduled {
					e.scheduled = true
					progressed = true
				}
			}
		}
	}

	return progressed
}

// stage 6: executeInstruction moves ROB entries whose source-register
// producers have all completed into the executing state.
func (c *Comp) executeInstruction() bool {
	progressed := false
	executedThisTick := 0

	for _, instr := range c.rob {
		if executedThisTick >= c.cfg.ExecWidth {
			break
		}

		if instr.Executing || instr.AwaitingProducers > 0 {
			continue
		}

		instr.Executing = true
		instr.CompletedCycle = c.now + c.cfg.ExecLatency
		executedThisTick++
		progressed = true
	}

	return progressed
}

// stage 7: scheduleInstruction is a no-op kept for the stage order;
// rename (setting AwaitingProducers from the register producer table and
// registering new producers) happens in dispatchInstruction via rename.
func (c *Comp) scheduleInstruction() bool {
	return false // folded into dispatchInstruction below; see its doc comment.
}

// stage 8: dispatchInstruction moves ready dispatch-buffer entries into
// the ROB (binding an LQ/SQ slot for memory ops), performing rename at
// the same step since this repository's Instr carries no separate
// "renamed but not dispatched" state to place scheduleInstruction's
// bookkeeping into — dispatch and rename are inseparable here, so
// scheduleInstruction (stage 7) is a documented no-op and this stage
// does both.
func (c *Comp) dispatchInstruction() bool {
	progressed := false
	dispatched := 0

	for len(c.dispatchBuffer) > 0 && dispatched < c.cfg.DispatchWidth {
		instr := c.dispatchBuffer[0]
		if instr.DispatchedCycle > c.now {
			break
		}

		if len(c.rob) >= c.cfg.ROBSize {
			break
		}

		lqIdx := -1
		if instr.IsLoad() {
			lqIdx = c.freeLQSlot()
			if lqIdx < 0 {
				break
			}
		}

		if instr.IsStore() && len(c.sq) >= c.cfg.SQSize {
			break
		}

		c.dispatchBuffer = c.dispatchBuffer[1:]

		c.rename(instr)

		instr.LQIdx = lqIdx
		if lqIdx >= 0 {
			c.lq[lqIdx] = &lqEntry{instr: instr, addr: instr.SrcMemAddrs[0]}
		}

		if instr.IsStore() {
			// SQIdx is just an "is a store" marker; removeSQ finds the
			// actual entry by instr identity since slice positions
			// shift as older stores retire.
			instr.SQIdx = 0
			c.sq = append(c.sq, &sqEntry{instr: instr, addr: instr.DestMemAddrs[0]})
		} else {
			instr.SQIdx = -1
		}

		c.rob = append(c.rob, instr)
		dispatched++
		progressed = true
	}

	return progressed
}

func (c *Comp) freeLQSlot() int {
	for i, e := range c.lq {
		if e == nil {
			return i
		}
	}

	return -1
}

// rename binds instr's source registers to their current in-flight
// producers (if any) and registers instr as the new producer of its
// destination registers, spec.md §4.6 stage 7.
func (c *Comp) rename(instr *Instr) {
	for _, r := range instr.SrcRegs {
		if r == 0 {
			continue
		}

		if producer := c.regProducer[r]; producer != nil && !producer.Completed {
			instr.AwaitingProducers++
			producer.Dependents = append(producer.Dependents, instr)
		}
	}

	for _, r := range instr.DestRegs {
		if r != 0 {
			c.regProducer[r] = instr
		}
	}
}

// decodeInstruction is part of stage 8: promotes ready ifetch-buffer
// entries through the DIB (hit: skip straight to dispatch; miss: pay
// decode latency) and ready decode-buffer entries into dispatch.
func (c *Comp) decodeInstruction() bool {
	progressed := false

	for len(c.decodeBuffer) > 0 && c.decodeBuffer[0].DecodedCycle <= c.now {
		instr := c.decodeBuffer[0]
		c.decodeBuffer = c.decodeBuffer[1:]

		instr.DispatchedCycle = c.now + c.cfg.DispatchLatency
		c.dispatchBuffer = append(c.dispatchBuffer, instr)
		progressed = true
	}

	decoded := 0
	for len(c.ifetchBuffer) > 0 && decoded < c.cfg.DecodeWidth {
		instr := c.ifetchBuffer[0]
		if instr.FetchedCycle > c.now {
			break
		}

		c.ifetchBuffer = c.ifetchBuffer[1:]
		decoded++
		progressed = true

		if c.dib.lookup(instr.IP) {
			instr.DIBHit = true
			instr.DispatchedCycle = c.now + c.cfg.DispatchLatency
			c.dispatchBuffer = append(c.dispatchBuffer, instr)

			continue
		}

		c.dib.insert(instr.IP)
		instr.DecodedCycle = c.now + c.cfg.DecodeLatency
		c.decodeBuffer = append(c.decodeBuffer, instr)
	}

	return progressed
}

// fetchInstruction is part of stage 8: issues up to FETCH_WIDTH
// instructions from input_queue as L1I reads (spec.md §2's "issues
// fetch requests to the L1I cache through a channel"), predicting any
// branch's direction via the predictor chain and BTB and resolving it
// against the next instruction's IP — the true post-branch target,
// already visible at the head of input_queue since the trace is read
// strictly in program order. Each issued instruction is placed in
// ifetch_buffer immediately but stays un-fetched (FetchedCycle ==
// neverFetched) until handleMemoryReturn sees its L1I response; if no
// l1i channel is configured, it is marked fetched immediately after
// FetchLatency instead, a fallback used by tests that don't wire one.
func (c *Comp) fetchInstruction() bool {
	if c.now < c.fetchResumeCycle {
		return false
	}

	progressed := false

	for i := 0; i < c.cfg.FetchWidth && len(c.inputQueue) > 0; i++ {
		raw := c.inputQueue[0]

		instr := &Instr{
			ID:    c.nextInstrID,
			Instr: raw,
			LQIdx: -1,
			SQIdx: -1,
		}

		if c.l1i != nil {
			req := &channel.Request{
				ID:              xid.New().String(),
				Type:            channel.TypeRead,
				PhysicalAddress: raw.IP,
				InstrID:         instr.ID,
				CPU:             c.cpu,
			}

			if !c.l1i.AddRQ(req) {
				break
			}

			instr.FetchedCycle = neverFetched
		} else {
			instr.FetchedCycle = c.now + c.cfg.FetchLatency
		}

		c.inputQueue = c.inputQueue[1:]
		c.nextInstrID++
		c.ifetchBuffer = append(c.ifetchBuffer, instr)
		progressed = true

		if !instr.IsBranch {
			continue
		}

		instr.PredictedTaken = c.predictorChain.PredictBranch(instr.IP)
		predictedTarget, hit := c.btb.BTBPrediction(instr.IP)
		instr.BTBHit = hit

		if len(c.inputQueue) == 0 {
			// True target not yet visible (end of trace); assume
			// correct prediction rather than stall forever.
			instr.ResolvedTarget = predictedTarget
			continue
		}

		trueTarget := c.inputQueue[0].IP
		instr.ResolvedTarget = trueTarget

		mispredicted := instr.PredictedTaken != instr.BranchTaken ||
			(instr.BranchTaken && (!hit || predictedTarget != trueTarget))

		instr.Mispredicted = mispredicted

		if mispredicted {
			c.fetchResumeCycle = c.now + c.cfg.BranchMispredictPenalty

			break
		}
	}

	return progressed
}

// refillInputQueue reads trace records from the underlying reader until
// input_queue reaches its configured capacity, or the trace is
// exhausted.
func (c *Comp) refillInputQueue() bool {
	if c.traceDone || c.reader == nil {
		return false
	}

	progressed := false

	for len(c.inputQueue) < c.cfg.InputQueueCapacity {
		in, err := c.reader.Next()
		if err != nil {
			c.traceDone = true
			break
		}

		c.inputQueue = append(c.inputQueue, in)
		progressed = true
	}

	return progressed
}

// Done reports whether the trace is exhausted and every instruction has
// drained out of the pipeline.
func (c *Comp) Done() bool {
	return c.traceDone &&
		len(c.inputQueue) == 0 &&
		len(c.ifetchBuffer) == 0 &&
		len(c.decodeBuffer) == 0 &&
		len(c.dispatchBuffer) == 0 &&
		len(c.rob) == 0
}

// PrintDeadlock implements a minimal deadlock report (spec.md §7).
func (c *Comp) PrintDeadlock(w io.Writer) {
	fmt.Fprintf(w, "  %s: rob=%d lq=%d sq=%d inputQueue=%d\n",
		c.name, len(c.rob), len(c.lq), len(c.sq), len(c.inputQueue))
}
