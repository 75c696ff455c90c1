package core

import "github.com/sarchlab/ooosim/trace"

// Instr is this repository's ooo_model_instr: a trace.Instr plus every
// piece of pipeline state spec.md §3.5 tracks across its lifetime, from
// birth in input_queue to destruction at ROB retirement.
type Instr struct {
	ID uint64
	trace.Instr

	// Dependents lists the in-flight instructions whose AwaitingProducers
	// this one will decrement on completion. Unlike spec.md §3.5's
	// per-register producer list, only the single most recent producer
	// of a register is tracked (regProducer in comp.go) — sufficient
	// because in-order dispatch guarantees an instruction only ever
	// waits on the nearest preceding writer of a register it reads.
	Dependents        []*Instr
	AwaitingProducers int

	PredictedTaken bool
	ResolvedTarget uint64
	BTBHit         bool
	Mispredicted   bool

	DIBHit bool

	FetchedCycle    uint64
	DecodedCycle    uint64
	DispatchedCycle uint64
	CompletedCycle  uint64

	Executing bool
	Completed bool

	LQIdx int // index into Comp.lq, or -1
	SQIdx int // 0 for a store (a marker, not a position in Comp.sq), or -1

	MemIssued   bool
	MemReturned bool
}

// IsLoad reports whether this instruction reads memory.
func (in *Instr) IsLoad() bool {
	return in.NumSrcMem() > 0
}

// IsStore reports whether this instruction writes memory.
func (in *Instr) IsStore() bool {
	return in.NumDestMem() > 0
}

// ready reports whether the instruction may be retired this cycle: a
// non-memory instruction is ready once its execute latency has elapsed;
// a load is additionally gated on its memory response; a store is
// gated on its write having been issued to L1D (spec.md's "a store
// retires without waiting for its write to land" convention stops at
// "issued", not "completed", so the write is never lost to a race with
// retirement freeing its SQ slot).
func (in *Instr) ready(now uint64) bool {
	if !in.Executing || in.CompletedCycle > now {
		return false
	}

	if in.IsLoad() {
		return in.MemReturned
	}

	if in.IsStore() {
		return in.MemIssued
	}

	return true
}

// lqEntry is one Load Queue slot.
type lqEntry struct {
	instr     *Instr
	addr      uint64
	scheduled bool
	issued    bool
	completed bool
}

// sqEntry is one Store Queue slot.
type sqEntry struct {
	instr     *Instr
	addr      uint64
	scheduled bool
	issued    bool
}
