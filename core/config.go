// Package core implements the out-of-order pipeline of spec.md §4.6/§3.5:
// ROB/LQ/SQ/DIB structures and eight stage functions executed in
// reverse pipeline order every tick. Grounded in *shape* on
// syifan-m2sim2/timing/pipeline (its pipeline_tick_*.go family of
// fixed-width tick functions and hazard.go's register-dependency
// tracking) but built against this repository's own channel.Channel
// and cache.Comp rather than m2sim's direct-call cache API, and against
// a trace-driven instruction lifecycle (ChampSim's ooo_model_instr)
// rather than m2sim's RISC-V emulator-driven stream.
package core

// Config sizes and times every stage of one Comp.
type Config struct {
	ROBSize int
	LQSize  int
	SQSize  int

	FetchWidth    int
	DecodeWidth   int
	DispatchWidth int
	RetireWidth   int
	ExecWidth     int
	LQWidth       int
	SQWidth       int

	FetchLatency    uint64
	DecodeLatency   uint64
	DispatchLatency uint64
	ExecLatency     uint64

	BranchMispredictPenalty uint64

	DIBSets  int
	DIBWays  int
	DIBShamt uint

	NumArchRegs int

	InputQueueCapacity int
}

// DefaultConfig returns a small, testable configuration grounded on the
// teacher's convention of modest default table/queue sizes.
func DefaultConfig() Config {
	return Config{
		ROBSize: 32,
		LQSize:  8,
		SQSize:  8,

		FetchWidth:    2,
		DecodeWidth:   2,
		DispatchWidth: 2,
		RetireWidth:   2,
		ExecWidth:     2,
		LQWidth:       1,
		SQWidth:       1,

		FetchLatency:    1,
		DecodeLatency:   1,
		DispatchLatency: 1,
		ExecLatency:     1,

		BranchMispredictPenalty: 4,

		DIBSets:  32,
		DIBWays:  4,
		DIBShamt: 4,

		NumArchRegs: 64,

		InputQueueCapacity: 64,
	}
}
