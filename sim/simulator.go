package sim

import (
	"fmt"
	"io"

	"github.com/rs/xid"
)

// DeadlockReporter is the optional interface a component can implement to
// print diagnostic state when the Simulator aborts for lack of progress
// (spec.md §7). Components that don't implement it are simply skipped.
type DeadlockReporter interface {
	PrintDeadlock(w io.Writer)
}

// namedTicker pairs a Ticker with the Operable describing when it runs.
type namedTicker struct {
	Operable
	Ticker
}

// Simulator owns the single global cycle counter and the fixed,
// topologically-ordered list of components it drives each cycle
// (spec.md §5: "order of component ticks is fixed, consumer-before-
// producer"). There is no parallelism and no locking — components are
// ticked one at a time, in registration order, on a single goroutine.
type Simulator struct {
	id              string
	now             uint64
	components      []namedTicker
	deadlockWindow  uint64
	lastProgress    uint64
	deadlockAborted bool
}

// NewSimulator creates a Simulator with the given deadlock detection
// window (cycles of zero progress tolerated before aborting). Each
// Simulator is stamped with a unique run ID (matching the teacher's
// simv5.Simulation, which does the same with xid.New()), used by the
// stats package to tag heartbeat and summary output.
func NewSimulator(deadlockWindow uint64) *Simulator {
	return &Simulator{id: xid.New().String(), deadlockWindow: deadlockWindow}
}

// ID returns this run's unique identifier.
func (s *Simulator) ID() string {
	return s.id
}

// Register adds a component to the tick schedule, in consumer-before-
// producer order: register downstream/backing components (DRAM, memory
// controller, LLC) before the components that feed them (L2, L1, core).
func (s *Simulator) Register(name string, freq Freq, t Ticker) {
	s.components = append(s.components, namedTicker{
		Operable: NewOperable(name, freq),
		Ticker:   t,
	})
}

// Now returns the current global cycle.
func (s *Simulator) Now() uint64 {
	return s.now
}

// Step advances the simulator by exactly one cycle, ticking every
// component that is due. It returns whether any component made progress.
func (s *Simulator) Step() bool {
	progressed := false

	for _, c := range s.components {
		if !c.DueAt(s.now) {
			continue
		}

		if c.Tick(s.now) {
			progressed = true
		}
	}

	if progressed {
		s.lastProgress = s.now
	}

	s.now++

	return progressed
}

// Run steps the simulator until untilCycles have elapsed, or until a
// deadlock (no component progress for deadlockWindow consecutive cycles)
// is detected, in which case it invokes every component's DeadlockReporter
// hook and returns an error.
func (s *Simulator) Run(untilCycles uint64, w io.Writer) error {
	target := s.now + untilCycles

	for s.now < target {
		s.Step()

		if s.now-s.lastProgress > s.deadlockWindow {
			s.reportDeadlock(w)
			return fmt.Errorf(
				"sim: deadlock detected at cycle %d (no progress for %d cycles)",
				s.now, s.deadlockWindow)
		}
	}

	return nil
}

func (s *Simulator) reportDeadlock(w io.Writer) {
	s.deadlockAborted = true

	for _, c := range s.components {
		if reporter, ok := c.Ticker.(DeadlockReporter); ok {
			fmt.Fprintf(w, "=== deadlock state: %s ===\n", c.Operable.Name)
			reporter.PrintDeadlock(w)
		}
	}
}

// DeadlockAborted reports whether Run ended by aborting on a deadlock.
func (s *Simulator) DeadlockAborted() bool {
	return s.deadlockAborted
}
