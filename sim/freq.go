// Package sim provides the discrete-event substrate shared by every
// component: a clock period expressed in core cycles and a tick gate that
// tells a component when it is due to run, mirroring the teacher's
// Freq/Ticker/TickingComponent split (composition, not inheritance) but
// adapted from continuous VTimeInSec to the integer cycle counter the
// specification requires.
package sim

import "fmt"

// Freq is a clock period expressed as a multiple of the global core cycle.
// A component with Freq == 1 ticks every cycle; Freq == 2 ticks every
// other cycle (e.g. an L2 clocked at half core frequency).
type Freq uint64

// Period returns the component's clock period. Panics if Freq is zero,
// mirroring the teacher's log.Panic-on-zero-frequency convention.
func (f Freq) Period() uint64 {
	if f == 0 {
		panic("sim: frequency period cannot be 0")
	}

	return uint64(f)
}

// DueAt reports whether a component with this period is due to tick at
// the given global cycle.
func (f Freq) DueAt(now uint64) bool {
	return now%f.Period() == 0
}

// Ticker is implemented by anything that can advance one cycle of its own
// logic. It returns true if it did useful work, matching the teacher's
// "madeProgress" convention used for deadlock detection (spec.md §7).
type Ticker interface {
	Tick(now uint64) bool
}

// Operable is the small struct Simulator pairs with each registered
// Ticker: its name and clock period. It carries no behavior of its own; Simulator asks each registered Operable
// whether it is DueAt(now) and calls its Ticker.Tick if so.
type Operable struct {
	Name   string
	Period uint64
}

// NewOperable validates and constructs an Operable.
func NewOperable(name string, freq Freq) Operable {
	return Operable{Name: name, Period: freq.Period()}
}

// DueAt reports whether this operable is scheduled to run at cycle now.
func (o Operable) DueAt(now uint64) bool {
	return now%o.Period == 0
}

// String implements fmt.Stringer for diagnostic output.
func (o Operable) String() string {
	return fmt.Sprintf("%s(period=%d)", o.Name, o.Period)
}
