package sim

import "testing"

func TestFreqDueAt(t *testing.T) {
	f := Freq(2)
	for cycle := uint64(0); cycle < 8; cycle++ {
		want := cycle%2 == 0
		if f.DueAt(cycle) != want {
			t.Fatalf("cycle %d: DueAt=%v, want %v", cycle, f.DueAt(cycle), want)
		}
	}
}

func TestFreqZeroPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on zero frequency")
		}
	}()

	Freq(0).Period()
}

type countingTicker struct {
	ticks int
	limit int
}

func (c *countingTicker) Tick(now uint64) bool {
	if c.ticks >= c.limit {
		return false
	}

	c.ticks++

	return true
}

func TestSimulatorStepsDueComponentsOnly(t *testing.T) {
	s := NewSimulator(1000)

	slow := &countingTicker{limit: 1000}
	s.Register("slow", Freq(4), slow)

	for i := 0; i < 8; i++ {
		s.Step()
	}

	if slow.ticks != 2 {
		t.Fatalf("expected 2 ticks at period 4 over 8 cycles, got %d", slow.ticks)
	}
}

func TestSimulatorDetectsDeadlock(t *testing.T) {
	s := NewSimulator(5)
	stuck := &countingTicker{limit: 0}
	s.Register("stuck", Freq(1), stuck)

	err := s.Run(100, &discard{})
	if err == nil {
		t.Fatal("expected deadlock error")
	}

	if !s.DeadlockAborted() {
		t.Fatal("expected DeadlockAborted to be true")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
