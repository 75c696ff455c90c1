package replacement

import "testing"

func TestLRUEvictsOldestFirst(t *testing.T) {
	l := NewLRU()
	l.Initialize(1, 4)

	// Touch ways 1 and 3, leaving 0 and 2 as the oldest.
	l.UpdateReplacementState(0, 0, 1, 0, 0, 0, AccessLoad, true)
	l.UpdateReplacementState(0, 0, 3, 0, 0, 0, AccessLoad, true)

	victim := l.FindVictim(0, 0, 0, nil, 0, 0, AccessLoad)
	if victim != 0 {
		t.Fatalf("expected way 0 (never touched) to be victim, got %d", victim)
	}

	l.UpdateReplacementState(0, 0, 0, 0, 0, 0, AccessLoad, false)

	victim = l.FindVictim(0, 0, 0, nil, 0, 0, AccessLoad)
	if victim != 2 {
		t.Fatalf("expected way 2 to be next victim, got %d", victim)
	}
}
