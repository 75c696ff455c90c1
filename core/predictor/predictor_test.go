package predictor

import "testing"

func TestBimodalLearnsTakenPattern(t *testing.T) {
	b := NewBimodal(16)
	b.Initialize()

	pc := uint64(0x1000)

	for i := 0; i < 5; i++ {
		b.LastBranchResult(pc, 0x2000, true, BranchConditional)
	}

	if !b.PredictBranch(pc) {
		t.Fatal("expected taken after repeated taken outcomes")
	}
}

func TestBimodalLearnsNotTakenPattern(t *testing.T) {
	b := NewBimodal(16)
	b.Initialize()

	pc := uint64(0x1000)

	for i := 0; i < 5; i++ {
		b.LastBranchResult(pc, 0, false, BranchConditional)
	}

	if b.PredictBranch(pc) {
		t.Fatal("expected not-taken after repeated not-taken outcomes")
	}
}

func TestDirectMappedBTBMissThenHit(t *testing.T) {
	b := NewDirectMappedBTB(8)
	b.InitializeBTB()

	if _, hit := b.BTBPrediction(0x1000); hit {
		t.Fatal("expected a miss on an empty BTB")
	}

	b.UpdateBTB(0x1000, 0x9000, true, BranchConditional)

	target, hit := b.BTBPrediction(0x1000)
	if !hit || target != 0x9000 {
		t.Fatalf("got target=%#x hit=%v, want 0x9000/true", target, hit)
	}
}

func TestDirectMappedBTBIgnoresUntakenUpdates(t *testing.T) {
	b := NewDirectMappedBTB(8)
	b.InitializeBTB()

	b.UpdateBTB(0x1000, 0x9000, false, BranchConditional)

	if _, hit := b.BTBPrediction(0x1000); hit {
		t.Fatal("an untaken branch should not populate the BTB")
	}
}

// chainRecorder records every query/update it receives, to verify the
// last-vote-wins contract calls every predictor rather than short-
// circuiting once an earlier one has spoken.
type chainRecorder struct {
	vote    bool
	queries int
	updates int
}

func (c *chainRecorder) Initialize() {}

func (c *chainRecorder) PredictBranch(uint64) bool {
	c.queries++
	return c.vote
}

func (c *chainRecorder) LastBranchResult(uint64, uint64, bool, BranchType) {
	c.updates++
}

func TestChainLastVoteWins(t *testing.T) {
	first := &chainRecorder{vote: true}
	last := &chainRecorder{vote: false}

	chain := NewChain(first, last)

	if got := chain.PredictBranch(0x1000); got != false {
		t.Fatalf("expected the last predictor's vote (false), got %v", got)
	}

	if first.queries != 1 || last.queries != 1 {
		t.Fatalf("expected both predictors queried, got first=%d last=%d", first.queries, last.queries)
	}

	chain.LastBranchResult(0x1000, 0x2000, true, BranchConditional)

	if first.updates != 1 || last.updates != 1 {
		t.Fatalf("expected both predictors updated, got first=%d last=%d", first.updates, last.updates)
	}
}
