// Package predictor implements the branch-predictor and BTB module
// interfaces of spec.md §6, grounded on the teacher's
// syifan-m2sim2/timing/pipeline/branch_predictor.go (2-bit saturating
// counter BHT plus a separate PC-indexed BTB table).
package predictor

// BranchType distinguishes why control flow might transfer, since a
// predictor or BTB may want to treat calls/returns differently from
// ordinary conditional branches.
type BranchType int

// The branch types a predictor or BTB may be asked to handle.
const (
	BranchConditional BranchType = iota
	BranchDirectJump
	BranchIndirect
	BranchCall
	BranchReturn
)

// BranchPredictor is the taken/not-taken prediction module interface of
// spec.md §6.
type BranchPredictor interface {
	Initialize()
	PredictBranch(ip uint64) bool
	LastBranchResult(ip, target uint64, taken bool, branchType BranchType)
}

// BTB is the target-address prediction module interface of spec.md §6.
type BTB interface {
	InitializeBTB()
	BTBPrediction(ip uint64) (target uint64, hit bool)
	UpdateBTB(ip, target uint64, taken bool, branchType BranchType)
}

// Chain composes an ordered list of BranchPredictor as a single
// BranchPredictor. Every predictor in the chain is queried and updated;
// per spec.md §9, the LAST predictor's vote is the one that is returned
// — not the first, not a majority. This is documented behavior, not an
// oversight: a chain is meant to let a later, more sophisticated
// predictor override an earlier cheap one while still letting both
// observe every branch for their own bookkeeping.
type Chain struct {
	predictors []BranchPredictor
}

// NewChain builds a Chain over the given predictors, in query order.
// The last one's PredictBranch vote wins.
func NewChain(predictors ...BranchPredictor) *Chain {
	return &Chain{predictors: predictors}
}

// Initialize initializes every predictor in the chain.
func (c *Chain) Initialize() {
	for _, p := range c.predictors {
		p.Initialize()
	}
}

// PredictBranch queries every predictor in order and returns the last
// one's vote.
func (c *Chain) PredictBranch(ip uint64) bool {
	var vote bool

	for _, p := range c.predictors {
		vote = p.PredictBranch(ip)
	}

	return vote
}

// LastBranchResult reports the resolved outcome to every predictor in
// the chain.
func (c *Chain) LastBranchResult(ip, target uint64, taken bool, branchType BranchType) {
	for _, p := range c.predictors {
		p.LastBranchResult(ip, target, taken, branchType)
	}
}
