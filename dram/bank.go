package dram

// BankState is one bank's position in the state machine of spec.md
// §4.4.1.
type BankState int

// The five bank states spec.md §4.4.1 names.
const (
	BankIdle BankState = iota
	BankCharged
	BankScheduling
	BankActive
	BankRefreshing
)

func (s BankState) String() string {
	switch s {
	case BankIdle:
		return "idle"
	case BankCharged:
		return "charged"
	case BankScheduling:
		return "scheduling"
	case BankActive:
		return "active"
	case BankRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// bank is one rank/bank pair's state-machine instance.
type bank struct {
	state BankState

	openRow    uint64
	hasOpenRow bool

	eventCycle     uint64 // when the current state transition completes
	pendingRefresh bool   // refresh is due but the bank was busy; apply it when it next idles
}
