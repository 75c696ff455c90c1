package replacement

// LRU is the default replacement policy: each set keeps a recency queue
// of way indices, least-recently-used at the front. Grounded on the
// teacher's tagging.Set.LRUQueue (mem/cache/internal/tagging/tags.go),
// which moves a visited way to the back of a per-set slice rather than
// keeping an explicit counter per block.
type LRU struct {
	recency [][]int // per-set, oldest first
}

// NewLRU creates an LRU policy. Initialize must still be called before use.
func NewLRU() *LRU {
	return &LRU{}
}

// Initialize allocates one recency queue per set, seeded way 0..numWay-1.
func (l *LRU) Initialize(numSet, numWay int) {
	l.recency = make([][]int, numSet)

	for s := 0; s < numSet; s++ {
		queue := make([]int, numWay)
		for w := 0; w < numWay; w++ {
			queue[w] = w
		}

		l.recency[s] = queue
	}
}

// FindVictim returns the least-recently-used way of the set.
func (l *LRU) FindVictim(
	_ int, _ uint64, set int, _ []bool, _ uint64, _ uint64, _ AccessType,
) int {
	queue := l.recency[set]

	return queue[0]
}

// UpdateReplacementState moves way to the back of its set's recency
// queue, marking it most-recently-used, on both hits and fills.
func (l *LRU) UpdateReplacementState(
	_ int, set, way int, _ uint64, _ uint64, _ uint64, _ AccessType, _ bool,
) {
	queue := l.recency[set]
	next := make([]int, 0, len(queue))

	for _, w := range queue {
		if w != way {
			next = append(next, w)
		}
	}

	l.recency[set] = append(next, way)
}
