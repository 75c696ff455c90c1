package channel

// Channel is the bundle of four bounded queues linking two components:
// read requests, writes (including writebacks), prefetches, and the
// return path for completed requests (spec.md §3.2). A Channel has a
// single writer (the upstream component) and a single reader (the
// owner) per tick; there is no locking, per spec.md §5.
type Channel struct {
	Name string

	rq       []*Request
	wq       []*Request
	pq       []*Request
	returned []*Request

	rqCapacity int
	wqCapacity int
	pqCapacity int
}

// NewChannel creates a Channel with the given per-queue capacities.
func NewChannel(name string, rqCapacity, wqCapacity, pqCapacity int) *Channel {
	return &Channel{
		Name:       name,
		rqCapacity: rqCapacity,
		wqCapacity: wqCapacity,
		pqCapacity: pqCapacity,
	}
}

// AddRQ enqueues a read request. Returns false (leaving the channel
// untouched) if the queue is at capacity.
func (c *Channel) AddRQ(req *Request) bool {
	if len(c.rq) >= c.rqCapacity {
		return false
	}

	c.rq = append(c.rq, req)

	return true
}

// AddWQ enqueues a write or writeback request.
func (c *Channel) AddWQ(req *Request) bool {
	if len(c.wq) >= c.wqCapacity {
		return false
	}

	c.wq = append(c.wq, req)

	return true
}

// AddPQ enqueues a prefetch request.
func (c *Channel) AddPQ(req *Request) bool {
	if len(c.pq) >= c.pqCapacity {
		return false
	}

	c.pq = append(c.pq, req)

	return true
}

// RQ, WQ, PQ expose read-only views of the pending queues so an owner can
// drain them during tag-check intake (spec.md §4.3.2 step 5).
func (c *Channel) RQ() []*Request { return c.rq }
func (c *Channel) WQ() []*Request { return c.wq }
func (c *Channel) PQ() []*Request { return c.pq }

// RemoveRQ, RemoveWQ, RemovePQ drop the entry at index i after it has
// been admitted by the owner.
func (c *Channel) RemoveRQ(i int) { c.rq = removeAt(c.rq, i) }
func (c *Channel) RemoveWQ(i int) { c.wq = removeAt(c.wq, i) }
func (c *Channel) RemovePQ(i int) { c.pq = removeAt(c.pq, i) }

func removeAt(s []*Request, i int) []*Request {
	return append(s[:i], s[i+1:]...)
}

// RQLen, WQLen, PQLen report current occupancy, used by back-pressure and
// write-mode-swap watermark checks (spec.md §4.4.2).
func (c *Channel) RQLen() int { return len(c.rq) }
func (c *Channel) WQLen() int { return len(c.wq) }
func (c *Channel) PQLen() int { return len(c.pq) }

// Return appends a completed request to the Returned queue. It is
// append-only within a tick and is meant to be fully drained by the
// owner before the next tick (spec.md §3.2).
func (c *Channel) Return(req *Request) {
	c.returned = append(c.returned, req)
}

// Returned exposes the pending return queue for the owner to drain.
func (c *Channel) Returned() []*Request {
	return c.returned
}

// ClearReturned empties the return queue; called by the owner once every
// entry has been consumed, as spec.md §3.2 mandates.
func (c *Channel) ClearReturned() {
	c.returned = nil
}

// CheckCollision scans the outgoing queues (RQ, WQ, PQ) and merges any
// two entries whose block-aligned address coincides, per spec.md §4.2:
// the earlier entry absorbs the later one's dependents and return
// targets and the later entry is dropped. A write that collides with a
// pending read is additionally forwarded: the read is satisfied
// immediately from the write's data and pushed onto Returned.
func (c *Channel) CheckCollision() {
	c.rq = mergeQueue(c.rq)
	c.wq = mergeQueue(c.wq)
	c.pq = mergeQueue(c.pq)
	c.forwardWriteToRead()
}

func mergeQueue(queue []*Request) []*Request {
	out := make([]*Request, 0, len(queue))

	for _, req := range queue {
		merged := false

		for _, existing := range out {
			if existing.BlockAddress() == req.BlockAddress() {
				existing.MergeDependents(req)
				merged = true

				break
			}
		}

		if !merged {
			out = append(out, req)
		}
	}

	return out
}

func (c *Channel) forwardWriteToRead() {
	remainingRQ := c.rq[:0:0]

	for _, read := range c.rq {
		forwarded := false

		for _, write := range c.wq {
			if write.BlockAddress() != read.BlockAddress() {
				continue
			}

			rsp := *read
			rsp.Data = write.Data
			c.Return(&rsp)
			forwarded = true

			break
		}

		if !forwarded {
			remainingRQ = append(remainingRQ, read)
		}
	}

	c.rq = remainingRQ
}
