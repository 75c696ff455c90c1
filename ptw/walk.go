package ptw

import "github.com/sarchlab/ooosim/channel"

// walk tracks one in-flight translation from the point a TRANSLATION
// request is admitted off the upper channel to its final delivery.
type walk struct {
	id uint64

	origin *channel.Request // the request that asked for this translation
	va     uint64

	level      int // table level currently being fetched, topLevel..0
	lowerReq   *channel.Request
	readyCycle uint64 // cycle the current level's fetch completes

	done      bool
	finalPhys uint64
	deliverAt uint64
}
