package dram

import "github.com/sarchlab/ooosim/channel"

// packet is one request admitted out of the upper channel's RQ/WQ and
// handed to a bank's state machine, per spec.md §4.4.2.
type packet struct {
	req *channel.Request

	bankIdx int
	row     uint64
	column  uint64
	isWrite bool

	rowBufferHit bool

	// eventCycle is when the bank has the data ready (scheduling →
	// active transition of spec.md §4.4.1); busFinishCycle is when the
	// data bus itself finishes returning it (populate_dbus /
	// finish_dbus_request).
	eventCycle    uint64
	onBus         bool
	busFinishCycle uint64
}
