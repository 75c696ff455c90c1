package dram

import "github.com/sarchlab/ooosim/channel"

// MemoryController demultiplexes a single upper channel across N
// per-channel Comp controllers by address hash, per spec.md §4.4.4:
// channels[(addr >> log2(block)) & (channels-1)]. Grounded on the
// teacher's mem/dram/memcontroller.go Comp + addressmapping.Mapper
// split, collapsed to the one-line rule spec.md mandates.
type MemoryController struct {
	geom Geometry

	upper    *channel.Channel
	channels []*Comp
}

// NewMemoryController builds one Comp per channel bit combination using
// timing for all of them (a single physical DRAM technology per run).
func NewMemoryController(name string, geom Geometry, timing Timing) *MemoryController {
	mc := &MemoryController{geom: geom}

	for i := 0; i < geom.NumChannels(); i++ {
		mc.channels = append(mc.channels, New(channelName(name, i), geom, timing))
	}

	return mc
}

// Channels returns the per-channel Comp controllers, for stats
// registration.
func (mc *MemoryController) Channels() []*Comp {
	return mc.channels
}

func channelName(base string, i int) string {
	return base + ".Channel" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}

	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}

	return digits
}

// SetUpperChannel configures the channel the memory controller is fed
// from; the channel's RQ/WQ entries are demultiplexed per tick into
// each sub-channel's own private channel.Channel.
func (mc *MemoryController) SetUpperChannel(ch *channel.Channel) {
	mc.upper = ch

	for _, c := range mc.channels {
		c.SetUpperChannel(channel.NewChannel(c.name, 1<<16, 1<<16, 0))
	}
}

// SetWarmup propagates the warm-up fast path to every sub-channel.
func (mc *MemoryController) SetWarmup(warmup bool) {
	for _, c := range mc.channels {
		c.SetWarmup(warmup)
	}
}

// Tick demultiplexes newly arrived requests, ticks every sub-channel,
// then drains their responses back onto the shared upper channel.
func (mc *MemoryController) Tick(now uint64) bool {
	progressed := mc.demux()

	for _, c := range mc.channels {
		progressed = c.Tick(now) || progressed
	}

	progressed = mc.drainResponses() || progressed

	return progressed
}

func (mc *MemoryController) demux() bool {
	progressed := false

	for len(mc.upper.RQ()) > 0 {
		req := mc.upper.RQ()[0]
		dst := mc.channels[mc.geom.channelOf(req.BlockAddress())]

		if !dst.upper.AddRQ(req) {
			break
		}

		mc.upper.RemoveRQ(0)
		progressed = true
	}

	for len(mc.upper.WQ()) > 0 {
		req := mc.upper.WQ()[0]
		dst := mc.channels[mc.geom.channelOf(req.BlockAddress())]

		if !dst.upper.AddWQ(req) {
			break
		}

		mc.upper.RemoveWQ(0)
		progressed = true
	}

	return progressed
}

func (mc *MemoryController) drainResponses() bool {
	progressed := false

	for _, c := range mc.channels {
		for _, rsp := range c.upper.Returned() {
			mc.upper.Return(rsp)
			progressed = true
		}

		c.upper.ClearReturned()
	}

	return progressed
}
