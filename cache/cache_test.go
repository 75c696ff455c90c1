package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ooosim/cache"
	"github.com/sarchlab/ooosim/cache/replacement"
	"github.com/sarchlab/ooosim/channel"
)

func smallCache() *cache.Comp {
	return cache.MakeBuilder().
		WithName("L1").
		WithGeometry(1, 2).
		WithMSHRSize(4).
		WithPQSize(4).
		WithLatency(1, 1).
		WithBandwidth(4, 4).
		WithOffsetBits(6).
		WithReplacementPolicy(replacement.NewLRU()).
		Build()
}

func slowFillCache() *cache.Comp {
	return cache.MakeBuilder().
		WithName("L1").
		WithGeometry(1, 2).
		WithMSHRSize(4).
		WithPQSize(4).
		WithLatency(1, 3).
		WithBandwidth(4, 4).
		WithOffsetBits(6).
		WithReplacementPolicy(replacement.NewLRU()).
		Build()
}

var _ = Describe("Comp", func() {
	var (
		c     *cache.Comp
		upper *channel.Channel
	)

	BeforeEach(func() {
		c = smallCache()
		upper = channel.NewChannel("Upper", 4, 4, 4)
		c.AddUpperChannel(upper)
	})

	It("fills and returns a demand read miss with no lower level", func() {
		ok := upper.AddRQ(&channel.Request{
			Type:              channel.TypeRead,
			PhysicalAddress:   0x1000,
			IsTranslated:      true,
			ResponseRequested: true,
		})
		Expect(ok).To(BeTrue())

		c.Tick(0)
		c.Tick(1)
		c.Tick(2)

		Expect(upper.Returned()).To(HaveLen(1))
		Expect(upper.Returned()[0].PhysicalAddress).To(Equal(uint64(0x1000)))

		upper.ClearReturned()

		ok = upper.AddRQ(&channel.Request{
			Type:              channel.TypeRead,
			PhysicalAddress:   0x1000,
			IsTranslated:      true,
			ResponseRequested: true,
		})
		Expect(ok).To(BeTrue())

		c.Tick(3) // admits the second access
		c.Tick(4) // resolves it as a hit

		Expect(upper.Returned()).To(HaveLen(1))
	})

	It("does not queue the same prefetch twice", func() {
		first := c.PrefetchLine(0x2000, true, 0)
		Expect(first).To(BeTrue())

		second := c.PrefetchLine(0x2000, true, 0)
		Expect(second).To(BeFalse())
	})

	It("promotes an outstanding prefetch to demand on a merging miss", func() {
		c := slowFillCache()
		upper := channel.NewChannel("Upper", 4, 4, 4)
		c.AddUpperChannel(upper)

		ok := c.PrefetchLine(0x3000, true, 0)
		Expect(ok).To(BeTrue())

		c.Tick(0) // admits the internal prefetch into the tag-check pipe

		ok = upper.AddRQ(&channel.Request{
			Type:              channel.TypeRead,
			PhysicalAddress:   0x3000,
			IsTranslated:      true,
			ResponseRequested: true,
		})
		Expect(ok).To(BeTrue())

		c.Tick(1) // resolves the prefetch miss, allocating an MSHR entry;
		// admits the demand read behind it
		c.Tick(2) // resolves the demand read by merging into that entry
		c.Tick(3) // fill latency still pending
		c.Tick(4) // fill latency elapses; the merged entry is filled

		Expect(upper.Returned()).To(HaveLen(1))
		Expect(upper.Returned()[0].PhysicalAddress).To(Equal(uint64(0x3000)))
	})
})
