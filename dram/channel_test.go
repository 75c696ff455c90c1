package dram_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ooosim/channel"
	"github.com/sarchlab/ooosim/dram"
)

func fastTiming() dram.Timing {
	return dram.Timing{
		TCAS: 2, TRCD: 2, TRP: 2, TRTP: 1,
		TWR: 1, TWTR: 1, TWTRS: 1, TFAW: 1, TRFC: 5, TREFI: 1000,
		WriteHighWatermark: 4, WriteLowWatermark: 1,
		DBusTurnAround: 1, DBusReturn: 2,
	}
}

var _ = Describe("Comp", func() {
	var (
		c     *dram.Comp
		upper *channel.Channel
	)

	BeforeEach(func() {
		c = dram.New("DRAM0", dram.DefaultGeometry(), fastTiming())
		upper = channel.NewChannel("Upper", 4, 4, 0)
		c.SetUpperChannel(upper)
	})

	It("services a demand read and returns it once the bus finishes", func() {
		ok := upper.AddRQ(&channel.Request{
			Type:            channel.TypeRead,
			PhysicalAddress: 0x1000,
			IsTranslated:    true,
		})
		Expect(ok).To(BeTrue())

		for now := uint64(0); now <= 6; now++ {
			c.Tick(now)
		}

		Expect(upper.Returned()).To(HaveLen(1))
		Expect(upper.Returned()[0].PhysicalAddress).To(Equal(uint64(0x1000)))
	})

	It("hits the row buffer on a second access to the same bank and row", func() {
		// 0x1000 and 0x1200 share bank 0 / row 0 under DefaultGeometry,
		// differing only in the column field.
		for _, addr := range []uint64{0x1000, 0x1200} {
			ok := upper.AddRQ(&channel.Request{
				Type:            channel.TypeRead,
				PhysicalAddress: addr,
				IsTranslated:    true,
			})
			Expect(ok).To(BeTrue())

			for now := uint64(0); now <= 8; now++ {
				c.Tick(now)
			}

			upper.ClearReturned()
		}

		Expect(c.Stats().RowBufferHits).To(Equal(uint64(1)))
		Expect(c.Stats().RowBufferMisses).To(Equal(uint64(1)))
	})

	It("drains reads immediately and drops writes during warm-up", func() {
		c.SetWarmup(true)

		ok := upper.AddRQ(&channel.Request{
			Type:            channel.TypeRead,
			PhysicalAddress: 0x2000,
			IsTranslated:    true,
		})
		Expect(ok).To(BeTrue())

		ok = upper.AddWQ(&channel.Request{
			Type:            channel.TypeWrite,
			PhysicalAddress: 0x3000,
			IsTranslated:    true,
		})
		Expect(ok).To(BeTrue())

		c.Tick(0)

		Expect(upper.Returned()).To(HaveLen(1))
		Expect(upper.RQLen()).To(Equal(0))
		Expect(upper.WQLen()).To(Equal(0))
	})

	It("coalesces duplicate writes to the same block", func() {
		for i := 0; i < 2; i++ {
			ok := upper.AddWQ(&channel.Request{
				Type:            channel.TypeWrite,
				PhysicalAddress: 0x4000,
				IsTranslated:    true,
			})
			Expect(ok).To(BeTrue())
		}

		for now := uint64(0); now <= 10; now++ {
			c.Tick(now)
		}

		Expect(upper.WQLen()).To(Equal(0))
		Expect(c.Stats().WritesServiced).To(Equal(uint64(1)))
	})
})
