package ptw_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ooosim/channel"
	"github.com/sarchlab/ooosim/ptw"
)

func cfg() ptw.Config {
	return ptw.Config{
		HitLatency:   1,
		LevelLatency: 2,
		PSCLSets:     16,
		PSCLWays:     4,
		CR3:          0,
	}
}

var _ = Describe("Comp", func() {
	var (
		w     *ptw.Comp
		upper *channel.Channel
	)

	BeforeEach(func() {
		w = ptw.New("PTW0", cfg(), nil)
		upper = channel.NewChannel("Upper", 4, 4, 0)
		w.SetUpperChannel(upper)
	})

	It("walks all four levels on a cold miss and returns after HIT_LATENCY", func() {
		ok := upper.AddRQ(&channel.Request{
			Type:           channel.TypeTranslation,
			VirtualAddress: 0x10000000,
		})
		Expect(ok).To(BeTrue())

		for now := uint64(0); now <= 9; now++ {
			w.Tick(now)
		}

		Expect(upper.Returned()).To(HaveLen(1))
		Expect(upper.Returned()[0].VirtualAddress).To(Equal(uint64(0x10000000)))
	})

	It("shortcuts through the PSCL on a second walk sharing the upper VA bits", func() {
		ok := upper.AddRQ(&channel.Request{
			Type:           channel.TypeTranslation,
			VirtualAddress: 0x10000000,
		})
		Expect(ok).To(BeTrue())

		for now := uint64(0); now <= 9; now++ {
			w.Tick(now)
		}

		Expect(upper.Returned()).To(HaveLen(1))
		upper.ClearReturned()

		// Shares bits above level-1's shift amount (21) with the first
		// walk's address, so the PSCL populated while walking it applies.
		ok = upper.AddRQ(&channel.Request{
			Type:           channel.TypeTranslation,
			VirtualAddress: 0x10001000,
		})
		Expect(ok).To(BeTrue())

		for now := uint64(10); now <= 14; now++ {
			w.Tick(now)
		}
		Expect(upper.Returned()).To(BeEmpty())

		w.Tick(15)

		Expect(upper.Returned()).To(HaveLen(1))
		Expect(upper.Returned()[0].VirtualAddress).To(Equal(uint64(0x10001000)))
	})
})
