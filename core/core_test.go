package core_test

import (
	"bytes"
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ooosim/core"
	"github.com/sarchlab/ooosim/core/predictor"
	"github.com/sarchlab/ooosim/trace"
)

// encodeRecord writes one 64-byte trace record matching spec.md §6's
// layout, mirroring trace/trace_test.go's helper.
func encodeRecord(ip uint64, isBranch, branchTaken bool, destRegs [2]uint8, srcRegs [4]uint8, destMem [2]uint64, srcMem [4]uint64) []byte {
	buf := make([]byte, 64)
	off := 0

	binary.LittleEndian.PutUint64(buf[off:], ip)
	off += 8

	if isBranch {
		buf[off] = 1
	}
	off++

	if branchTaken {
		buf[off] = 1
	}
	off++

	copy(buf[off:], destRegs[:])
	off += 2

	copy(buf[off:], srcRegs[:])
	off += 4

	for _, m := range destMem {
		binary.LittleEndian.PutUint64(buf[off:], m)
		off += 8
	}

	for _, m := range srcMem {
		binary.LittleEndian.PutUint64(buf[off:], m)
		off += 8
	}

	return buf
}

func smallConfig() core.Config {
	return core.Config{
		ROBSize: 4,
		LQSize:  2,
		SQSize:  2,

		FetchWidth:    1,
		DecodeWidth:   1,
		DispatchWidth: 1,
		RetireWidth:   1,
		ExecWidth:     1,
		LQWidth:       1,
		SQWidth:       1,

		FetchLatency:    1,
		DecodeLatency:   1,
		DispatchLatency: 1,
		ExecLatency:     1,

		BranchMispredictPenalty: 4,

		DIBSets:  4,
		DIBWays:  2,
		DIBShamt: 4,

		NumArchRegs: 8,

		InputQueueCapacity: 8,
	}
}

func newChain() predictor.BranchPredictor {
	return predictor.NewChain(predictor.NewBimodal(16))
}

var _ = Describe("Comp", func() {
	It("fetches, executes and retires a straight-line trace with no L1I/L1D wired", func() {
		var buf bytes.Buffer
		buf.Write(encodeRecord(0x1000, false, false, [2]uint8{}, [4]uint8{}, [2]uint64{}, [4]uint64{}))
		buf.Write(encodeRecord(0x1004, false, false, [2]uint8{}, [4]uint8{}, [2]uint64{}, [4]uint64{}))
		buf.Write(encodeRecord(0x1008, false, false, [2]uint8{}, [4]uint8{}, [2]uint64{}, [4]uint64{}))

		reader := trace.NewReader(&buf)
		c := core.New("core0", smallConfig(), 0, newChain(), predictor.NewDirectMappedBTB(8), nil, nil, reader)

		for now := uint64(0); now <= 8; now++ {
			c.Tick(now)
		}

		Expect(c.Stats().Retired).To(Equal(uint64(3)))
		Expect(c.Done()).To(BeTrue())
	})

	It("does not retire more than what the trace contains, even given extra ticks", func() {
		var buf bytes.Buffer
		buf.Write(encodeRecord(0x2000, false, false, [2]uint8{}, [4]uint8{}, [2]uint64{}, [4]uint64{}))

		reader := trace.NewReader(&buf)
		c := core.New("core1", smallConfig(), 0, newChain(), predictor.NewDirectMappedBTB(8), nil, nil, reader)

		for now := uint64(0); now <= 20; now++ {
			c.Tick(now)
		}

		Expect(c.Stats().Retired).To(Equal(uint64(1)))
		Expect(c.Done()).To(BeTrue())
	})
})
