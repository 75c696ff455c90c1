// Package trace reads the fixed-layout binary instruction trace format
// of spec.md §6: one record per instruction, little-endian. Grounded on
// the teacher's style of a streaming binary-format reader returning one
// domain struct per call (syifan-m2sim2/loader/elf.go's section-header
// and symbol-table readers), adapted from ELF's self-describing sizes
// to this format's single fixed record size.
package trace

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	maxDestRegs = 2
	maxSrcRegs  = 4
	maxDestMem  = 2
	maxSrcMem   = 4

	// recordSize is the on-disk byte width of one Instr: 8 (IP) + 1
	// (IsBranch) + 1 (BranchTaken) + 2 (dest regs) + 4 (src regs) +
	// 2*8 (dest mem) + 4*8 (src mem).
	recordSize = 8 + 1 + 1 + maxDestRegs + maxSrcRegs + maxDestMem*8 + maxSrcMem*8
)

// Instr is one decoded trace record.
type Instr struct {
	IP           uint64
	IsBranch     bool
	BranchTaken  bool
	DestRegs     [maxDestRegs]uint8
	SrcRegs      [maxSrcRegs]uint8
	DestMemAddrs [maxDestMem]uint64
	SrcMemAddrs  [maxSrcMem]uint64
}

// NumDestRegs reports how many of DestRegs are in use (register 0 is
// reserved to mean "no register", matching the teacher's convention of
// a zero value doubling as "absent" rather than a separate count field).
func (in *Instr) NumDestRegs() int {
	return countNonZero(in.DestRegs[:])
}

// NumSrcRegs reports how many of SrcRegs are in use.
func (in *Instr) NumSrcRegs() int {
	return countNonZero(in.SrcRegs[:])
}

// NumDestMem reports how many of DestMemAddrs are in use.
func (in *Instr) NumDestMem() int {
	return countNonZeroU64(in.DestMemAddrs[:])
}

// NumSrcMem reports how many of SrcMemAddrs are in use.
func (in *Instr) NumSrcMem() int {
	return countNonZeroU64(in.SrcMemAddrs[:])
}

func countNonZero(regs []uint8) int {
	n := 0
	for _, r := range regs {
		if r != 0 {
			n++
		}
	}

	return n
}

func countNonZeroU64(addrs []uint64) int {
	n := 0
	for _, a := range addrs {
		if a != 0 {
			n++
		}
	}

	return n
}

// Reader streams Instr records out of an underlying io.Reader.
type Reader struct {
	r   io.Reader
	buf [recordSize]byte
}

// NewReader wraps r as a trace Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next decodes the next record. It returns io.EOF, unwrapped, when the
// underlying reader is exhausted exactly on a record boundary; any
// other read error (including a short final record) is wrapped.
func (r *Reader) Next() (Instr, error) {
	if _, err := io.ReadFull(r.r, r.buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Instr{}, fmt.Errorf("trace: truncated record: %w", err)
		}

		return Instr{}, err
	}

	var in Instr

	off := 0

	in.IP = binary.LittleEndian.Uint64(r.buf[off:])
	off += 8

	in.IsBranch = r.buf[off] != 0
	off++

	in.BranchTaken = r.buf[off] != 0
	off++

	copy(in.DestRegs[:], r.buf[off:off+maxDestRegs])
	off += maxDestRegs

	copy(in.SrcRegs[:], r.buf[off:off+maxSrcRegs])
	off += maxSrcRegs

	for i := 0; i < maxDestMem; i++ {
		in.DestMemAddrs[i] = binary.LittleEndian.Uint64(r.buf[off:])
		off += 8
	}

	for i := 0; i < maxSrcMem; i++ {
		in.SrcMemAddrs[i] = binary.LittleEndian.Uint64(r.buf[off:])
		off += 8
	}

	return in, nil
}
