package trace

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func encodeRecord(in Instr) []byte {
	buf := make([]byte, recordSize)
	off := 0

	binary.LittleEndian.PutUint64(buf[off:], in.IP)
	off += 8

	if in.IsBranch {
		buf[off] = 1
	}
	off++

	if in.BranchTaken {
		buf[off] = 1
	}
	off++

	copy(buf[off:], in.DestRegs[:])
	off += maxDestRegs

	copy(buf[off:], in.SrcRegs[:])
	off += maxSrcRegs

	for _, a := range in.DestMemAddrs {
		binary.LittleEndian.PutUint64(buf[off:], a)
		off += 8
	}

	for _, a := range in.SrcMemAddrs {
		binary.LittleEndian.PutUint64(buf[off:], a)
		off += 8
	}

	return buf
}

func TestReaderRoundTrip(t *testing.T) {
	want := Instr{
		IP:           0xdeadbeef,
		IsBranch:     true,
		BranchTaken:  true,
		DestRegs:     [maxDestRegs]uint8{1, 0},
		SrcRegs:      [maxSrcRegs]uint8{2, 3, 0, 0},
		DestMemAddrs: [maxDestMem]uint64{0x1000, 0},
		SrcMemAddrs:  [maxSrcMem]uint64{0x2000, 0x3000, 0, 0},
	}

	r := NewReader(bytes.NewReader(encodeRecord(want)))

	got, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if got.NumDestRegs() != 1 || got.NumSrcRegs() != 2 {
		t.Fatalf("reg counts: dest=%d src=%d", got.NumDestRegs(), got.NumSrcRegs())
	}

	if got.NumDestMem() != 1 || got.NumSrcMem() != 2 {
		t.Fatalf("mem counts: dest=%d src=%d", got.NumDestMem(), got.NumSrcMem())
	}
}

func TestReaderEOFOnBoundary(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReaderTruncatedRecord(t *testing.T) {
	r := NewReader(bytes.NewReader(make([]byte, 10)))

	if _, err := r.Next(); err == nil || err == io.EOF {
		t.Fatalf("expected a truncation error, got %v", err)
	}
}
