// Package addr provides typed sub-ranges ("slices") of a 64-bit address.
//
// A Slice carries its bit extents alongside its value so that two values
// taken from different address fields can never be compared or combined
// by accident: equality, splicing and offsetting all check bounds first.
package addr

import "fmt"

// Slice is a half-open bit range [Lower, Upper) over a 64-bit value. The
// stored Value holds the range's bits right-aligned at bit 0, so it never
// has bits set at or above Width().
type Slice struct {
	Value uint64
	Lower uint8
	Upper uint8
}

// NewSlice constructs a Slice from an integer already positioned at bit
// 0, truncating any bits at or above upper-lower.
func NewSlice(value uint64, lower, upper uint8) Slice {
	checkBounds(lower, upper)

	width := upper - lower
	mask := widthMask(width)

	return Slice{
		Value: value & mask,
		Lower: lower,
		Upper: upper,
	}
}

// Width returns the number of bits spanned by the slice.
func (s Slice) Width() uint8 {
	return s.Upper - s.Lower
}

// Uint64 returns the slice's value as a plain integer, positioned at bit 0.
func (s Slice) Uint64() uint64 {
	return s.Value
}

// Shifted returns the slice's value repositioned at its natural bit
// offset within a full 64-bit address (Value << Lower).
func (s Slice) Shifted() uint64 {
	return s.Value << s.Lower
}

// Equal reports whether two slices have the same bounds and the same
// value. Comparing slices with mismatched bounds is a programmer error:
// it panics rather than silently returning false, since a bound mismatch
// usually means the wrong field was compared.
func (s Slice) Equal(other Slice) bool {
	if s.Lower != other.Lower || s.Upper != other.Upper {
		panic(fmt.Sprintf(
			"addr: comparing slices with mismatched bounds [%d,%d) vs [%d,%d)",
			s.Lower, s.Upper, other.Lower, other.Upper))
	}

	return s.Value == other.Value
}

// Splice combines two slices into one spanning the union of their bounds.
// Bits covered by high take precedence where the two spans overlap; bits
// covered only by low fill the remainder. The result's bounds are
// [min(low.Lower, high.Lower), max(low.Upper, high.Upper)).
func Splice(low, high Slice) Slice {
	lower := minU8(low.Lower, high.Lower)
	upper := maxU8(low.Upper, high.Upper)

	lowShifted := low.Value << (low.Lower - lower)
	highMask := widthMask(high.Width()) << (high.Lower - lower)
	highShifted := (high.Value << (high.Lower - lower)) & highMask

	value := (lowShifted &^ highMask) | highShifted

	return NewSlice(value, lower, upper)
}

// Offset returns the signed distance b - a between two same-bounded
// slices, interpreting both as unsigned magnitudes within their width.
func Offset(a, b Slice) int64 {
	if a.Lower != b.Lower || a.Upper != b.Upper {
		panic(fmt.Sprintf(
			"addr: offset between mismatched bounds [%d,%d) vs [%d,%d)",
			a.Lower, a.Upper, b.Lower, b.Upper))
	}

	return int64(b.Value) - int64(a.Value)
}

// Add returns a new slice holding (s + delta), wrapping within the
// slice's own width.
func (s Slice) Add(delta int64) Slice {
	width := s.Width()
	mask := widthMask(width)
	sum := (int64(s.Value) + delta) & int64(mask)

	return Slice{Value: uint64(sum) & mask, Lower: s.Lower, Upper: s.Upper}
}

func widthMask(width uint8) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}

	return (uint64(1) << width) - 1
}

func checkBounds(lower, upper uint8) {
	if lower > upper || upper > 64 {
		panic(fmt.Sprintf("addr: invalid slice bounds [%d,%d)", lower, upper))
	}
}

func minU8(a, b uint8) uint8 {
	if a < b {
		return a
	}

	return b
}

func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}

	return b
}
