package sbox

import "math/bits"

// BitVector holds the bits of an 8-bit value, most significant first.
type BitVector [Bits]uint8

// ToBitVector expands v into its bits, most significant first.
func ToBitVector(v uint8) BitVector {
	var vec BitVector
	for i := range vec {
		vec[i] = (v >> (Bits - 1 - i)) & 1
	}
	return vec
}

// FromBitVector packs vec back into a byte. Entries other than 0 count as 1.
func FromBitVector(vec BitVector) uint8 {
	var v uint8
	for _, b := range vec {
		v <<= 1
		if b != 0 {
			v |= 1
		}
	}
	return v
}

// HammingWeight returns the number of set bits in v.
func HammingWeight(v uint8) int {
	return bits.OnesCount8(v)
}

// Parity returns the XOR of all bits of v, so Parity(x & mask) is the
// linear function selected by mask evaluated at x.
func Parity(v uint8) uint8 {
	return uint8(bits.OnesCount8(v) & 1)
}

// BinaryTruthTable returns the output bit vectors of t, one row per input.
// Column k of the result is the truth table of output bit k counted from
// the most significant bit.
func BinaryTruthTable(t Table) [Size]BitVector {
	var truth [Size]BitVector
	for x, y := range t {
		truth[x] = ToBitVector(y)
	}
	return truth
}

// bit extracts bit position pos of v, counted from the least significant bit.
func bit(v uint8, pos int) uint8 {
	return (v >> pos) & 1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
