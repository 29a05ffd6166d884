// Package sbox computes cryptographic quality metrics of 8-bit substitution
// boxes: linear approximation probability, nonlinearity, differential
// approximation probability and uniformity, the strict avalanche criterion,
// and the bit independence criteria. Every metric is a pure function of an
// immutable 256-entry Table and may run concurrently with any other.
package sbox

import (
	"errors"
	"fmt"
)

const (
	// Size is the number of entries in an 8-bit S-box.
	Size = 256
	// Bits is the input and output width of the S-box.
	Bits = 8

	half = Size / 2
)

// ErrInvalidInput reports a table that violates the engine precondition:
// values must lie in [0, 255] and the normalised length must be 256.
var ErrInvalidInput = errors.New("sbox: invalid input")

// Table is a canonical 8-bit S-box. Index x is the input, Table[x] the output.
// Tables are passed by value, so a metric never observes later changes made
// by the caller.
type Table [Size]uint8

// Normalize canonicalises a raw sequence into exactly 256 entries. Shorter
// sequences are padded with the sequential values L, L+1, ..., 255; longer
// sequences are truncated to their first 256 entries. Values are not range
// checked. The returned slice never aliases raw.
func Normalize(raw []int) []int {
	out := make([]int, Size)
	n := copy(out, raw)
	for i := n; i < Size; i++ {
		out[i] = i
	}
	return out
}

// NewTable normalises raw and converts it into a Table. It fails with an
// error wrapping ErrInvalidInput when any normalised value falls outside
// [0, 255].
func NewTable(raw []int) (Table, error) {
	var table Table
	for i, v := range Normalize(raw) {
		if v < 0 || v > 0xff {
			return Table{}, fmt.Errorf("%w: value %d at index %d outside [0,255]", ErrInvalidInput, v, i)
		}
		table[i] = uint8(v)
	}
	return table, nil
}

// Ints returns the table as a freshly allocated slice of ints.
func (t Table) Ints() []int {
	out := make([]int, Size)
	for i, v := range t {
		out[i] = int(v)
	}
	return out
}

// Identity returns the table mapping every input to itself.
func Identity() Table {
	var table Table
	for i := range table {
		table[i] = uint8(i)
	}
	return table
}
