// Package validation implements diagnostic checks on substitution tables
// that sit next to the cryptographic metrics: output-bit balance,
// bijectivity, fixed points and a most-common-value min-entropy estimate.
// None of these are selectable metrics; they annotate a report.
package validation

import (
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/sbox"
)

// OutputBitBalance returns, for each output bit counted from the least
// significant bit, the ratio of table entries in which that bit is set. The
// table is balanced when every ratio is exactly 0.5.
func OutputBitBalance(t sbox.Table) ([sbox.Bits]float64, bool) {
	var ones [sbox.Bits]int
	for _, y := range t {
		for j := 0; j < sbox.Bits; j++ {
			ones[j] += int((y >> uint(j)) & 1)
		}
	}

	var ratios [sbox.Bits]float64
	balanced := true
	for j, count := range ones {
		ratios[j] = float64(count) / sbox.Size
		if count != sbox.Size/2 {
			balanced = false
		}
	}
	return ratios, balanced
}

// DistinctValues counts the distinct output values of t.
func DistinctValues(t sbox.Table) int {
	var seen [sbox.Size]bool
	distinct := 0
	for _, y := range t {
		if !seen[y] {
			seen[y] = true
			distinct++
		}
	}
	return distinct
}

// IsPermutation reports whether t is a bijection on [0, 255].
func IsPermutation(t sbox.Table) bool {
	return DistinctValues(t) == sbox.Size
}

// FixedPoints counts inputs x with t[x] == x.
func FixedPoints(t sbox.Table) int {
	fixed := 0
	for x, y := range t {
		if int(y) == x {
			fixed++
		}
	}
	return fixed
}

// Summary aggregates every diagnostic for one table.
type Summary struct {
	BitBalance     []float64 `json:"bit_balance" yaml:"bit_balance"`
	Balanced       bool      `json:"balanced" yaml:"balanced"`
	Permutation    bool      `json:"permutation" yaml:"permutation"`
	FixedPoints    int       `json:"fixed_points" yaml:"fixed_points"`
	DistinctValues int       `json:"distinct_values" yaml:"distinct_values"`
	MinEntropy     float64   `json:"min_entropy" yaml:"min_entropy"`
}

// Summarize runs all diagnostics against t.
func Summarize(t sbox.Table) Summary {
	ratios, balanced := OutputBitBalance(t)
	distinct := DistinctValues(t)

	return Summary{
		BitBalance:     ratios[:],
		Balanced:       balanced,
		Permutation:    distinct == sbox.Size,
		FixedPoints:    FixedPoints(t),
		DistinctValues: distinct,
		MinEntropy:     EstimateMCV(t),
	}
}
