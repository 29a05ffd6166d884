package validation

import (
	"math"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/sbox"
)

// EstimateMCV estimates the min-entropy of the output column using the Most
// Common Value method from NIST SP 800-90B Section 6.3.1. It returns
// -log2(pmax) where pmax is the relative frequency of the most common output
// value. A permutation yields 8.0 and a constant table 0.0.
func EstimateMCV(t sbox.Table) float64 {
	minEntropy, _, _ := EstimateMCVWithStats(t)
	return minEntropy
}

// EstimateMCVWithStats returns the MCV estimate together with the most
// common output value and its occurrence count. Ties resolve to the smallest
// value.
func EstimateMCVWithStats(t sbox.Table) (minEntropy float64, mostCommonValue uint8, maxCount int) {
	var freq [sbox.Size]int
	for _, y := range t {
		freq[y]++
	}

	for v, count := range freq {
		if count > maxCount {
			maxCount = count
			mostCommonValue = uint8(v)
		}
	}

	pMax := float64(maxCount) / sbox.Size
	if pMax >= 1.0 {
		return 0.0, mostCommonValue, maxCount
	}
	return -math.Log2(pMax), mostCommonValue, maxCount
}
