package sbox

import "context"

// bicPairs is the number of ordered (j1, j2) output-bit pairs with j1 != j2.
const bicPairs = Bits * (Bits - 1)

// BICSAC evaluates the bit independence criterion for avalanche. For every
// flipped input bit i and every ordered pair of distinct output bits
// (j1, j2), it counts the inputs where exactly one of the two output bits
// changes, normalises by 256, and averages over all 8*56 triples. Each
// unordered pair is visited twice, which leaves the mean unchanged.
func BICSAC(ctx context.Context, t Table, opts ...Option) (float64, error) {
	totals, err := scan(ctx, 0, Bits, newOptions(opts), func(i int) int {
		total := 0
		for j1 := 0; j1 < Bits; j1++ {
			for j2 := 0; j2 < Bits; j2++ {
				if j1 == j2 {
					continue
				}
				for x := 0; x < Size; x++ {
					diff := t[x] ^ t[x^(1<<i)]
					total += int(bit(diff, j1) ^ bit(diff, j2))
				}
			}
		}
		return total
	})
	if err != nil {
		return 0, err
	}
	return float64(sumOf(totals)) / (Size * Bits * bicPairs), nil
}

// BICNL returns the smallest Hamming distance between the truth table of any
// single output bit and any of the 512 affine functions Parity(mask&x)^c,
// with mask ranging over all 256 linear masks and c over {0, 1}.
//
// Note that the classical criterion measures XOR combinations of output-bit
// pairs; this is the single-bit distance.
func BICNL(ctx context.Context, t Table, opts ...Option) (int, error) {
	truth := BinaryTruthTable(t)

	distances, err := scan(ctx, 0, Size, newOptions(opts), func(mask int) int {
		var linear [Size]uint8
		for x := range linear {
			linear[x] = Parity(uint8(mask) & uint8(x))
		}

		best := Size
		for k := 0; k < Bits; k++ {
			// mismatches against c = 0; the distance for c = 1 is its complement
			mismatches := 0
			for x := 0; x < Size; x++ {
				if truth[x][k] != linear[x] {
					mismatches++
				}
			}
			best = min(best, mismatches, Size-mismatches)
		}
		return best
	})
	if err != nil {
		return 0, err
	}

	best := Size
	for _, d := range distances {
		best = min(best, d)
	}
	return best, nil
}
