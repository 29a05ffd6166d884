package sbox

import "context"

// SACMatrix holds strict avalanche probabilities. Row i is the flipped input
// bit, column j the observed output bit, both counted from the least
// significant bit.
type SACMatrix [Bits][Bits]float64

// Rows returns the matrix as a rectangular slice grid for serialisation.
func (m SACMatrix) Rows() [][]float64 {
	rows := make([][]float64, Bits)
	for i := range m {
		rows[i] = append([]float64(nil), m[i][:]...)
	}
	return rows
}

// SAC evaluates the strict avalanche criterion. Cell (i, j) of the matrix is
// the fraction of inputs x for which bit j of t[x] differs from bit j of
// t[x XOR 1<<i]. The scalar is the mean of all 64 cells; 0.5 is ideal.
func SAC(ctx context.Context, t Table, opts ...Option) (float64, SACMatrix, error) {
	rows, err := scan(ctx, 0, Bits, newOptions(opts), func(i int) [Bits]int {
		var counts [Bits]int
		for x := 0; x < Size; x++ {
			diff := t[x] ^ t[x^(1<<i)]
			for j := 0; j < Bits; j++ {
				counts[j] += int(bit(diff, j))
			}
		}
		return counts
	})
	if err != nil {
		return 0, SACMatrix{}, err
	}

	var matrix SACMatrix
	total := 0
	for i, counts := range rows {
		for j, count := range counts {
			matrix[i][j] = float64(count) / Size
			total += count
		}
	}
	return float64(total) / (Size * Bits * Bits), matrix, nil
}
