package sbox

import "context"

// DDT is a difference distribution table: DDT[dx][dy] counts the inputs x
// for which t[x] XOR t[x XOR dx] equals dy.
type DDT [Size][Size]uint16

// differentialRow fills freq with the output-difference counts for input
// difference dx and returns the largest bucket.
func differentialRow(t *Table, dx int, freq *[Size]int) int {
	for x := 0; x < Size; x++ {
		freq[t[x]^t[x^dx]]++
	}
	best := 0
	for _, count := range freq {
		if count > best {
			best = count
		}
	}
	return best
}

// DifferentialUniformity returns the largest entry of the difference
// distribution table over all nonzero input differences. The result lies in
// [0, 256].
func DifferentialUniformity(ctx context.Context, t Table, opts ...Option) (int, error) {
	peaks, err := scan(ctx, 1, Size, newOptions(opts), func(dx int) int {
		var freq [Size]int
		return differentialRow(&t, dx, &freq)
	})
	if err != nil {
		return 0, err
	}
	return maxOf(peaks), nil
}

// DAP returns the differential approximation probability of t, the
// differential uniformity divided by 256.
func DAP(ctx context.Context, t Table, opts ...Option) (float64, error) {
	uniformity, err := DifferentialUniformity(ctx, t, opts...)
	if err != nil {
		return 0, err
	}
	return float64(uniformity) / Size, nil
}

// DifferenceDistributionTable returns the full difference distribution table
// of t, including the trivial row dx = 0.
func DifferenceDistributionTable(ctx context.Context, t Table, opts ...Option) (*DDT, error) {
	rows, err := scan(ctx, 0, Size, newOptions(opts), func(dx int) [Size]int {
		var freq [Size]int
		differentialRow(&t, dx, &freq)
		return freq
	})
	if err != nil {
		return nil, err
	}

	ddt := new(DDT)
	for dx, row := range rows {
		for dy, count := range row {
			ddt[dx][dy] = uint16(count)
		}
	}
	return ddt, nil
}
