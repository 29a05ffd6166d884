package sbox

import "context"

// LAP returns the linear approximation probability of t. For every pair of
// nonzero input mask a and output mask b it counts the inputs x where
// Parity(x&a) equals Parity(t[x]&b), takes the bias |count-128|/128, and
// reports half of the largest bias. The result lies in [0, 0.5].
func LAP(ctx context.Context, t Table, opts ...Option) (float64, error) {
	// outputParity[b][x] = Parity(t[x] & b)
	outputParity := make([][Size]uint8, Size)
	for b := 1; b < Size; b++ {
		for x, y := range t {
			outputParity[b][x] = Parity(y & uint8(b))
		}
	}

	deviations, err := scan(ctx, 1, Size, newOptions(opts), func(a int) int {
		var inputParity [Size]uint8
		for x := range inputParity {
			inputParity[x] = Parity(uint8(x) & uint8(a))
		}

		best := 0
		for b := 1; b < Size; b++ {
			row := &outputParity[b]
			count := 0
			for x := 0; x < Size; x++ {
				if inputParity[x] == row[x] {
					count++
				}
			}
			if d := abs(count - half); d > best {
				best = d
			}
		}
		return best
	})
	if err != nil {
		return 0, err
	}

	bias := float64(maxOf(deviations)) / half
	return bias / 2, nil
}

// Nonlinearity returns 2^(n-1) - maxBias/2 with n = 8, where maxBias is the
// largest absolute Walsh sum over every nonzero linear coefficient c and
// output bit k. The Walsh sum adds +1 for each input x where Parity(c&x)
// equals bit k of t[x], and -1 otherwise. The result lies in [0, 128].
func Nonlinearity(ctx context.Context, t Table, opts ...Option) (int, error) {
	truth := BinaryTruthTable(t)

	biases, err := scan(ctx, 1, Size, newOptions(opts), func(c int) int {
		best := 0
		for k := 0; k < Bits; k++ {
			total := 0
			for x := 0; x < Size; x++ {
				if Parity(uint8(c)&uint8(x)) == truth[x][k] {
					total++
				} else {
					total--
				}
			}
			if total = abs(total); total > best {
				best = total
			}
		}
		return best
	})
	if err != nil {
		return 0, err
	}

	return 1<<(Bits-1) - maxOf(biases)/2, nil
}
