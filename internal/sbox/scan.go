package sbox

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Option adjusts how a metric scan is executed. Options never change the
// value a metric returns.
type Option func(*options)

type options struct {
	workers int
}

// WithWorkers sets how many goroutines share a scan. A value of 1 runs the
// scan sequentially on the calling goroutine; values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.workers = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return o
}

// scan evaluates fn for every index in [lo, hi) and returns the results in
// index order. The index space is split into contiguous chunks, one per
// worker; each worker writes only its own slots. A cancelled context aborts
// the scan and the partial results are dropped.
func scan[T any](ctx context.Context, lo, hi int, o options, fn func(i int) T) ([]T, error) {
	n := hi - lo
	if n <= 0 {
		return nil, ctx.Err()
	}
	out := make([]T, n)

	workers := min(o.workers, n)
	if workers == 1 {
		for i := range out {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out[i] = fn(lo + i)
		}
		return out, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	chunk := (n + workers - 1) / workers
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		group.Go(func() error {
			for i := start; i < end; i++ {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				out[i] = fn(lo + i)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func maxOf(values []int) int {
	best := 0
	for _, v := range values {
		if v > best {
			best = v
		}
	}
	return best
}

func sumOf(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
