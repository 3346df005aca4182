// Package parallel runs independent work items on a bounded number of
// goroutines.
package parallel

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// Workers returns the default fan-out: the CPU count clamped to [2, 8].
func Workers() int {
	return min(max(runtime.NumCPU(), 2), 8)
}

// Result is the outcome of one item.
type Result[R any] struct {
	Value   R
	Err     error
	Elapsed time.Duration
}

// Map applies fn to every input on at most workers goroutines and returns
// the results in input order. A failing item does not stop the others.
// Items not yet started when ctx is done report ctx.Err(). workers <= 0
// means Workers().
func Map[T, R any](ctx context.Context, workers int, inputs []T, fn func(context.Context, T) (R, error)) []Result[R] {
	if len(inputs) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = Workers()
	}

	results := make([]Result[R], len(inputs))
	var g errgroup.Group
	g.SetLimit(min(workers, len(inputs)))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			start := time.Now()
			v, err := fn(ctx, in)
			results[i] = Result[R]{Value: v, Err: err, Elapsed: time.Since(start)}
			return nil
		})
	}
	g.Wait()
	return results
}

// PairwiseReduce folds items into one value in rounds. Each round combines
// disjoint neighbouring pairs concurrently, so combine owns both arguments.
// The shape of the fold depends only on len(items), which makes the result
// deterministic for an associative combine. An odd item out is carried to
// the next round.
func PairwiseReduce[T any](ctx context.Context, workers int, items []T, combine func(ctx context.Context, dst, src T) (T, error)) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, nil
	}

	type pair struct{ dst, src T }
	level := items
	for len(level) > 1 {
		pairs := make([]pair, 0, len(level)/2)
		for i := 0; i+1 < len(level); i += 2 {
			pairs = append(pairs, pair{level[i], level[i+1]})
		}
		results := Map(ctx, workers, pairs, func(ctx context.Context, p pair) (T, error) {
			return combine(ctx, p.dst, p.src)
		})

		next := make([]T, 0, (len(level)+1)/2)
		for _, r := range results {
			if r.Err != nil {
				return zero, r.Err
			}
			next = append(next, r.Value)
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0], nil
}
