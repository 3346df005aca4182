package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkers(t *testing.T) {
	w := Workers()
	assert.GreaterOrEqual(t, w, 2)
	assert.LessOrEqual(t, w, 8)
}

func TestMap_PreservesOrder(t *testing.T) {
	inputs := []int{5, 4, 3, 2, 1}
	results := Map(context.Background(), 3, inputs, func(_ context.Context, in int) (int, error) {
		time.Sleep(time.Duration(in) * time.Millisecond)
		return in * 10, nil
	})
	require.Len(t, results, len(inputs))
	for i, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, inputs[i]*10, r.Value)
	}
}

func TestMap_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	Map(context.Background(), 2, make([]int, 12), func(context.Context, int) (struct{}, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return struct{}{}, nil
	})
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestMap_ItemErrorsAreIndependent(t *testing.T) {
	boom := errors.New("boom")
	results := Map(context.Background(), 0, []int{1, 2, 3}, func(_ context.Context, in int) (int, error) {
		if in == 2 {
			return 0, boom
		}
		return in, nil
	})
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, 3, results[2].Value)
}

func TestMap_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results := Map(ctx, 1, make([]int, 10), func(ctx context.Context, in int) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(100 * time.Millisecond):
			return in, nil
		}
	})
	require.Len(t, results, 10)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.DeadlineExceeded)
	}
}

func TestMap_Empty(t *testing.T) {
	assert.Nil(t, Map[int, int](context.Background(), 4, nil, nil))
}

func TestPairwiseReduce(t *testing.T) {
	for n := 1; n <= 9; n++ {
		items := make([][]int, n)
		for i := range items {
			items[i] = []int{i}
		}

		var calls atomic.Int64
		got, err := PairwiseReduce(context.Background(), 4, items,
			func(_ context.Context, dst, src []int) ([]int, error) {
				calls.Add(1)
				return append(dst, src...), nil
			})
		require.NoError(t, err, "n=%d", n)
		want := make([]int, n)
		for i := range want {
			want[i] = i
		}
		assert.Equal(t, want, got, "n=%d: fold must keep item order", n)
		assert.Equal(t, int64(n-1), calls.Load(), "n=%d", n)
	}
}

func TestPairwiseReduce_Error(t *testing.T) {
	boom := errors.New("boom")
	_, err := PairwiseReduce(context.Background(), 2, []int{1, 2, 3, 4},
		func(_ context.Context, dst, src int) (int, error) {
			if src == 4 {
				return 0, boom
			}
			return dst + src, nil
		})
	assert.ErrorIs(t, err, boom)

	got, err := PairwiseReduce[int](context.Background(), 2, nil, nil)
	assert.NoError(t, err)
	assert.Zero(t, got)
}
