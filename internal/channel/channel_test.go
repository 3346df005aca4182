package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callpath-core/pkg/arena"
	"github.com/callpath-core/pkg/cct"
	apperrors "github.com/callpath-core/pkg/errors"
	"github.com/callpath-core/pkg/lockfree"
)

type item struct {
	lockfree.Link[item]
	v int
}

func TestItemAllocator_RecyclesBeforeArena(t *testing.T) {
	var ch lockfree.Bichannel[item, *item]
	a := NewItemAllocator(&ch, arena.New[item](4, 0))

	first := a.Alloc()
	second := a.Alloc()
	require.NotNil(t, first)
	require.NotSame(t, first, second)
	assert.Equal(t, int64(2), a.Fresh())

	// Consumer frees; producer must get the freed items back before the
	// arena is touched again.
	a.Free(first)
	a.Free(second)
	got := []*item{a.Alloc(), a.Alloc()}
	assert.ElementsMatch(t, []*item{first, second}, got)
	assert.Equal(t, int64(2), a.Recycled())
	assert.Equal(t, int64(2), a.Fresh())

	third := a.Alloc()
	for _, g := range got {
		assert.NotSame(t, g, third)
	}
	assert.Equal(t, int64(3), a.Fresh())
}

func TestItemAllocator_ExhaustionIsFatal(t *testing.T) {
	var ch lockfree.Bichannel[item, *item]
	a := NewItemAllocator(&ch, arena.New[item](1, 1))
	a.Alloc()

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.IsAssertionFailure(err))
	}()
	a.Alloc()
}

func TestCorrelationChannel_ConsumeInProductionOrder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	notified := 0
	c := NewCorrelationChannel("host-0", Options{SlabSize: 2, Metrics: m, Notify: func() { notified++ }})

	root := cct.NewRoot("r")
	for i := uint64(1); i <= 5; i++ {
		c.Produce(i, root, int64(i*10))
	}
	assert.True(t, c.Pending())
	assert.Equal(t, 5, notified)

	var ids []uint64
	n := c.Consume(func(r *CorrelationRecord) {
		assert.Same(t, root, r.Node)
		assert.Equal(t, int64(r.HostCorrelationID*10), r.Timestamp)
		ids = append(ids, r.HostCorrelationID)
	})
	assert.Equal(t, 5, n)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, ids)
	assert.False(t, c.Pending())
	assert.Equal(t, 0, c.Consume(func(*CorrelationRecord) { t.Fatal("unexpected record") }))

	// A second round reuses the freed records.
	for i := uint64(6); i <= 8; i++ {
		c.Produce(i, nil, 0)
	}
	ids = ids[:0]
	c.Consume(func(r *CorrelationRecord) { ids = append(ids, r.HostCorrelationID) })
	assert.Equal(t, []uint64{6, 7, 8}, ids)

	st := c.Stats()
	assert.Equal(t, "host-0", st.Name)
	assert.Equal(t, int64(8), st.Produced)
	assert.Equal(t, int64(8), st.Consumed)
	assert.Equal(t, int64(5), st.Fresh)
	assert.Equal(t, int64(3), st.Recycled)

	assert.Equal(t, 8.0, testutil.ToFloat64(m.Produced.WithLabelValues("host-0")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.Consumed.WithLabelValues("host-0")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Allocated.WithLabelValues("host-0", "recycled")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Allocated.WithLabelValues("host-0", "arena")))
}

func TestActivityChannel_ConcurrentProducerAndConsumer(t *testing.T) {
	const total = 20000
	c := NewActivityChannel("device-0", Options{SlabSize: 64})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= total; i++ {
			c.Produce(Activity{Kind: ActivityKernel, CorrelationID: uint64(i), Start: 0, End: int64(i)})
		}
	}()

	var seen []uint64
	deadline := time.Now().Add(10 * time.Second)
	for len(seen) < total && time.Now().Before(deadline) {
		c.Consume(func(r *ActivityRecord) {
			seen = append(seen, r.CorrelationID)
			assert.Equal(t, int64(r.CorrelationID), r.Duration())
		})
	}
	wg.Wait()
	c.Consume(func(r *ActivityRecord) { seen = append(seen, r.CorrelationID) })

	require.Len(t, seen, total)
	for i, id := range seen {
		require.Equal(t, uint64(i+1), id)
	}
	st := c.Stats()
	assert.Equal(t, int64(total), st.Fresh+st.Recycled)
}

func TestActivityKind(t *testing.T) {
	for k := ActivityUnknown; k <= ActivitySync; k++ {
		got, ok := ParseActivityKind(k.String())
		assert.True(t, ok)
		assert.Equal(t, k, got)
	}
	_, ok := ParseActivityKind("dma")
	assert.False(t, ok)
	assert.Equal(t, "ActivityKind(9)", ActivityKind(9).String())

	a := Activity{Start: 10, End: 4}
	assert.Equal(t, int64(0), a.Duration())
}

func TestMonitor_DrainsRoundRobin(t *testing.T) {
	mon := NewMonitor(nil, NewMetrics(nil), nil)
	var order []string
	mon.Register("a", func() int { order = append(order, "a"); return 1 })
	mon.Register("b", func() int { order = append(order, "b"); return 2 })

	ctx := context.Background()
	assert.Equal(t, 3, mon.DrainAll(ctx))
	assert.Equal(t, 3, mon.DrainAll(ctx))
	assert.Equal(t, []string{"a", "b", "b", "a"}, order)

	st := mon.Stats()
	assert.Equal(t, 2, st.Channels)
	assert.Equal(t, int64(2), st.Passes)
	assert.Equal(t, int64(6), st.Handled)
	assert.False(t, st.Running)
}

func TestMonitor_StopPerformsFinalDrain(t *testing.T) {
	mon := NewMonitor(&MonitorConfig{PollInterval: time.Hour}, nil, nil)
	c := NewCorrelationChannel("host", Options{Notify: mon.Notify})

	var mu sync.Mutex
	var got []uint64
	mon.Register(c.Name(), func() int {
		return c.Consume(func(r *CorrelationRecord) {
			mu.Lock()
			got = append(got, r.HostCorrelationID)
			mu.Unlock()
		})
	})

	require.NoError(t, mon.Start(context.Background()))
	assert.Error(t, mon.Start(context.Background()))

	for i := uint64(1); i <= 100; i++ {
		c.Produce(i, nil, 0)
	}
	mon.Stop()
	mon.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	assert.Equal(t, uint64(1), got[0])
	assert.Equal(t, uint64(100), got[99])
	assert.False(t, mon.Stats().Running)
	assert.ErrorIs(t, mon.Start(context.Background()), apperrors.ErrClosed)
}

func TestMonitor_ContextCancel(t *testing.T) {
	mon := NewMonitor(&MonitorConfig{PollInterval: time.Millisecond}, nil, nil)
	c := NewActivityChannel("dev", Options{})
	handled := 0
	mon.Register(c.Name(), func() int {
		return c.Consume(func(*ActivityRecord) { handled++ })
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, mon.Start(ctx))
	c.Produce(Activity{CorrelationID: 1})
	cancel()

	select {
	case <-mon.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not exit")
	}
	assert.Equal(t, 1, handled)
}

func TestMonitor_StopBeforeStart(t *testing.T) {
	mon := NewMonitor(nil, nil, nil)
	mon.Stop()
	select {
	case <-mon.Done():
	default:
		t.Fatal("done not closed")
	}
}
