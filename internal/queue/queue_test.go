package queue

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := New("test")
	defer q.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Async(func() { got = append(got, i) })
	}
	q.Sync(func() {})

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSerialQueue_SyncObservesEarlierAsync(t *testing.T) {
	t.Parallel()

	q := New("test")
	defer q.Stop()

	var flag atomic.Bool
	q.Async(func() { flag.Store(true) })

	var seen bool
	ok := q.Sync(func() { seen = flag.Load() })
	require.True(t, ok)
	assert.True(t, seen)
}

func TestSerialQueue_StopDrainsPendingWork(t *testing.T) {
	t.Parallel()

	q := New("test")

	var count atomic.Int64
	for i := 0; i < 50; i++ {
		q.Async(func() {
			time.Sleep(time.Millisecond)
			count.Add(1)
		})
	}
	q.Stop()

	assert.Equal(t, int64(50), count.Load())
}

func TestSerialQueue_RejectsWorkAfterStop(t *testing.T) {
	t.Parallel()

	q := New("test")
	q.Stop()

	assert.False(t, q.Async(func() { t.Error("must not run") }))
	assert.False(t, q.Sync(func() { t.Error("must not run") }))
}

func TestSerialQueue_StopIdempotent(t *testing.T) {
	t.Parallel()

	q := New("test")
	q.Stop()
	q.Stop()
	q.Stop()
}

func TestQuiesce_FiresAfterPendingWork(t *testing.T) {
	t.Parallel()

	q := New("test")
	defer q.Stop()

	var done atomic.Bool
	q.Async(func() { time.Sleep(10 * time.Millisecond) })
	Await(q.Quiesce())
	q.Sync(func() { done.Store(true) })
	assert.True(t, done.Load())
}

func TestQuiesce_StoppedLaneFiresImmediately(t *testing.T) {
	t.Parallel()

	q := New("test")
	q.Stop()

	fired := make(chan struct{})
	q.Quiesce()(func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("barrier did not fire on stopped lane")
	}
}

func TestSequence_Order(t *testing.T) {
	t.Parallel()

	a := New("a")
	b := New("b")
	defer a.Stop()
	defer b.Stop()

	var order []string
	a.Async(func() {
		time.Sleep(20 * time.Millisecond)
		order = append(order, "a-work")
	})

	seq := Sequence(
		func(done func()) {
			a.Quiesce()(func() {
				order = append(order, "a-quiet")
				done()
			})
		},
		func(done func()) {
			b.Async(func() { order = append(order, "b-work") })
			b.Quiesce()(done)
		},
	)
	Await(seq)

	require.Equal(t, []string{"a-work", "a-quiet", "b-work"}, order)
}

func TestSequence_Empty(t *testing.T) {
	t.Parallel()
	Await(Sequence())
}

func TestGroup_AwaitsAll(t *testing.T) {
	t.Parallel()

	var count atomic.Int64
	lanes := make([]*SerialQueue, 5)
	barriers := make([]Barrier, 5)
	for i := range lanes {
		lanes[i] = New("g")
		lanes[i].Async(func() {
			time.Sleep(5 * time.Millisecond)
			count.Add(1)
		})
		barriers[i] = lanes[i].Quiesce()
	}
	defer func() {
		for _, l := range lanes {
			l.Stop()
		}
	}()

	Await(Group(barriers...))
	assert.Equal(t, int64(5), count.Load())
}

func TestGroup_Empty(t *testing.T) {
	t.Parallel()
	Await(Group())
}

func TestImmediate(t *testing.T) {
	t.Parallel()
	Await(Immediate())
}
