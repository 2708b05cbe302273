package queue

import "sync/atomic"

// A Barrier awaits quiescence of some unit of background work. Invoking the
// barrier schedules done to run once every piece of work submitted before the
// barrier was installed has completed.
//
// Barriers compose: Sequence awaits its parts one after another, Group awaits
// them concurrently. Both return plain Barriers, so composites nest freely.
type Barrier func(done func())

// Quiesce returns a barrier over this lane: it fires after everything
// enqueued before the barrier has run. On a stopped lane the barrier fires
// immediately (a stopped lane is quiescent by definition).
func (q *SerialQueue) Quiesce() Barrier {
	return func(done func()) {
		if !q.Async(done) {
			done()
		}
	}
}

// Immediate is the neutral barrier: it fires at once.
func Immediate() Barrier {
	return func(done func()) { done() }
}

// Sequence composes barriers left to right: each barrier is installed only
// after the previous one has fired.
func Sequence(barriers ...Barrier) Barrier {
	return func(done func()) {
		var next func(i int)
		next = func(i int) {
			if i == len(barriers) {
				done()
				return
			}
			barriers[i](func() { next(i + 1) })
		}
		next(0)
	}
}

// Group composes barriers concurrently: all are installed at once and the
// group fires after the last one.
func Group(barriers ...Barrier) Barrier {
	return func(done func()) {
		if len(barriers) == 0 {
			done()
			return
		}
		var remaining atomic.Int64
		remaining.Store(int64(len(barriers)))
		for _, b := range barriers {
			b(func() {
				if remaining.Add(-1) == 0 {
					done()
				}
			})
		}
	}
}

// Await blocks the calling goroutine until the barrier fires. Must not be
// called from any lane the barrier awaits.
func Await(b Barrier) {
	ch := make(chan struct{})
	b(func() { close(ch) })
	<-ch
}
