package sync

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestSpinlock(t *testing.T) {
	defer func(origYieldFn func()) { yieldFn = origYieldFn }(yieldFn)
	yieldFn = runtime.Gosched

	var (
		sl         Spinlock
		wg         sync.WaitGroup
		numWorkers = 10
	)

	sl.Acquire()

	if sl.TryToAcquire() != false {
		t.Error("expected TryToAcquire to return false when lock is held")
	}

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(worker int) {
			sl.Acquire()
			sl.Release()
			wg.Done()
		}(i)
	}

	<-time.After(100 * time.Millisecond)
	sl.Release()
	wg.Wait()
}

func TestQueuedSpinlockServesInOrder(t *testing.T) {
	defer func(origYieldFn func()) { yieldFn = origYieldFn }(yieldFn)
	yieldFn = runtime.Gosched

	var (
		ql    QueuedSpinlock
		order []int
		mu    sync.Mutex
		wg    sync.WaitGroup
	)

	const numWorkers = 5
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(worker int) {
			ticket := ql.Acquire()
			mu.Lock()
			order = append(order, int(ticket))
			mu.Unlock()
			ql.Release(ticket)
			wg.Done()
		}(i)
	}
	wg.Wait()

	if len(order) != numWorkers {
		t.Fatalf("expected %d workers to have run; got %d", numWorkers, len(order))
	}
	for i, ticket := range order {
		if ticket != i {
			t.Fatalf("expected ticket %d to be served in position %d; got ticket %d", i, i, ticket)
		}
	}
}

func TestSystemSpaceLockSerializesAccess(t *testing.T) {
	defer func(origYieldFn func()) { yieldFn = origYieldFn }(yieldFn)
	yieldFn = runtime.Gosched

	var counter int
	var wg sync.WaitGroup

	const numWorkers = 20
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			ticket := AcquireSystemSpace()
			counter++
			ReleaseSystemSpace(ticket)
			wg.Done()
		}()
	}
	wg.Wait()

	if counter != numWorkers {
		t.Fatalf("expected counter to reach %d; got %d", numWorkers, counter)
	}
}
