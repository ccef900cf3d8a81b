package flowlock_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/datopian/flowmanager/flowlock"
)

func TestLock_SerializesSameFlow(t *testing.T) {
	table := flowlock.NewTable()

	var (
		active int32
		maxSeen int32
		wg     sync.WaitGroup
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := table.Lock("flow-a")
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxSeen)
				if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}

	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most 1 goroutine inside the critical section at once, saw %d", maxSeen)
	}
}

func TestLock_DifferentFlowsRunConcurrently(t *testing.T) {
	table := flowlock.NewTable()

	unlockA := table.Lock("flow-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := table.Lock("flow-b")
		defer unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on flow-b blocked on an unrelated flow-a lock")
	}
}

func TestLock_EntryReclaimedAfterFullRelease(t *testing.T) {
	table := flowlock.NewTable()

	unlock := table.Lock("flow-a")
	unlock()

	done := make(chan struct{})
	go func() {
		unlock2 := table.Lock("flow-a")
		unlock2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-acquiring flow-a after full release deadlocked")
	}
}
