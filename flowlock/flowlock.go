// Package flowlock provides per-flow mutual exclusion for the status
// reducer (spec.md §5: "Required: per-flow mutual exclusion", §9:
// "implement as an in-process keyed mutex table").
package flowlock

import "sync"

// Table is a keyed mutex table: one lock per flow id, created on first use
// and removed again once no goroutine holds or waits on it.
type Table struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	refcount int
}

func NewTable() *Table {
	return &Table{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for flowID, creating it if necessary. The
// returned func releases it and, when no other goroutine holds or is
// waiting on it, removes the entry to bound memory use.
func (t *Table) Lock(flowID string) func() {
	t.mu.Lock()
	e, ok := t.locks[flowID]
	if !ok {
		e = &entry{}
		t.locks[flowID] = e
	}
	e.refcount++
	t.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		t.mu.Lock()
		e.refcount--
		if e.refcount == 0 {
			delete(t.locks, flowID)
		}
		t.mu.Unlock()
	}
}
