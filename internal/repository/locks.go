package repository

import "sync"

// refLocks serializes writes per cadastral reference so concurrent intakes of
// the same document merge deterministically instead of racing the unique
// index. Locks are never evicted; the key space is bounded by the number of
// distinct references seen by the process.
type refLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newRefLocks() *refLocks {
	return &refLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock function.
func (r *refLocks) lock(key string) func() {
	r.mu.Lock()
	m, ok := r.locks[key]
	if !ok {
		m = &sync.Mutex{}
		r.locks[key] = m
	}
	r.mu.Unlock()

	m.Lock()
	return m.Unlock
}
