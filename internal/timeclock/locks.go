package timeclock

import "sync"

// keyedLocks serializes clock transitions per officer id. Locks are created
// on first use and kept for the officer's lifetime; the population is small
// (one per active officer) so no eviction is needed.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the officer's lock and returns the unlock func.
func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}
