package permcache

import "sync"

// keyLocks is an advisory per-key lock table. Acquisition is non-blocking:
// a contended key reports failure and the caller degrades (soft miss on
// reads, no-op on writes) instead of queuing.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*lockEntry)}
}

// tryAcquire attempts to take the lock for key without blocking. On success
// the returned release function must be called exactly once.
func (kl *keyLocks) tryAcquire(key string) (func(), bool) {
	kl.mu.Lock()
	entry, ok := kl.locks[key]
	if !ok {
		entry = &lockEntry{}
		kl.locks[key] = entry
	}
	entry.refs++
	kl.mu.Unlock()

	if !entry.mu.TryLock() {
		kl.release(key, entry)
		return nil, false
	}
	return func() {
		entry.mu.Unlock()
		kl.release(key, entry)
	}, true
}

func (kl *keyLocks) release(key string, entry *lockEntry) {
	kl.mu.Lock()
	entry.refs--
	if entry.refs <= 0 {
		delete(kl.locks, key)
	}
	kl.mu.Unlock()
}
