package service

import "sync"

// visitorLocks serializes per-session mutation without a global lock:
// one mutex per visitor_id, so turns for distinct visitors never contend.
type visitorLocks struct {
	mu    sync.Mutex
	locks map[string]*visitorLock
}

type visitorLock struct {
	mu   sync.Mutex
	refs int
}

func newVisitorLocks() *visitorLocks {
	return &visitorLocks{locks: make(map[string]*visitorLock)}
}

// Lock acquires the per-visitor mutex and returns its unlock function.
// Entries are reference-counted and removed once the last holder releases,
// keeping the map bounded by the number of in-flight turns.
func (v *visitorLocks) Lock(visitorID string) func() {
	v.mu.Lock()
	l, ok := v.locks[visitorID]
	if !ok {
		l = &visitorLock{}
		v.locks[visitorID] = l
	}
	l.refs++
	v.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		v.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(v.locks, visitorID)
		}
		v.mu.Unlock()
	}
}
