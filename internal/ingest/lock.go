package ingest

import "sync"

// lockTable hands out per-key mutexes. The orchestrator holds a file name's
// lock from the duplicate check through persistence, so two concurrent
// uploads of the same name cannot both pass the check before either writes.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*fileLock
}

type fileLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*fileLock)}
}

// Acquire blocks until the key's lock is held and returns the release func.
func (t *lockTable) Acquire(key string) func() {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &fileLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}
