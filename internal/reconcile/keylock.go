package reconcile

import (
	"sort"
	"sync"
)

// keyLocker hands out mutexes per string key. Entries are reference counted
// and dropped once no goroutine holds or waits on them.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*keyLock)}
}

// Lock acquires every key in sorted order and returns a func releasing them.
// Duplicate keys are acquired once.
func (l *keyLocker) Lock(keys ...string) (unlock func()) {
	keys = uniqueSorted(keys)

	held := make([]*keyLock, 0, len(keys))
	for _, k := range keys {
		l.mu.Lock()
		e, ok := l.locks[k]
		if !ok {
			e = &keyLock{}
			l.locks[k] = e
		}
		e.refs++
		l.mu.Unlock()

		e.mu.Lock()
		held = append(held, e)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
		}
		l.mu.Lock()
		for i, k := range keys {
			e := held[i]
			e.refs--
			if e.refs == 0 {
				delete(l.locks, k)
			}
		}
		l.mu.Unlock()
	}
}

// size reports the number of live lock entries.
func (l *keyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func uniqueSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
