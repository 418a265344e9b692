package rollback

import (
	"sort"
	"sync"
)

// pathLocks hands out one mutex per path. Entries are dropped once no
// caller holds or waits on them.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// lock acquires the locks for every path in a fixed order and returns the
// release function
func (l *pathLocks) lock(paths ...string) func() {
	sorted := dedupSorted(paths)

	held := make([]*pathLock, 0, len(sorted))
	for _, p := range sorted {
		l.mu.Lock()
		entry, ok := l.locks[p]
		if !ok {
			entry = &pathLock{}
			l.locks[p] = entry
		}
		entry.refs++
		l.mu.Unlock()

		entry.mu.Lock()
		held = append(held, entry)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()

			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, sorted[i])
			}
			l.mu.Unlock()
		}
	}
}

func (l *pathLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func dedupSorted(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Strings(out)

	n := 0
	for i, p := range out {
		if i > 0 && p == out[n-1] {
			continue
		}
		out[n] = p
		n++
	}
	return out[:n]
}
