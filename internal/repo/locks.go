package repo

import "sync"

// GroupLocks hands out one mutex per group id. Command handlers and the
// evaluation engine's persist step share it so a listing, add or remove
// never interleaves with a bulk overwrite of the same group.
type GroupLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGroupLocks() *GroupLocks {
	return &GroupLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until the group's mutex is held and returns its release func.
func (g *GroupLocks) Lock(group string) (unlock func()) {
	g.mu.Lock()
	m, ok := g.locks[group]
	if !ok {
		m = &sync.Mutex{}
		g.locks[group] = m
	}
	g.mu.Unlock()

	m.Lock()
	return m.Unlock
}
