package poller

import "sync"

// Guard admits at most one in-flight run per printer id.
type Guard struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{held: make(map[int64]struct{})}
}

// TryAcquire marks id as running. It returns false if id is already held.
func (g *Guard) TryAcquire(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[id]; ok {
		return false
	}
	g.held[id] = struct{}{}
	return true
}

// Release clears id. Releasing an id that is not held is a no-op.
func (g *Guard) Release(id int64) {
	g.mu.Lock()
	delete(g.held, id)
	g.mu.Unlock()
}

// Held reports whether id is running.
func (g *Guard) Held(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[id]
	return ok
}

// Len returns the number of running ids.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}
