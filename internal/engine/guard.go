package engine

import "sync"

// KeyGuard provides non-blocking per-key mutual exclusion. At most one
// evaluation cycle per trigger key proceeds past matching at a time; a
// tick that finds its key held is dropped, and the next tick re-evaluates
// against the latest price.
type KeyGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewKeyGuard() *KeyGuard {
	return &KeyGuard{held: make(map[string]struct{})}
}

// TryAcquire takes the lock for a key without blocking. Returns false if
// another evaluation for that key is in flight.
func (g *KeyGuard) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, taken := g.held[key]; taken {
		return false
	}
	g.held[key] = struct{}{}
	return true
}

// Release frees the lock for a key. Releasing an unheld key is a no-op.
func (g *KeyGuard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
}
