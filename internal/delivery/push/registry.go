package push

import "sync"

// Registry maps a user to their live connection. A user has at most one
// registered connection: Set replaces any previous one, and the replaced
// connection stays open but no longer receives events.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Set registers c for userID and returns the connection it replaced, if any.
func (r *Registry) Set(userID string, c Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[userID]
	r.conns[userID] = c
	if prev == c {
		return nil
	}
	return prev
}

func (r *Registry) Get(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[userID]
	return c, ok
}

// Remove unregisters userID only while c is still its registered connection,
// so a stale session closing cannot evict a newer one.
func (r *Registry) Remove(userID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[userID]; ok && current == c {
		delete(r.conns, userID)
		return true
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
