package chat

import (
	"sync"

	"github.com/samber/lo"
)

// Registry tracks the currently open connections.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

// Add registers p. Registering the same connection twice is an error.
func (r *Registry) Add(p *Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[p.id]; ok {
		return ErrDuplicateConnection
	}
	r.peers[p.id] = p
	return nil
}

// Remove unregisters p and reports whether it was registered.
func (r *Registry) Remove(p *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[p.id]; !ok {
		return false
	}
	delete(r.peers, p.id)
	return true
}

// ForEach calls visit for every connection registered when ForEach was
// called. visit runs without the registry lock held, so it may add or
// remove connections.
func (r *Registry) ForEach(visit func(*Peer)) {
	r.mu.RLock()
	snapshot := lo.Values(r.peers)
	r.mu.RUnlock()

	for _, p := range snapshot {
		visit(p)
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
