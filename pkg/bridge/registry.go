package bridge

import "sync"

// Registry tracks the live bridge for each call. Handlers look sessions up by
// call ID when media streams arrive on a separate connection from the webhook
// that created them.
type Registry interface {
	Register(callID string, b *AudioBridge) error
	Lookup(callID string) (*AudioBridge, bool)
	Remove(callID string)
	Len() int
	Snapshot() []StatusSnapshot
}

type memoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*AudioBridge
}

// NewRegistry returns an in-memory registry safe for concurrent use.
func NewRegistry() Registry {
	return &memoryRegistry{sessions: make(map[string]*AudioBridge)}
}

func (r *memoryRegistry) Register(callID string, b *AudioBridge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[callID]; exists {
		return &DuplicateSessionError{CallID: callID}
	}
	r.sessions[callID] = b
	return nil
}

func (r *memoryRegistry) Lookup(callID string) (*AudioBridge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.sessions[callID]
	return b, ok
}

// Remove is idempotent, removing an unknown call is a no-op.
func (r *memoryRegistry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

func (r *memoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *memoryRegistry) Snapshot() []StatusSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StatusSnapshot, 0, len(r.sessions))
	for _, b := range r.sessions {
		out = append(out, b.Status())
	}
	return out
}
