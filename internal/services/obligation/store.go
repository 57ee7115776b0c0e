package obligation

import (
	"context"
	"sync"
)

// MemoryMarkerStore is a process-local MarkerStore for tests and single
// instance deployments.
type MemoryMarkerStore struct {
	mu    sync.Mutex
	fired map[string]bool
}

// NewMemoryMarkerStore creates an empty marker store.
func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{fired: make(map[string]bool)}
}

// MarkFired flips the marker and reports whether this call did it first.
// Safe to call repeatedly for the same id.
func (s *MemoryMarkerStore) MarkFired(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired[id] {
		return false, nil
	}
	s.fired[id] = true
	return true, nil
}

// Fired reports whether the obligation id has been marked.
func (s *MemoryMarkerStore) Fired(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired[id], nil
}
