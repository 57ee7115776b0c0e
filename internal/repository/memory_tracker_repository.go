package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/opendesk-io/slaengine/internal/models"
)

// MemoryTrackerRepository is an in-memory TrackerRepository used by tests
// and DB-less deployments.
type MemoryTrackerRepository struct {
	mu       sync.RWMutex
	versions map[string][]*models.TrackerState
}

// NewMemoryTrackerRepository creates an empty in-memory repository.
func NewMemoryTrackerRepository() *MemoryTrackerRepository {
	return &MemoryTrackerRepository{
		versions: make(map[string][]*models.TrackerState),
	}
}

// Save appends a new state version after a version check.
func (r *MemoryTrackerRepository) Save(ctx context.Context, state *models.TrackerState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.versions[state.TicketID]
	latest := ""
	if len(history) > 0 {
		latest = history[len(history)-1].Version
	}
	if state.PrevVersion != latest {
		return ErrConcurrentModification
	}

	r.versions[state.TicketID] = append(history, state.Clone())
	return nil
}

// Latest returns a copy of the newest state version.
func (r *MemoryTrackerRepository) Latest(ctx context.Context, ticketID string) (*models.TrackerState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.versions[ticketID]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	return history[len(history)-1].Clone(), nil
}

// History returns copies of all versions, oldest first.
func (r *MemoryTrackerRepository) History(ctx context.Context, ticketID string) ([]*models.TrackerState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.versions[ticketID]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	out := make([]*models.TrackerState, len(history))
	for i, s := range history {
		out[i] = s.Clone()
	}
	return out, nil
}

// OpenTicketIDs lists tickets with an SLA and an open resolution tier.
func (r *MemoryTrackerRepository) OpenTicketIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for ticketID, history := range r.versions {
		latest := history[len(history)-1]
		if latest.HasSLA && !latest.Resolved() {
			ids = append(ids, ticketID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
