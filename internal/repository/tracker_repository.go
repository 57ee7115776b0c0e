// Package repository persists versioned per-ticket SLA tracker state.
// Writes append new versions; superseded state is never overwritten, so the
// audit history stays inspectable.
package repository

import (
	"context"
	"errors"

	"github.com/opendesk-io/slaengine/internal/models"
)

var (
	// ErrNotFound is returned when a ticket has no tracker state.
	ErrNotFound = errors.New("repository: tracker state not found")
	// ErrConcurrentModification is returned when a save races another
	// writer: the state's PrevVersion no longer matches the latest stored
	// version for the ticket.
	ErrConcurrentModification = errors.New("repository: concurrent tracker modification")
)

// TrackerRepository stores versioned tracker state per ticket.
type TrackerRepository interface {
	// Save appends a new state version. The state's PrevVersion must equal
	// the latest stored version for the ticket (empty for the first write)
	// or ErrConcurrentModification is returned.
	Save(ctx context.Context, state *models.TrackerState) error
	// Latest returns the newest state version for a ticket.
	Latest(ctx context.Context, ticketID string) (*models.TrackerState, error)
	// History returns all state versions for a ticket, oldest first.
	History(ctx context.Context, ticketID string) ([]*models.TrackerState, error)
	// OpenTicketIDs lists tickets whose latest state has an SLA and an
	// uncompleted resolution tier; these are the tickets the obligation
	// dispatch loop scans.
	OpenTicketIDs(ctx context.Context) ([]string, error)
}
