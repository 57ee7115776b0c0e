package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/opendesk-io/slaengine/internal/models"
)

// SQLTrackerRepository stores tracker versions in the sla_tracker_state
// table as an append-only log. The full state is serialized as JSON; the
// ticket id, version chain, and open/resolved flags are lifted into columns
// for querying.
type SQLTrackerRepository struct {
	db *sqlx.DB
}

// NewSQLTrackerRepository wraps a connected database handle.
func NewSQLTrackerRepository(db *sqlx.DB) *SQLTrackerRepository {
	return &SQLTrackerRepository{db: db}
}

type trackerRow struct {
	TicketID    string `db:"ticket_id"`
	Version     string `db:"version"`
	PrevVersion string `db:"prev_version"`
	State       []byte `db:"state"`
}

// Save appends a state version inside a transaction, checking the version
// chain against the latest stored row.
func (r *SQLTrackerRepository) Save(ctx context.Context, state *models.TrackerState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode tracker state: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var latest string
	query := tx.Rebind(`SELECT version FROM sla_tracker_state WHERE ticket_id = ? ORDER BY id DESC LIMIT 1`)
	err = tx.GetContext(ctx, &latest, query, state.TicketID)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if state.PrevVersion != latest {
		return ErrConcurrentModification
	}

	insert := tx.Rebind(`
		INSERT INTO sla_tracker_state
			(ticket_id, version, prev_version, has_sla, resolved, updated_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = tx.ExecContext(ctx, insert,
		state.TicketID, state.Version, state.PrevVersion,
		state.HasSLA, state.Resolved(), state.UpdatedAt, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tracker state: %w", err)
	}

	return tx.Commit()
}

// Latest returns the newest state version for a ticket.
func (r *SQLTrackerRepository) Latest(ctx context.Context, ticketID string) (*models.TrackerState, error) {
	var row trackerRow
	query := r.db.Rebind(`
		SELECT ticket_id, version, prev_version, state
		FROM sla_tracker_state WHERE ticket_id = ?
		ORDER BY id DESC LIMIT 1`)
	err := r.db.GetContext(ctx, &row, query, ticketID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeState(row.State)
}

// History returns all state versions for a ticket, oldest first.
func (r *SQLTrackerRepository) History(ctx context.Context, ticketID string) ([]*models.TrackerState, error) {
	var rows []trackerRow
	query := r.db.Rebind(`
		SELECT ticket_id, version, prev_version, state
		FROM sla_tracker_state WHERE ticket_id = ?
		ORDER BY id ASC`)
	if err := r.db.SelectContext(ctx, &rows, query, ticketID); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	out := make([]*models.TrackerState, 0, len(rows))
	for _, row := range rows {
		state, err := decodeState(row.State)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}

// OpenTicketIDs lists tickets whose latest version has an SLA and is not
// yet resolved.
func (r *SQLTrackerRepository) OpenTicketIDs(ctx context.Context) ([]string, error) {
	var ids []string
	query := `
		SELECT s.ticket_id
		FROM sla_tracker_state s
		JOIN (
			SELECT ticket_id, MAX(id) AS max_id
			FROM sla_tracker_state GROUP BY ticket_id
		) latest ON s.id = latest.max_id
		WHERE s.has_sla AND NOT s.resolved
		ORDER BY s.ticket_id`
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, err
	}
	return ids, nil
}

func decodeState(payload []byte) (*models.TrackerState, error) {
	var state models.TrackerState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("failed to decode tracker state: %w", err)
	}
	return &state, nil
}
