package models

import (
	"fmt"
	"time"
)

// ObligationKind distinguishes reminders (fire before due) from escalations
// (fire after due).
type ObligationKind string

const (
	KindReminder   ObligationKind = "reminder"
	KindEscalation ObligationKind = "escalation"
)

// Obligation is a scheduled reminder or escalation firing tied to a tier's
// due time. Identity is the stable tuple including the due time, so
// recomputation never duplicates a fired obligation; a shifted due time
// yields a new identity that is eligible again.
type Obligation struct {
	ID              string         `json:"id"`
	TicketID        string         `json:"ticket_id"`
	Tier            Tier           `json:"tier"`
	Kind            ObligationKind `json:"kind"`
	Level           int            `json:"level,omitempty"`
	ScheduledFireAt time.Time      `json:"scheduled_fire_at"`
	Fired           bool           `json:"fired"`
}

// ObligationID builds the deterministic identity for an obligation.
func ObligationID(ticketID string, tier Tier, kind ObligationKind, level int, dueAt time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", ticketID, tier, kind, level, dueAt.Unix())
}
