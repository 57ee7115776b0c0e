// Package obligation derives reminder and escalation firings from tracker
// state and guarantees each one fires at most once, even when deadlines are
// recomputed.
package obligation

import (
	"context"
	"time"

	"github.com/opendesk-io/slaengine/internal/models"
)

// Derive computes every obligation implied by the current tracker state:
// reminders fire a configured offset before a tier's due time, escalations a
// configured offset after it. Only enabled, uncompleted tiers produce
// obligations. Identities are deterministic, so re-running Derive on
// unchanged state yields the same set.
func Derive(state *models.TrackerState) []models.Obligation {
	if state == nil || !state.HasSLA || state.Target == nil {
		return nil
	}

	var out []models.Obligation
	for _, tier := range models.Tiers {
		ts, ok := state.TierStates[tier]
		if !ok || !ts.Open() {
			continue
		}
		due := *ts.DueAt

		if state.Target.ReminderEnabled {
			for i, r := range state.Target.Reminders {
				fireAt := due.Add(-time.Duration(r.Offset.Seconds()) * time.Second)
				out = append(out, models.Obligation{
					ID:              models.ObligationID(state.TicketID, tier, models.KindReminder, i, due),
					TicketID:        state.TicketID,
					Tier:            tier,
					Kind:            models.KindReminder,
					ScheduledFireAt: fireAt,
				})
			}
		}
		if state.Target.EscalationEnabled {
			for _, e := range state.Target.Escalations {
				fireAt := due.Add(time.Duration(e.Offset.Seconds()) * time.Second)
				out = append(out, models.Obligation{
					ID:              models.ObligationID(state.TicketID, tier, models.KindEscalation, e.Level, due),
					TicketID:        state.TicketID,
					Tier:            tier,
					Kind:            models.KindEscalation,
					Level:           e.Level,
					ScheduledFireAt: fireAt,
				})
			}
		}
	}
	return out
}

// MarkerStore records which obligation identities have fired. MarkFired is a
// compare-and-set: it reports whether this call performed the false-to-true
// transition, so concurrent dispatchers cannot double-dispatch.
type MarkerStore interface {
	MarkFired(ctx context.Context, id string) (bool, error)
	Fired(ctx context.Context, id string) (bool, error)
}

// DueNow filters obligations whose scheduled time has arrived and whose
// identity has not been marked fired. It never returns an already-fired
// obligation, regardless of how often derivation re-ran.
func DueNow(ctx context.Context, store MarkerStore, obligations []models.Obligation, now time.Time) ([]models.Obligation, error) {
	var due []models.Obligation
	for _, o := range obligations {
		if o.ScheduledFireAt.After(now) {
			continue
		}
		fired, err := store.Fired(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if fired {
			continue
		}
		due = append(due, o)
	}
	return due, nil
}
