package tracker

import (
	"context"
	"time"

	"github.com/opendesk-io/slaengine/internal/models"
	"github.com/opendesk-io/slaengine/internal/repository"
)

// Tier status strings rendered by the dashboard.
const (
	TierStatusNone      = "none"
	TierStatusPending   = "pending"
	TierStatusOverdue   = "overdue"
	TierStatusCompleted = "completed"
)

// GetStatus projects the latest tracker state into the read shapes the
// dashboard renders. Overdue is evaluated lazily against now, so reads never
// depend on a background sweep having run.
func (s *Service) GetStatus(ctx context.Context, ticketID string) (*models.SlaAnalysis, *models.SlaStatus, error) {
	analysis := &models.SlaAnalysis{TicketID: ticketID, CurrentStatus: "no_sla"}
	status := &models.SlaStatus{TicketID: ticketID, Tiers: make(map[models.Tier]models.TierStatus)}

	state, err := s.repo.Latest(ctx, ticketID)
	if err == repository.ErrNotFound {
		return analysis, status, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if !state.HasSLA {
		return analysis, status, nil
	}

	now := s.now()

	analysis.HasSLA = true
	analysis.PolicyName = state.PolicyName
	analysis.PolicyDescription = state.PolicyDesc
	analysis.EvaluationMethod = state.EvaluationMethod
	analysis.IsPaused = state.IsPaused
	analysis.IsBreached = state.AnyBreached()
	analysis.IsActive = !state.Resolved()

	status.PolicyName = state.PolicyName
	if state.Target != nil {
		status.Priority = state.Target.Priority
	}

	overdue := false
	for _, tier := range models.Tiers {
		ts, ok := state.TierStates[tier]
		if !ok || (ts.DueAt == nil && ts.CompletedAt == nil) {
			status.Tiers[tier] = models.TierStatus{Status: TierStatusNone}
			continue
		}
		tierStatus := models.TierStatus{DueTime: ts.DueAt, CompletedTime: ts.CompletedAt}
		switch {
		case ts.CompletedAt != nil:
			tierStatus.Status = TierStatusCompleted
		case ts.OverdueAt(now):
			tierStatus.Status = TierStatusOverdue
			overdue = true
		default:
			tierStatus.Status = TierStatusPending
		}
		status.Tiers[tier] = tierStatus
	}
	analysis.IsOverdue = overdue

	switch {
	case state.Resolved():
		analysis.CurrentStatus = "resolved"
	case state.IsPaused:
		analysis.CurrentStatus = "paused"
	case overdue:
		analysis.CurrentStatus = "overdue"
	default:
		analysis.CurrentStatus = "on_track"
	}

	if state.Target != nil {
		end := now
		if res, ok := state.TierStates[models.TierResolution]; ok && res.CompletedAt != nil {
			end = *res.CompletedAt
		}

		snap := s.catalog.Snapshot()
		engine, err := s.engineFor(snap, state.Target.Resolution)
		if err != nil {
			return nil, nil, err
		}
		business, err := s.elapsedCountable(engine, state, state.CreatedAt, end)
		if err != nil {
			return nil, nil, &ConfigurationError{Err: err}
		}
		analysis.ElapsedBusinessMinutes = business / 60
		analysis.ElapsedSystemMinutes = int64(end.Sub(state.CreatedAt) / time.Minute)
		if target := state.Target.Resolution.Seconds(); target > 0 {
			analysis.PercentOfTarget = float64(business) / float64(target) * 100
		}
	}

	return analysis, status, nil
}

// History returns all persisted state versions for a ticket, oldest first.
func (s *Service) History(ctx context.Context, ticketID string) ([]*models.TrackerState, error) {
	return s.repo.History(ctx, ticketID)
}

// Latest returns the newest state version for a ticket.
func (s *Service) Latest(ctx context.Context, ticketID string) (*models.TrackerState, error) {
	return s.repo.Latest(ctx, ticketID)
}
