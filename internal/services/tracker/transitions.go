package tracker

import (
	"time"

	"github.com/opendesk-io/slaengine/internal/metrics"
	"github.com/opendesk-io/slaengine/internal/models"
	"github.com/opendesk-io/slaengine/internal/services/clock"
	"github.com/opendesk-io/slaengine/internal/services/policy"
)

// tierDuration maps a tier to its configured duration in the target.
func tierDuration(target *models.Target, tier models.Tier) (models.TargetDuration, bool) {
	switch tier {
	case models.TierFirstResponse:
		return target.FirstResponse, true
	case models.TierResolution:
		return target.Resolution, true
	case models.TierNextResponse:
		if target.NextResponse != nil {
			return *target.NextResponse, true
		}
	}
	return models.TargetDuration{}, false
}

// tierAnchor is the instant a tier's clock started counting from.
func tierAnchor(state *models.TrackerState, tier models.Tier) time.Time {
	if tier == models.TierNextResponse && state.NextResponseAnchor != nil {
		return *state.NextResponseAnchor
	}
	return state.CreatedAt
}

// elapsedCountable measures countable seconds from anchor to now, excluding
// any portion spent paused.
func (s *Service) elapsedCountable(e *clock.Engine, state *models.TrackerState, anchor, now time.Time) (int64, error) {
	total, err := e.CountableSeconds(anchor, now)
	if err != nil {
		return 0, err
	}
	for _, p := range state.PauseIntervals {
		from := p.Start
		if from.Before(anchor) {
			from = anchor
		}
		to := now
		if p.End != nil && p.End.Before(now) {
			to = *p.End
		}
		if to.After(from) {
			paused, err := e.CountableSeconds(from, to)
			if err != nil {
				return 0, err
			}
			total -= paused
		}
	}
	if total < 0 {
		total = 0
	}
	return total, nil
}

// reResolve re-runs policy matching against the event's attributes and, when
// the winning policy or target changed, restarts the remaining duration of
// every open tier under the new target: remaining = new full duration minus
// countable time already elapsed, floored at zero, added forward from now.
func (s *Service) reResolve(snap *policy.Snapshot, state *models.TrackerState, ev models.TicketEvent) error {
	match, ok := snap.Resolve(ev.Attributes)
	if !ok {
		if state.HasSLA {
			metrics.NoSLATotal.Inc()
			state.HasSLA = false
			state.PolicyID = ""
			state.PolicyName = ""
			state.PolicyDesc = ""
			state.Target = nil
		}
		return nil
	}

	same := state.HasSLA &&
		state.PolicyID == match.Policy.ID &&
		state.Target != nil &&
		state.Target.Priority == match.Target.Priority
	if same {
		return nil
	}

	s.adoptMatch(state, match)
	now := ev.Timestamp
	fr := state.Tier(models.TierFirstResponse)

	for _, tier := range models.Tiers {
		d, ok := tierDuration(state.Target, tier)
		if !ok {
			// The new target does not track this tier.
			if ts, exists := state.TierStates[tier]; exists && ts.Open() {
				ts.DueAt = nil
			}
			continue
		}

		anchor := tierAnchor(state, tier)
		if tier == models.TierNextResponse {
			// The next-response clock only runs once first response is done.
			if fr.CompletedAt == nil {
				continue
			}
			if state.NextResponseAnchor == nil {
				anchor = *fr.CompletedAt
				a := anchor
				state.NextResponseAnchor = &a
			}
		}

		ts := state.Tier(tier)
		if ts.CompletedAt != nil {
			continue
		}

		engine, err := s.engineFor(snap, d)
		if err != nil {
			return err
		}
		elapsed, err := s.elapsedCountable(engine, state, anchor, now)
		if err != nil {
			return &ConfigurationError{Err: err}
		}
		remaining := d.Seconds() - elapsed
		if remaining < 0 {
			remaining = 0
		}
		due, err := engine.AddCountable(now, time.Duration(remaining)*time.Second)
		if err != nil {
			return &ConfigurationError{Err: err}
		}
		ts.DueAt = &due
	}

	return nil
}

// handleStatusChange manages the running/paused transition. Entering a hold
// status opens a pause interval and freezes open due times; leaving it
// closes the interval and shifts every open due time forward by the
// countable seconds the pause consumed.
func (s *Service) handleStatusChange(snap *policy.Snapshot, state *models.TrackerState, ev models.TicketEvent) error {
	state.Status = ev.Status
	hold := s.holdStatuses[ev.Status]
	now := ev.Timestamp

	switch {
	case hold && !state.IsPaused:
		state.IsPaused = true
		state.PauseIntervals = append(state.PauseIntervals, models.PauseInterval{Start: now})

	case !hold && state.IsPaused:
		state.IsPaused = false
		last := &state.PauseIntervals[len(state.PauseIntervals)-1]
		end := now
		last.End = &end

		if !state.HasSLA || state.Target == nil {
			return nil
		}
		for _, tier := range models.Tiers {
			ts, ok := state.TierStates[tier]
			if !ok || !ts.Open() {
				continue
			}
			d, ok := tierDuration(state.Target, tier)
			if !ok {
				continue
			}
			engine, err := s.engineFor(snap, d)
			if err != nil {
				return err
			}
			paused, err := engine.CountableSeconds(last.Start, now)
			if err != nil {
				return &ConfigurationError{Err: err}
			}
			if paused == 0 {
				continue
			}
			due, err := engine.AddCountable(*ts.DueAt, time.Duration(paused)*time.Second)
			if err != nil {
				return &ConfigurationError{Err: err}
			}
			ts.DueAt = &due
		}
	}

	return nil
}

// handleResponse records a first response or an agent reply. The first
// response completes its tier and starts the next-response clock; each
// later reply closes the current next-response cycle and opens a fresh one
// anchored at the reply time.
func (s *Service) handleResponse(snap *policy.Snapshot, state *models.TrackerState, ev models.TicketEvent) (bool, error) {
	now := ev.Timestamp
	fr := state.Tier(models.TierFirstResponse)

	if fr.CompletedAt == nil {
		markBreach(fr, models.TierFirstResponse, now)
		done := now
		fr.CompletedAt = &done

		if state.Target.NextResponse != nil {
			due, err := s.addCountable(snap, *state.Target.NextResponse, now)
			if err != nil {
				return false, err
			}
			nr := state.Tier(models.TierNextResponse)
			nr.DueAt = &due
			anchor := now
			state.NextResponseAnchor = &anchor
		}
		return true, nil
	}

	if ev.Type == models.EventFirstResponseRecorded {
		// First response is immutable once recorded.
		return false, nil
	}

	if state.Target.NextResponse == nil {
		return false, nil
	}

	// Close the running next-response cycle and start the next. A cycle
	// that completed late keeps the sticky breach flag.
	nr := state.Tier(models.TierNextResponse)
	markBreach(nr, models.TierNextResponse, now)
	due, err := s.addCountable(snap, *state.Target.NextResponse, now)
	if err != nil {
		return false, err
	}
	nr.DueAt = &due
	nr.CompletedAt = nil
	anchor := now
	state.NextResponseAnchor = &anchor
	return true, nil
}

// handleResolved completes the resolution tier. Completion is immutable;
// resolving an already-resolved ticket is a no-op.
func (s *Service) handleResolved(state *models.TrackerState, ev models.TicketEvent) bool {
	res := state.Tier(models.TierResolution)
	if res.CompletedAt != nil {
		return false
	}
	now := ev.Timestamp
	markBreach(res, models.TierResolution, now)
	done := now
	res.CompletedAt = &done
	if ev.Status != "" {
		state.Status = ev.Status
	} else {
		state.Status = "resolved"
	}
	return true
}

// handleReopened starts a fresh resolution cycle when a resolved ticket is
// reopened. The completed cycle, breach facts included, stays on record in
// the prior state versions.
func (s *Service) handleReopened(snap *policy.Snapshot, state *models.TrackerState, ev models.TicketEvent) (bool, error) {
	res := state.Tier(models.TierResolution)
	if res.CompletedAt == nil {
		return false, nil
	}
	due, err := s.addCountable(snap, state.Target.Resolution, ev.Timestamp)
	if err != nil {
		return false, err
	}
	res.DueAt = &due
	res.CompletedAt = nil
	res.Breached = false
	if ev.Status != "" {
		state.Status = ev.Status
	} else {
		state.Status = "open"
	}
	return true, nil
}
