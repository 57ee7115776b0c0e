package models

import (
	"time"
)

// Tier identifies one independently tracked deadline within a target.
type Tier string

const (
	TierFirstResponse Tier = "first_response"
	TierNextResponse  Tier = "next_response"
	TierResolution    Tier = "resolution"
)

// Tiers lists all tiers in evaluation order.
var Tiers = []Tier{TierFirstResponse, TierNextResponse, TierResolution}

// TierState tracks one deadline. Breached is sticky: once the due time
// passed before completion, it stays true even if the tier is later
// completed.
type TierState struct {
	DueAt       *time.Time `json:"due_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Breached    bool       `json:"breached"`
}

// Open reports whether the tier has a deadline that is not yet completed.
func (ts *TierState) Open() bool {
	return ts.DueAt != nil && ts.CompletedAt == nil
}

// OverdueAt reports whether the tier is currently past due. Evaluated lazily
// on read so status queries never depend on a background sweep.
func (ts *TierState) OverdueAt(now time.Time) bool {
	return ts.Open() && now.After(*ts.DueAt)
}

// PauseInterval is one span during which the SLA clock was stopped. End is
// nil while the pause is still open.
type PauseInterval struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// TrackerState is one immutable version of a ticket's SLA state. Transitions
// produce a new version; prior versions stay on record for audit.
type TrackerState struct {
	TicketID    string    `json:"ticket_id"`
	Version     string    `json:"version"`
	PrevVersion string    `json:"prev_version,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`

	HasSLA           bool             `json:"has_sla"`
	PolicyID         string           `json:"policy_id,omitempty"`
	PolicyName       string           `json:"policy_name,omitempty"`
	PolicyDesc       string           `json:"policy_description,omitempty"`
	EvaluationMethod EvaluationMethod `json:"evaluation_method,omitempty"`
	Target           *Target          `json:"target,omitempty"`

	CreatedAt      time.Time                `json:"created_at"`
	Status         string                   `json:"status"`
	TierStates     map[Tier]*TierState      `json:"tier_states"`
	IsPaused       bool                     `json:"is_paused"`
	PauseIntervals []PauseInterval          `json:"pause_intervals,omitempty"`
	// Anchor for the next-response clock: completion time of the last
	// response cycle. Nil until first response is recorded.
	NextResponseAnchor *time.Time `json:"next_response_anchor,omitempty"`
}

// Tier returns the state for a tier, creating it on first access.
func (s *TrackerState) Tier(t Tier) *TierState {
	if s.TierStates == nil {
		s.TierStates = make(map[Tier]*TierState)
	}
	ts, ok := s.TierStates[t]
	if !ok {
		ts = &TierState{}
		s.TierStates[t] = ts
	}
	return ts
}

// Clone returns a deep copy suitable for building the next version.
func (s *TrackerState) Clone() *TrackerState {
	c := *s
	c.TierStates = make(map[Tier]*TierState, len(s.TierStates))
	for tier, ts := range s.TierStates {
		cp := *ts
		if ts.DueAt != nil {
			due := *ts.DueAt
			cp.DueAt = &due
		}
		if ts.CompletedAt != nil {
			done := *ts.CompletedAt
			cp.CompletedAt = &done
		}
		c.TierStates[tier] = &cp
	}
	c.PauseIntervals = make([]PauseInterval, len(s.PauseIntervals))
	for i, p := range s.PauseIntervals {
		cp := p
		if p.End != nil {
			end := *p.End
			cp.End = &end
		}
		c.PauseIntervals[i] = cp
	}
	if s.Target != nil {
		t := *s.Target
		c.Target = &t
	}
	if s.NextResponseAnchor != nil {
		a := *s.NextResponseAnchor
		c.NextResponseAnchor = &a
	}
	return &c
}

// AnyBreached reports whether any tier has a sticky breach flag set.
func (s *TrackerState) AnyBreached() bool {
	for _, ts := range s.TierStates {
		if ts.Breached {
			return true
		}
	}
	return false
}

// Resolved reports whether the resolution tier has been completed.
func (s *TrackerState) Resolved() bool {
	if ts, ok := s.TierStates[TierResolution]; ok {
		return ts.CompletedAt != nil
	}
	return false
}
