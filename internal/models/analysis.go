package models

import "time"

// SlaAnalysis is the ticket-level SLA summary rendered by dashboards.
type SlaAnalysis struct {
	TicketID          string           `json:"ticket_id"`
	HasSLA            bool             `json:"has_sla"`
	PolicyName        string           `json:"policy_name,omitempty"`
	PolicyDescription string           `json:"policy_description,omitempty"`
	IsActive          bool             `json:"is_active"`
	EvaluationMethod  EvaluationMethod `json:"evaluation_method,omitempty"`
	CurrentStatus     string           `json:"current_status"`
	IsOverdue         bool             `json:"is_overdue"`
	IsBreached        bool             `json:"is_breached"`
	IsPaused          bool             `json:"is_paused"`

	ElapsedBusinessMinutes int64   `json:"elapsed_business_minutes"`
	ElapsedSystemMinutes   int64   `json:"elapsed_system_minutes"`
	PercentOfTarget        float64 `json:"percent_of_target"`
}

// TierStatus is the per-tier view inside SlaStatus.
type TierStatus struct {
	Status        string     `json:"status"` // none, pending, overdue, completed
	DueTime       *time.Time `json:"due_time,omitempty"`
	CompletedTime *time.Time `json:"completed_time,omitempty"`
}

// SlaStatus is the per-tier SLA detail rendered by dashboards.
type SlaStatus struct {
	TicketID   string              `json:"ticket_id"`
	Priority   string              `json:"priority,omitempty"`
	PolicyName string              `json:"policy_name,omitempty"`
	Tiers      map[Tier]TierStatus `json:"tiers"`
}
