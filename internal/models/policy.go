package models

import (
	"fmt"
	"strconv"
	"strings"
)

// EvaluationMethod controls when policy matching is re-run for a ticket.
type EvaluationMethod string

const (
	EvaluateOnCreation   EvaluationMethod = "on_ticket_creation"
	EvaluateOnEachUpdate EvaluationMethod = "on_each_update"
)

// Operator is a closed set of condition comparison operators.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
)

// Condition compares one ticket attribute against a configured value.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    string   `json:"value" yaml:"value"`
}

// Matches evaluates the condition against an attribute value. Comparison is
// numeric when both operands parse as numbers, string otherwise.
func (c Condition) Matches(attr string) bool {
	switch c.Operator {
	case OpEquals:
		return compare(attr, c.Value) == 0
	case OpNotEquals:
		return compare(attr, c.Value) != 0
	case OpContains:
		return strings.Contains(attr, c.Value)
	case OpGreaterThan:
		return compare(attr, c.Value) > 0
	case OpLessThan:
		return compare(attr, c.Value) < 0
	case OpIn:
		for _, v := range strings.Split(c.Value, ",") {
			if attr == strings.TrimSpace(v) {
				return true
			}
		}
		return false
	}
	return false
}

func compare(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// DurationUnit is the unit of a target duration.
type DurationUnit string

const (
	UnitMinutes DurationUnit = "minutes"
	UnitHours   DurationUnit = "hours"
	UnitDays    DurationUnit = "days"
)

// TargetDuration is an amount of countable time measured against a calendar.
type TargetDuration struct {
	Value      int          `json:"value" yaml:"value"`
	Unit       DurationUnit `json:"unit" yaml:"unit"`
	CalendarID string       `json:"calendar_id" yaml:"calendar_id"`
}

// Seconds converts the duration to countable seconds.
func (d TargetDuration) Seconds() int64 {
	switch d.Unit {
	case UnitMinutes:
		return int64(d.Value) * 60
	case UnitHours:
		return int64(d.Value) * 3600
	case UnitDays:
		return int64(d.Value) * 86400
	}
	return 0
}

func (d TargetDuration) validate(entity, field string) error {
	if d.Value <= 0 {
		return &ValidationError{Entity: entity, Field: field, Reason: "duration must be > 0"}
	}
	switch d.Unit {
	case UnitMinutes, UnitHours, UnitDays:
	default:
		return &ValidationError{Entity: entity, Field: field, Reason: fmt.Sprintf("unknown unit %q", d.Unit)}
	}
	return nil
}

// Reminder fires a configured offset before a tier's due time.
type Reminder struct {
	Offset TargetDuration `json:"offset" yaml:"offset"`
}

// Escalation fires a configured offset after a tier's due time.
type Escalation struct {
	Level  int            `json:"level" yaml:"level"`
	Offset TargetDuration `json:"offset" yaml:"offset"`
}

// Target holds per-priority deadline durations and notification schedules.
type Target struct {
	Priority          string          `json:"priority" yaml:"priority"`
	FirstResponse     TargetDuration  `json:"first_response" yaml:"first_response"`
	Resolution        TargetDuration  `json:"resolution" yaml:"resolution"`
	NextResponse      *TargetDuration `json:"next_response,omitempty" yaml:"next_response,omitempty"`
	ReminderEnabled   bool            `json:"reminder_enabled" yaml:"reminder_enabled"`
	EscalationEnabled bool            `json:"escalation_enabled" yaml:"escalation_enabled"`
	Reminders         []Reminder      `json:"reminders,omitempty" yaml:"reminders,omitempty"`
	Escalations       []Escalation    `json:"escalations,omitempty" yaml:"escalations,omitempty"`
}

// Validate enforces positive durations and strictly increasing, unique
// escalation levels.
func (t *Target) Validate(policyID string) error {
	entity := fmt.Sprintf("policy %s target %s", policyID, t.Priority)
	if t.Priority == "" {
		return &ValidationError{Entity: entity, Field: "priority", Reason: "must not be empty"}
	}
	if err := t.FirstResponse.validate(entity, "first_response"); err != nil {
		return err
	}
	if err := t.Resolution.validate(entity, "resolution"); err != nil {
		return err
	}
	if t.NextResponse != nil {
		if err := t.NextResponse.validate(entity, "next_response"); err != nil {
			return err
		}
	}
	for i, r := range t.Reminders {
		if err := r.Offset.validate(entity, fmt.Sprintf("reminder[%d]", i)); err != nil {
			return err
		}
	}
	prevLevel := 0
	for i, e := range t.Escalations {
		if err := e.Offset.validate(entity, fmt.Sprintf("escalation[%d]", i)); err != nil {
			return err
		}
		if e.Level <= prevLevel {
			return &ValidationError{
				Entity: entity,
				Field:  "escalations",
				Reason: "levels must be strictly increasing and unique",
			}
		}
		prevLevel = e.Level
	}
	return nil
}

// Policy is a versioned SLA definition: ordered match conditions, an
// evaluation method, and one target per priority.
type Policy struct {
	ID               string           `json:"id" yaml:"id"`
	Name             string           `json:"name" yaml:"name"`
	Description      string           `json:"description,omitempty" yaml:"description,omitempty"`
	Rank             int              `json:"rank" yaml:"rank"`
	Active           bool             `json:"active" yaml:"active"`
	EvaluationMethod EvaluationMethod `json:"evaluation_method" yaml:"evaluation_method"`
	Conditions       []Condition      `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Targets          []Target         `json:"targets" yaml:"targets"`
}

// TargetFor returns the target for a priority, if the policy defines one.
func (p *Policy) TargetFor(priority string) (*Target, bool) {
	for i := range p.Targets {
		if p.Targets[i].Priority == priority {
			return &p.Targets[i], true
		}
	}
	return nil, false
}

// Validate checks the policy definition, including unique target priorities.
func (p *Policy) Validate() error {
	if p.ID == "" {
		return &ValidationError{Entity: "policy", Field: "id", Reason: "must not be empty"}
	}
	switch p.EvaluationMethod {
	case EvaluateOnCreation, EvaluateOnEachUpdate:
	default:
		return &ValidationError{
			Entity: "policy " + p.ID,
			Field:  "evaluation_method",
			Reason: fmt.Sprintf("unknown method %q", p.EvaluationMethod),
		}
	}
	for _, c := range p.Conditions {
		switch c.Operator {
		case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan, OpIn:
		default:
			return &ValidationError{
				Entity: "policy " + p.ID,
				Field:  "conditions",
				Reason: fmt.Sprintf("unknown operator %q", c.Operator),
			}
		}
	}
	if len(p.Targets) == 0 {
		return &ValidationError{Entity: "policy " + p.ID, Field: "targets", Reason: "at least one target required"}
	}
	seen := make(map[string]bool, len(p.Targets))
	for i := range p.Targets {
		t := &p.Targets[i]
		if seen[t.Priority] {
			return &ValidationError{
				Entity: "policy " + p.ID,
				Field:  "targets",
				Reason: fmt.Sprintf("duplicate priority %q", t.Priority),
			}
		}
		seen[t.Priority] = true
		if err := t.Validate(p.ID); err != nil {
			return err
		}
	}
	return nil
}
