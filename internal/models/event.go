package models

import "time"

// EventType identifies a ticket lifecycle notification.
type EventType string

const (
	EventCreated               EventType = "created"
	EventStatusChanged         EventType = "status_changed"
	EventPriorityChanged       EventType = "priority_changed"
	EventReplyRecorded         EventType = "reply_recorded"
	EventFirstResponseRecorded EventType = "first_response_recorded"
	EventResolved              EventType = "resolved"
	EventReopened              EventType = "reopened"
)

// TicketAttributes carries the matchable attributes of a ticket. Priority is
// also exposed as the "priority" field for condition matching.
type TicketAttributes struct {
	Priority string            `json:"priority"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Get returns an attribute value by field name.
func (a TicketAttributes) Get(field string) (string, bool) {
	if field == "priority" {
		return a.Priority, true
	}
	v, ok := a.Fields[field]
	return v, ok
}

// TicketEvent is one inbound lifecycle notification.
type TicketEvent struct {
	TicketID   string           `json:"ticket_id" binding:"required"`
	Type       EventType        `json:"event_type" binding:"required"`
	Timestamp  time.Time        `json:"timestamp"`
	Status     string           `json:"status,omitempty"`
	Attributes TicketAttributes `json:"attributes"`
}
