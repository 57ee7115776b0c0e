package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// WorkingInterval is one working window on a weekday. Start and End use
// "HH:MM" 24-hour format; End may be "24:00" to reach end of day.
type WorkingInterval struct {
	Weekday time.Weekday `json:"weekday" yaml:"weekday"`
	Start   string       `json:"start" yaml:"start"`
	End     string       `json:"end" yaml:"end"`
}

// Holiday is a non-working date. Year 0 means the holiday recurs every year.
type Holiday struct {
	Name  string     `json:"name" yaml:"name"`
	Month time.Month `json:"month" yaml:"month"`
	Day   int        `json:"day" yaml:"day"`
	Year  int        `json:"year,omitempty" yaml:"year,omitempty"`
}

// Recurring reports whether the holiday applies to every year.
func (h Holiday) Recurring() bool { return h.Year == 0 }

// Calendar defines business hours: a weekly schedule of working intervals
// plus a holiday exception set. A date matching a Holiday contributes zero
// countable time regardless of its working intervals.
type Calendar struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Timezone  string            `json:"timezone" yaml:"timezone"`
	Intervals []WorkingInterval `json:"intervals" yaml:"intervals"`
	Holidays  []Holiday         `json:"holidays,omitempty" yaml:"holidays,omitempty"`
}

// ValidationError describes a malformed calendar or policy definition.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Entity, e.Field, e.Reason)
}

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is allowed
// as an end-of-day marker.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed minute in %q", s)
	}
	if h == 24 && m == 0 {
		return 24 * 60, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}

// Location resolves the calendar timezone, defaulting to UTC.
func (c *Calendar) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Validate checks interval ordering and disjointness per weekday, time
// formats, holiday dates, and the timezone identifier.
func (c *Calendar) Validate() error {
	if c.ID == "" {
		return &ValidationError{Entity: "calendar", Field: "id", Reason: "must not be empty"}
	}
	if _, err := c.Location(); err != nil {
		return &ValidationError{Entity: "calendar " + c.ID, Field: "timezone", Reason: err.Error()}
	}

	byDay := make(map[time.Weekday][][2]int)
	for _, iv := range c.Intervals {
		if iv.Weekday < time.Sunday || iv.Weekday > time.Saturday {
			return &ValidationError{Entity: "calendar " + c.ID, Field: "weekday", Reason: "out of range"}
		}
		start, err := ParseClock(iv.Start)
		if err != nil {
			return &ValidationError{Entity: "calendar " + c.ID, Field: "start", Reason: err.Error()}
		}
		end, err := ParseClock(iv.End)
		if err != nil {
			return &ValidationError{Entity: "calendar " + c.ID, Field: "end", Reason: err.Error()}
		}
		if start >= end {
			return &ValidationError{
				Entity: "calendar " + c.ID,
				Field:  "interval",
				Reason: fmt.Sprintf("start %s must be before end %s", iv.Start, iv.End),
			}
		}
		byDay[iv.Weekday] = append(byDay[iv.Weekday], [2]int{start, end})
	}

	for day, spans := range byDay {
		sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
		for i := 1; i < len(spans); i++ {
			if spans[i][0] < spans[i-1][1] {
				return &ValidationError{
					Entity: "calendar " + c.ID,
					Field:  "intervals",
					Reason: fmt.Sprintf("overlapping intervals on %s", day),
				}
			}
		}
	}

	for _, h := range c.Holidays {
		if h.Month < time.January || h.Month > time.December || h.Day < 1 || h.Day > 31 {
			return &ValidationError{Entity: "calendar " + c.ID, Field: "holiday", Reason: "date out of range"}
		}
	}

	return nil
}

// SystemCalendar returns a 24/7 calendar with no holidays. Evaluation under
// "system hours" uses the same arithmetic path as any business calendar.
func SystemCalendar() *Calendar {
	c := &Calendar{
		ID:       "system",
		Name:     "System Hours (24x7)",
		Timezone: "UTC",
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		c.Intervals = append(c.Intervals, WorkingInterval{
			Weekday: day,
			Start:   "00:00",
			End:     "24:00",
		})
	}
	return c
}
