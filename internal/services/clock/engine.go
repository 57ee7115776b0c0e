// Package clock converts wall-clock intervals into countable elapsed time
// under a business calendar and provides the inverse deadline arithmetic.
package clock

import (
	"errors"
	"sort"
	"time"

	"github.com/rickar/cal/v2"

	"github.com/opendesk-io/slaengine/internal/models"
)

var (
	// ErrInvalidRange is returned when a range query has start after end.
	ErrInvalidRange = errors.New("clock: invalid range, start is after end")
	// ErrNoWorkingTime is returned when deadline arithmetic exhausts the
	// lookahead bound without finding enough working time.
	ErrNoWorkingTime = errors.New("clock: no working time defined within lookahead bound")
)

// maxLookaheadDays bounds AddCountable so a calendar with no working time
// fails instead of walking forward forever. Two years.
const maxLookaheadDays = 731

type span struct {
	start int // minutes since midnight
	end   int
}

// Engine performs countable-time arithmetic for one calendar. Build once per
// calendar snapshot; safe for concurrent use.
type Engine struct {
	calendar *models.Calendar
	loc      *time.Location
	days     map[time.Weekday][]span
	holidays *cal.Calendar
}

// New validates the calendar and compiles it into an Engine.
func New(c *models.Calendar) (*Engine, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}

	days := make(map[time.Weekday][]span)
	for _, iv := range c.Intervals {
		start, _ := models.ParseClock(iv.Start)
		end, _ := models.ParseClock(iv.End)
		days[iv.Weekday] = append(days[iv.Weekday], span{start: start, end: end})
	}
	for day := range days {
		spans := days[day]
		sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
		days[day] = spans
	}

	holidays := &cal.Calendar{Name: c.Name}
	for _, h := range c.Holidays {
		hd := &cal.Holiday{
			Name:  h.Name,
			Type:  cal.ObservancePublic,
			Month: h.Month,
			Day:   h.Day,
			Func:  cal.CalcDayOfMonth,
		}
		if !h.Recurring() {
			hd.StartYear = h.Year
			hd.EndYear = h.Year
		}
		holidays.AddHoliday(hd)
	}

	return &Engine{calendar: c, loc: loc, days: days, holidays: holidays}, nil
}

// Calendar returns the calendar this engine was built from.
func (e *Engine) Calendar() *models.Calendar { return e.calendar }

func (e *Engine) isHoliday(t time.Time) bool {
	actual, _, _ := e.holidays.IsHoliday(t)
	return actual
}

// spanTimes materializes a working interval on a concrete date.
func (e *Engine) spanTimes(day time.Time, sp span) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, sp.start, 0, 0, e.loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), 0, sp.end, 0, 0, e.loc)
	return start, end
}

// CountableSeconds sums the overlap of [start, end) with working intervals,
// excluding holiday dates. The result never exceeds the wall-clock span.
func (e *Engine) CountableSeconds(start, end time.Time) (int64, error) {
	if start.After(end) {
		return 0, ErrInvalidRange
	}
	start = start.In(e.loc)
	end = end.In(e.loc)

	var total int64
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, e.loc)
	for !day.After(end) {
		if !e.isHoliday(day) {
			for _, sp := range e.days[day.Weekday()] {
				spStart, spEnd := e.spanTimes(day, sp)
				from := spStart
				if start.After(from) {
					from = start
				}
				to := spEnd
				if end.Before(to) {
					to = end
				}
				if to.After(from) {
					total += int64(to.Sub(from) / time.Second)
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return total, nil
}

// AddCountable walks forward from the given time, accumulating the requested
// countable duration through working intervals and skipping holidays. A
// duration of zero returns from unchanged. Fails with ErrNoWorkingTime once
// the lookahead bound is exhausted.
func (e *Engine) AddCountable(from time.Time, d time.Duration) (time.Time, error) {
	if d < 0 {
		return time.Time{}, ErrInvalidRange
	}
	if d == 0 {
		return from, nil
	}
	from = from.In(e.loc)
	remaining := d

	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, e.loc)
	for i := 0; i < maxLookaheadDays; i++ {
		if !e.isHoliday(day) {
			for _, sp := range e.days[day.Weekday()] {
				spStart, spEnd := e.spanTimes(day, sp)
				segStart := spStart
				if i == 0 && from.After(segStart) {
					segStart = from
				}
				if !segStart.Before(spEnd) {
					continue
				}
				avail := spEnd.Sub(segStart)
				if avail >= remaining {
					return segStart.Add(remaining), nil
				}
				remaining -= avail
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, ErrNoWorkingTime
}

// IsWorkingTime reports whether t falls inside a working interval on a
// non-holiday date.
func (e *Engine) IsWorkingTime(t time.Time) bool {
	t = t.In(e.loc)
	if e.isHoliday(t) {
		return false
	}
	for _, sp := range e.days[t.Weekday()] {
		spStart, spEnd := e.spanTimes(t, sp)
		if !t.Before(spStart) && t.Before(spEnd) {
			return true
		}
	}
	return false
}
