// Package policy holds the SLA policy catalog and resolves the applicable
// policy and target for a ticket's attributes.
package policy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/opendesk-io/slaengine/internal/models"
	"github.com/opendesk-io/slaengine/internal/services/clock"
)

// SystemCalendarID selects 24/7 evaluation with no holidays. An empty
// calendar reference on a target duration means the same thing.
const SystemCalendarID = "system"

// Snapshot is an immutable catalog copy. Every tracker transition evaluates
// against exactly one snapshot, so a concurrent catalog edit can never
// produce a half-old/half-new computation.
type Snapshot struct {
	Version  string
	Policies []models.Policy

	calendars map[string]*models.Calendar
	engines   map[string]*clock.Engine
}

// NewSnapshot validates calendars and policies, compiles clock engines, and
// returns an immutable snapshot. Policies are ordered by rank, then ID, so
// resolution order is stable.
func NewSnapshot(version string, calendars []models.Calendar, policies []models.Policy) (*Snapshot, error) {
	if version == "" {
		version = uuid.NewString()
	}

	s := &Snapshot{
		Version:   version,
		calendars: make(map[string]*models.Calendar, len(calendars)+1),
		engines:   make(map[string]*clock.Engine, len(calendars)+1),
	}

	system := models.SystemCalendar()
	systemEngine, err := clock.New(system)
	if err != nil {
		return nil, err
	}
	s.calendars[SystemCalendarID] = system
	s.engines[SystemCalendarID] = systemEngine

	for i := range calendars {
		c := calendars[i]
		engine, err := clock.New(&c)
		if err != nil {
			return nil, err
		}
		s.calendars[c.ID] = &c
		s.engines[c.ID] = engine
	}

	for i := range policies {
		p := policies[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		for _, target := range p.Targets {
			for _, ref := range targetCalendarRefs(target) {
				if _, ok := s.engines[ref]; !ok {
					return nil, fmt.Errorf("policy %s: unknown calendar %q", p.ID, ref)
				}
			}
		}
		s.Policies = append(s.Policies, p)
	}

	sort.SliceStable(s.Policies, func(i, j int) bool {
		if s.Policies[i].Rank != s.Policies[j].Rank {
			return s.Policies[i].Rank < s.Policies[j].Rank
		}
		return s.Policies[i].ID < s.Policies[j].ID
	})

	return s, nil
}

func targetCalendarRefs(t models.Target) []string {
	refs := []string{normalizeCalendarID(t.FirstResponse.CalendarID), normalizeCalendarID(t.Resolution.CalendarID)}
	if t.NextResponse != nil {
		refs = append(refs, normalizeCalendarID(t.NextResponse.CalendarID))
	}
	return refs
}

func normalizeCalendarID(id string) string {
	if id == "" {
		return SystemCalendarID
	}
	return id
}

// Engine returns the compiled clock engine for a calendar reference. An
// empty reference resolves to the system (24/7) calendar.
func (s *Snapshot) Engine(calendarID string) (*clock.Engine, error) {
	engine, ok := s.engines[normalizeCalendarID(calendarID)]
	if !ok {
		return nil, fmt.Errorf("unknown calendar %q", calendarID)
	}
	return engine, nil
}

// Calendars returns the calendars in the snapshot, excluding the implicit
// system calendar, sorted by ID.
func (s *Snapshot) Calendars() []models.Calendar {
	out := make([]models.Calendar, 0, len(s.calendars)-1)
	for id, c := range s.calendars {
		if id == SystemCalendarID {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Match is the result of policy resolution: the winning policy and the
// target for the ticket's priority.
type Match struct {
	Policy *models.Policy
	Target *models.Target
}

// Resolve returns the first active policy whose conditions all match the
// ticket attributes, along with the target for the ticket's priority. The
// second return is false when no policy matches or the matching policy has
// no target for the priority: the ticket has no SLA. Pure; no side effects.
func (s *Snapshot) Resolve(attrs models.TicketAttributes) (Match, bool) {
	for i := range s.Policies {
		p := &s.Policies[i]
		if !p.Active {
			continue
		}
		if !conditionsMatch(p.Conditions, attrs) {
			continue
		}
		target, ok := p.TargetFor(attrs.Priority)
		if !ok {
			return Match{}, false
		}
		return Match{Policy: p, Target: target}, true
	}
	return Match{}, false
}

func conditionsMatch(conds []models.Condition, attrs models.TicketAttributes) bool {
	for _, c := range conds {
		v, ok := attrs.Get(c.Field)
		if !ok {
			return false
		}
		if !c.Matches(v) {
			return false
		}
	}
	return true
}

// Catalog holds the current snapshot and allows atomic replacement when the
// configuration service pushes a new catalog.
type Catalog struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewCatalog wraps an initial snapshot.
func NewCatalog(snap *Snapshot) *Catalog {
	return &Catalog{snap: snap}
}

// Snapshot returns the current immutable snapshot.
func (c *Catalog) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Replace swaps in a new snapshot atomically.
func (c *Catalog) Replace(snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
}
