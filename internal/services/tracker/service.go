// Package tracker owns the per-ticket SLA state machine: deadline
// computation, pause/resume, breach detection, and the versioned state
// record behind status queries and obligation derivation.
package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opendesk-io/slaengine/internal/metrics"
	"github.com/opendesk-io/slaengine/internal/models"
	"github.com/opendesk-io/slaengine/internal/repository"
	"github.com/opendesk-io/slaengine/internal/services/clock"
	"github.com/opendesk-io/slaengine/internal/services/policy"
)

// ConfigurationError wraps calendar or catalog faults. These surface to the
// caller for correction; the engine never guesses a fallback calendar.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("sla configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ErrUnknownTicket is returned for lifecycle events on tickets that never
// produced tracker state.
var ErrUnknownTicket = fmt.Errorf("tracker: no state for ticket")

// Service applies ticket lifecycle events to tracker state. Transitions for
// one ticket are serialized through a per-ticket mutex; a save that still
// races another writer is retried once against re-read state.
type Service struct {
	repo         repository.TrackerRepository
	catalog      *policy.Catalog
	holdStatuses map[string]bool
	logger       *log.Logger
	now          func() time.Time

	locks sync.Map // ticket id -> *sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithHoldStatuses sets the ticket statuses that pause the SLA clock.
func WithHoldStatuses(statuses []string) Option {
	return func(s *Service) {
		s.holdStatuses = make(map[string]bool, len(statuses))
		for _, st := range statuses {
			s.holdStatuses[st] = true
		}
	}
}

// WithNow overrides the time source, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the tracker around a repository and a policy catalog.
func NewService(repo repository.TrackerRepository, catalog *policy.Catalog, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		catalog: catalog,
		holdStatuses: map[string]bool{
			"pending": true,
			"on_hold": true,
		},
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) lock(ticketID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(ticketID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Apply runs one lifecycle event through the state machine and persists the
// resulting state version. It returns the new (or unchanged) latest state.
func (s *Service) Apply(ctx context.Context, ev models.TicketEvent) (*models.TrackerState, error) {
	if ev.TicketID == "" {
		return nil, fmt.Errorf("tracker: event without ticket id")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}

	mu := s.lock(ev.TicketID)
	mu.Lock()
	defer mu.Unlock()

	started := time.Now()
	defer func() {
		metrics.EvaluationDuration.Observe(time.Since(started).Seconds())
	}()

	state, err := s.applyOnce(ctx, ev)
	if err == repository.ErrConcurrentModification {
		// Re-read and reapply once before surfacing.
		s.logger.Printf("tracker: concurrent modification on ticket %s, retrying", ev.TicketID)
		state, err = s.applyOnce(ctx, ev)
	}
	if err != nil {
		return nil, err
	}

	metrics.EvaluationsTotal.WithLabelValues(string(ev.Type)).Inc()
	return state, nil
}

func (s *Service) applyOnce(ctx context.Context, ev models.TicketEvent) (*models.TrackerState, error) {
	snap := s.catalog.Snapshot()

	prev, err := s.repo.Latest(ctx, ev.TicketID)
	if err != nil && err != repository.ErrNotFound {
		return nil, err
	}

	next, err := s.transition(snap, prev, ev)
	if err != nil {
		return nil, err
	}
	if next == nil {
		// No-op event; latest state stands.
		return prev, nil
	}

	next.Version = uuid.NewString()
	if prev != nil {
		next.PrevVersion = prev.Version
	} else {
		next.PrevVersion = ""
	}
	next.UpdatedAt = ev.Timestamp

	if err := s.repo.Save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// transition computes the next state version. A nil next state with nil
// error means the event does not change tracker state.
func (s *Service) transition(snap *policy.Snapshot, prev *models.TrackerState, ev models.TicketEvent) (*models.TrackerState, error) {
	if ev.Type == models.EventCreated {
		return s.initialize(snap, ev)
	}
	if prev == nil {
		return nil, fmt.Errorf("%w %s", ErrUnknownTicket, ev.TicketID)
	}

	state := prev.Clone()

	// Policies evaluated on each update re-match before the event-specific
	// transition; a priority change always re-matches. Events that carry no
	// attributes cannot be matched and never demote the ticket.
	reResolve := ev.Attributes.Priority != "" &&
		(ev.Type == models.EventPriorityChanged ||
			(state.HasSLA && state.EvaluationMethod == models.EvaluateOnEachUpdate))
	if reResolve {
		if err := s.reResolve(snap, state, ev); err != nil {
			return nil, err
		}
	}

	switch ev.Type {
	case models.EventStatusChanged:
		if err := s.handleStatusChange(snap, state, ev); err != nil {
			return nil, err
		}
	case models.EventPriorityChanged:
		// Re-resolution above did the work.
	case models.EventReplyRecorded, models.EventFirstResponseRecorded:
		if !state.HasSLA {
			return nil, nil
		}
		changed, err := s.handleResponse(snap, state, ev)
		if err != nil {
			return nil, err
		}
		if !changed {
			return nil, nil
		}
	case models.EventResolved:
		if !state.HasSLA {
			return nil, nil
		}
		if !s.handleResolved(state, ev) {
			return nil, nil
		}
	case models.EventReopened:
		if !state.HasSLA {
			return nil, nil
		}
		changed, err := s.handleReopened(snap, state, ev)
		if err != nil {
			return nil, err
		}
		if !changed {
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("tracker: unknown event type %q", ev.Type)
	}

	return state, nil
}

// initialize builds the first tracker state for a ticket. A ticket that
// matches no policy (or a policy without a target for its priority) gets a
// persisted no-SLA sentinel so downstream reads report has_sla=false.
func (s *Service) initialize(snap *policy.Snapshot, ev models.TicketEvent) (*models.TrackerState, error) {
	state := &models.TrackerState{
		TicketID:  ev.TicketID,
		CreatedAt: ev.Timestamp,
		Status:    ev.Status,
	}

	match, ok := snap.Resolve(ev.Attributes)
	if !ok {
		metrics.NoSLATotal.Inc()
		state.HasSLA = false
		return state, nil
	}

	s.adoptMatch(state, match)

	frDue, err := s.addCountable(snap, match.Target.FirstResponse, ev.Timestamp)
	if err != nil {
		return nil, err
	}
	state.Tier(models.TierFirstResponse).DueAt = &frDue

	resDue, err := s.addCountable(snap, match.Target.Resolution, ev.Timestamp)
	if err != nil {
		return nil, err
	}
	state.Tier(models.TierResolution).DueAt = &resDue

	// The next-response clock starts at first-response completion, not at
	// creation; its due time stays unset for now.
	return state, nil
}

func (s *Service) adoptMatch(state *models.TrackerState, match policy.Match) {
	state.HasSLA = true
	state.PolicyID = match.Policy.ID
	state.PolicyName = match.Policy.Name
	state.PolicyDesc = match.Policy.Description
	state.EvaluationMethod = match.Policy.EvaluationMethod
	target := *match.Target
	state.Target = &target
}

func (s *Service) addCountable(snap *policy.Snapshot, d models.TargetDuration, from time.Time) (time.Time, error) {
	engine, err := snap.Engine(d.CalendarID)
	if err != nil {
		return time.Time{}, &ConfigurationError{Err: err}
	}
	due, err := engine.AddCountable(from, time.Duration(d.Seconds())*time.Second)
	if err != nil {
		return time.Time{}, &ConfigurationError{Err: err}
	}
	return due, nil
}

func (s *Service) engineFor(snap *policy.Snapshot, d models.TargetDuration) (*clock.Engine, error) {
	engine, err := snap.Engine(d.CalendarID)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	return engine, nil
}

func markBreach(ts *models.TierState, tier models.Tier, now time.Time) {
	if ts.DueAt != nil && now.After(*ts.DueAt) && !ts.Breached {
		ts.Breached = true
		metrics.BreachesTotal.WithLabelValues(string(tier)).Inc()
	}
}
