// Package scheduler runs the periodic obligation dispatch loop: scan open
// trackers, derive due obligations, hand them to the notifier, and mark them
// fired.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opendesk-io/slaengine/internal/metrics"
	"github.com/opendesk-io/slaengine/internal/models"
	"github.com/opendesk-io/slaengine/internal/repository"
	"github.com/opendesk-io/slaengine/internal/services/obligation"
	"github.com/opendesk-io/slaengine/internal/services/policy"
)

// Notifier receives obligations ready for dispatch. Delivery, templating,
// and retries belong to the external notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, o models.Obligation) error
}

// Service coordinates the dispatch tick.
type Service struct {
	repo     repository.TrackerRepository
	catalog  *policy.Catalog
	store    obligation.MarkerStore
	notifier Notifier

	cron     *cron.Cron
	schedule string
	logger   *log.Logger
	now      func() time.Time

	rootCtx   context.Context
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures the Service.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithCron injects a cron engine, for tests.
func WithCron(c *cron.Cron) Option {
	return func(s *Service) { s.cron = c }
}

// WithSchedule sets the dispatch cron expression. Default is every minute.
func WithSchedule(expr string) Option {
	return func(s *Service) { s.schedule = expr }
}

// WithNow overrides the time source, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the dispatch loop.
func NewService(repo repository.TrackerRepository, catalog *policy.Catalog, store obligation.MarkerStore, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		catalog:  catalog,
		store:    store,
		notifier: notifier,
		schedule: "* * * * *",
		logger:   log.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New()
	}
	return s
}

// Run starts the loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	var scheduleErr error
	s.startOnce.Do(func() {
		s.rootCtx = ctx
		_, scheduleErr = s.cron.AddFunc(s.schedule, func() {
			dispatched, err := s.DispatchDue(s.rootCtx)
			if err != nil {
				s.logger.Printf("scheduler: dispatch tick failed: %v", err)
				return
			}
			if dispatched > 0 {
				s.logger.Printf("scheduler: dispatched %d obligations", dispatched)
			}
		})
		if scheduleErr != nil {
			return
		}
		s.cron.Start()
	})
	if scheduleErr != nil {
		return scheduleErr
	}

	<-ctx.Done()
	s.stop()
	return nil
}

func (s *Service) stop() {
	s.stopOnce.Do(func() {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			s.logger.Printf("scheduler: timed out waiting for dispatch to finish")
		}
	})
}

// DispatchDue runs one tick: every due, unfired obligation of every open
// ticket is claimed through the marker store and handed to the notifier.
// Winning the MarkFired compare-and-set is the gate for dispatch, so
// overlapping ticks and multiple engine instances sharing one store never
// deliver the same obligation twice. A notify failure after a won claim is
// logged; retries belong to the notification service. Dispatch happens only
// inside the working hours of the obligation's calendar; an obligation
// coming due overnight goes out next business morning.
func (s *Service) DispatchDue(ctx context.Context) (int, error) {
	now := s.now()
	snap := s.catalog.Snapshot()

	ids, err := s.repo.OpenTicketIDs(ctx)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, ticketID := range ids {
		state, err := s.repo.Latest(ctx, ticketID)
		if err != nil {
			s.logger.Printf("scheduler: failed to load ticket %s: %v", ticketID, err)
			continue
		}

		derived := obligation.Derive(state)
		due, err := obligation.DueNow(ctx, s.store, derived, now)
		if err != nil {
			return dispatched, err
		}

		for _, o := range due {
			if !s.inWorkingHours(snap, state, o, now) {
				continue
			}
			won, err := s.store.MarkFired(ctx, o.ID)
			if err != nil {
				return dispatched, err
			}
			if !won {
				// Another tick or instance claimed it first.
				continue
			}
			dispatched++
			metrics.ObligationsFiredTotal.WithLabelValues(string(o.Kind)).Inc()
			if err := s.notifier.Notify(ctx, o); err != nil {
				s.logger.Printf("scheduler: notify failed for claimed obligation %s: %v", o.ID, err)
			}
		}
	}
	return dispatched, nil
}

func (s *Service) inWorkingHours(snap *policy.Snapshot, state *models.TrackerState, o models.Obligation, now time.Time) bool {
	if state.Target == nil {
		return true
	}
	var calendarID string
	switch o.Tier {
	case models.TierFirstResponse:
		calendarID = state.Target.FirstResponse.CalendarID
	case models.TierResolution:
		calendarID = state.Target.Resolution.CalendarID
	case models.TierNextResponse:
		if state.Target.NextResponse != nil {
			calendarID = state.Target.NextResponse.CalendarID
		}
	}
	engine, err := snap.Engine(calendarID)
	if err != nil {
		s.logger.Printf("scheduler: unknown calendar for obligation %s: %v", o.ID, err)
		return false
	}
	return engine.IsWorkingTime(now)
}
