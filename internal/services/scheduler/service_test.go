package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendesk-io/slaengine/internal/models"
	"github.com/opendesk-io/slaengine/internal/repository"
	"github.com/opendesk-io/slaengine/internal/services/obligation"
	"github.com/opendesk-io/slaengine/internal/services/policy"
)

type captureNotifier struct {
	mu    sync.Mutex
	sent  []models.Obligation
	err   error
	delay time.Duration
}

func (n *captureNotifier) Notify(ctx context.Context, o models.Obligation) error {
	if n.delay > 0 {
		time.Sleep(n.delay)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, o)
	return nil
}

func (n *captureNotifier) delivered() []models.Obligation {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.Obligation, len(n.sent))
	copy(out, n.sent)
	return out
}

func testCatalog(t *testing.T) *policy.Catalog {
	t.Helper()
	c := models.Calendar{ID: "business", Name: "Business Hours", Timezone: "UTC"}
	for day := time.Monday; day <= time.Friday; day++ {
		c.Intervals = append(c.Intervals, models.WorkingInterval{
			Weekday: day, Start: "09:00", End: "17:00",
		})
	}
	snap, err := policy.NewSnapshot("v1", []models.Calendar{c}, nil)
	require.NoError(t, err)
	return policy.NewCatalog(snap)
}

// Open ticket with a first-response reminder 30 minutes before a Monday
// 13:00 deadline.
func seedTicket(t *testing.T, repo repository.TrackerRepository, ticketID string) {
	t.Helper()
	due := time.Date(2025, 1, 6, 13, 0, 0, 0, time.UTC)
	state := &models.TrackerState{
		TicketID: ticketID,
		Version:  "v1",
		HasSLA:   true,
		Target: &models.Target{
			Priority:        "high",
			FirstResponse:   models.TargetDuration{Value: 4, Unit: models.UnitHours, CalendarID: "business"},
			Resolution:      models.TargetDuration{Value: 8, Unit: models.UnitHours, CalendarID: "business"},
			ReminderEnabled: true,
			Reminders: []models.Reminder{
				{Offset: models.TargetDuration{Value: 30, Unit: models.UnitMinutes}},
			},
		},
		TierStates: map[models.Tier]*models.TierState{
			models.TierFirstResponse: {DueAt: &due},
		},
	}
	require.NoError(t, repo.Save(context.Background(), state))
}

func TestDispatchDueFiresOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTrackerRepository()
	store := obligation.NewMemoryMarkerStore()
	notifier := &captureNotifier{}
	seedTicket(t, repo, "T-1")

	now := time.Date(2025, 1, 6, 12, 45, 0, 0, time.UTC)
	svc := NewService(repo, testCatalog(t), store, notifier, WithNow(func() time.Time { return now }))

	dispatched, err := svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, models.KindReminder, notifier.sent[0].Kind)

	// The next tick sees the marker and dispatches nothing.
	dispatched, err = svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)
	assert.Len(t, notifier.sent, 1)
}

func TestDispatchWaitsForWorkingHours(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTrackerRepository()
	store := obligation.NewMemoryMarkerStore()
	notifier := &captureNotifier{}
	seedTicket(t, repo, "T-1")

	// Monday 18:00 is past the reminder time but outside business hours.
	now := time.Date(2025, 1, 6, 18, 0, 0, 0, time.UTC)
	svc := NewService(repo, testCatalog(t), store, notifier, WithNow(func() time.Time { return now }))

	dispatched, err := svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)
	assert.Empty(t, notifier.sent)

	// Tuesday 09:01 it goes out.
	now = time.Date(2025, 1, 7, 9, 1, 0, 0, time.UTC)
	dispatched, err = svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)
}

func TestDispatchSkipsNotYetDue(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTrackerRepository()
	store := obligation.NewMemoryMarkerStore()
	notifier := &captureNotifier{}
	seedTicket(t, repo, "T-1")

	// 12:15, fifteen minutes before the reminder window opens.
	now := time.Date(2025, 1, 6, 12, 15, 0, 0, time.UTC)
	svc := NewService(repo, testCatalog(t), store, notifier, WithNow(func() time.Time { return now }))

	dispatched, err := svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)
}

func TestNotifyFailureDoesNotRedeliver(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTrackerRepository()
	store := obligation.NewMemoryMarkerStore()
	notifier := &captureNotifier{err: errors.New("notification service down")}
	seedTicket(t, repo, "T-1")

	now := time.Date(2025, 1, 6, 12, 45, 0, 0, time.UTC)
	svc := NewService(repo, testCatalog(t), store, notifier, WithNow(func() time.Time { return now }))

	// The claim wins even though the handoff fails. At-most-once holds;
	// delivery retries are the notification service's problem.
	dispatched, err := svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)

	notifier.err = nil
	dispatched, err = svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)
	assert.Empty(t, notifier.delivered())
}

func TestConcurrentTicksDispatchOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTrackerRepository()
	store := obligation.NewMemoryMarkerStore()
	notifier := &captureNotifier{delay: 50 * time.Millisecond}
	seedTicket(t, repo, "T-1")

	now := time.Date(2025, 1, 6, 12, 45, 0, 0, time.UTC)
	svc := NewService(repo, testCatalog(t), store, notifier, WithNow(func() time.Time { return now }))

	// Two overlapping ticks, as when a slow tick is still running when the
	// next one fires. The slow notifier keeps both inside DispatchDue at the
	// same time; only the claim winner may deliver.
	var wg sync.WaitGroup
	results := make([]int, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.DispatchDue(ctx)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, results[0]+results[1])
	require.Len(t, notifier.delivered(), 1)
	assert.Equal(t, models.KindReminder, notifier.delivered()[0].Kind)
}
