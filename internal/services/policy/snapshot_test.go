package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendesk-io/slaengine/internal/models"
)

func businessCalendar() models.Calendar {
	c := models.Calendar{ID: "business", Name: "Business Hours", Timezone: "UTC"}
	for day := time.Monday; day <= time.Friday; day++ {
		c.Intervals = append(c.Intervals, models.WorkingInterval{
			Weekday: day, Start: "09:00", End: "17:00",
		})
	}
	return c
}

func target(priority string) models.Target {
	return models.Target{
		Priority:      priority,
		FirstResponse: models.TargetDuration{Value: 4, Unit: models.UnitHours, CalendarID: "business"},
		Resolution:    models.TargetDuration{Value: 8, Unit: models.UnitHours, CalendarID: "business"},
	}
}

func TestNewSnapshotOrdersByRank(t *testing.T) {
	policies := []models.Policy{
		{ID: "silver", Rank: 2, Active: true, EvaluationMethod: models.EvaluateOnCreation, Targets: []models.Target{target("high")}},
		{ID: "gold", Rank: 1, Active: true, EvaluationMethod: models.EvaluateOnCreation, Targets: []models.Target{target("high")}},
		{ID: "bronze", Rank: 2, Active: true, EvaluationMethod: models.EvaluateOnCreation, Targets: []models.Target{target("high")}},
	}

	snap, err := NewSnapshot("v1", []models.Calendar{businessCalendar()}, policies)
	require.NoError(t, err)

	ids := make([]string, 0, len(snap.Policies))
	for _, p := range snap.Policies {
		ids = append(ids, p.ID)
	}
	// Rank first, ID as tiebreaker.
	assert.Equal(t, []string{"gold", "bronze", "silver"}, ids)
}

func TestNewSnapshotRejectsUnknownCalendar(t *testing.T) {
	tgt := target("high")
	tgt.Resolution.CalendarID = "nonexistent"
	policies := []models.Policy{
		{ID: "p1", Rank: 1, Active: true, EvaluationMethod: models.EvaluateOnCreation, Targets: []models.Target{tgt}},
	}

	_, err := NewSnapshot("v1", []models.Calendar{businessCalendar()}, policies)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown calendar")
}

func TestSnapshotEngineDefaultsToSystem(t *testing.T) {
	snap, err := NewSnapshot("v1", nil, nil)
	require.NoError(t, err)

	engine, err := snap.Engine("")
	require.NoError(t, err)
	// The implicit system calendar counts every second.
	assert.True(t, engine.IsWorkingTime(time.Date(2025, 1, 5, 3, 0, 0, 0, time.UTC)))

	_, err = snap.Engine("missing")
	assert.Error(t, err)
}

func TestResolveFirstActiveMatch(t *testing.T) {
	policies := []models.Policy{
		{
			ID: "vip", Rank: 1, Active: true, EvaluationMethod: models.EvaluateOnCreation,
			Conditions: []models.Condition{{Field: "tier", Operator: models.OpEquals, Value: "vip"}},
			Targets:    []models.Target{target("high")},
		},
		{
			ID: "inactive", Rank: 2, Active: false, EvaluationMethod: models.EvaluateOnCreation,
			Targets: []models.Target{target("high")},
		},
		{
			ID: "default", Rank: 3, Active: true, EvaluationMethod: models.EvaluateOnCreation,
			Targets: []models.Target{target("high"), target("low")},
		},
	}
	snap, err := NewSnapshot("v1", []models.Calendar{businessCalendar()}, policies)
	require.NoError(t, err)

	match, ok := snap.Resolve(models.TicketAttributes{
		Priority: "high",
		Fields:   map[string]string{"tier": "vip"},
	})
	require.True(t, ok)
	assert.Equal(t, "vip", match.Policy.ID)

	// Condition mismatch falls through past the inactive policy.
	match, ok = snap.Resolve(models.TicketAttributes{Priority: "low"})
	require.True(t, ok)
	assert.Equal(t, "default", match.Policy.ID)
	assert.Equal(t, "low", match.Target.Priority)
}

func TestResolveNoTargetForPriority(t *testing.T) {
	policies := []models.Policy{
		{
			ID: "default", Rank: 1, Active: true, EvaluationMethod: models.EvaluateOnCreation,
			Targets: []models.Target{target("high")},
		},
	}
	snap, err := NewSnapshot("v1", []models.Calendar{businessCalendar()}, policies)
	require.NoError(t, err)

	// The policy matches, but it defines no target for this priority. The
	// ticket has no SLA; resolution does not fall through to later policies.
	_, ok := snap.Resolve(models.TicketAttributes{Priority: "critical"})
	assert.False(t, ok)
}

func TestResolveMissingAttributeFailsCondition(t *testing.T) {
	policies := []models.Policy{
		{
			ID: "scoped", Rank: 1, Active: true, EvaluationMethod: models.EvaluateOnCreation,
			Conditions: []models.Condition{{Field: "queue", Operator: models.OpEquals, Value: "support"}},
			Targets:    []models.Target{target("high")},
		},
	}
	snap, err := NewSnapshot("v1", []models.Calendar{businessCalendar()}, policies)
	require.NoError(t, err)

	_, ok := snap.Resolve(models.TicketAttributes{Priority: "high"})
	assert.False(t, ok)
}

func TestCatalogReplace(t *testing.T) {
	snap1, err := NewSnapshot("v1", nil, nil)
	require.NoError(t, err)
	snap2, err := NewSnapshot("v2", nil, nil)
	require.NoError(t, err)

	catalog := NewCatalog(snap1)
	held := catalog.Snapshot()
	catalog.Replace(snap2)

	// In-flight evaluations keep the snapshot they started with.
	assert.Equal(t, "v1", held.Version)
	assert.Equal(t, "v2", catalog.Snapshot().Version)
}

func TestParseDocument(t *testing.T) {
	doc := []byte(`
version: "2025-01"
calendars:
  - id: business
    name: Business Hours
    timezone: UTC
    intervals:
      - weekday: 1
        start: "09:00"
        end: "17:00"
policies:
  - id: gold
    name: Gold Support
    rank: 1
    active: true
    evaluation_method: on_ticket_creation
    targets:
      - priority: high
        first_response:
          value: 4
          unit: hours
          calendar_id: business
        resolution:
          value: 8
          unit: hours
          calendar_id: business
`)

	snap, err := ParseDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, "2025-01", snap.Version)
	require.Len(t, snap.Policies, 1)
	assert.Equal(t, "gold", snap.Policies[0].ID)
	require.Len(t, snap.Calendars(), 1)

	_, err = ParseDocument([]byte("policies: [nonsense"))
	assert.Error(t, err)
}
