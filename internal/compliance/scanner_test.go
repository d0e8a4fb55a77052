package compliance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"compliance-engine/internal/common/logger"
	"compliance-engine/internal/ledger"
	"compliance-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	mu      sync.Mutex
	intents []models.DispatchIntent
	err     error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, intent models.DispatchIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.intents = append(r.intents, intent)
	return nil
}

type MockRecords struct {
	HasActiveRecordFunc func(ctx context.Context, allocationID string, week int) (bool, error)
}

func (m *MockRecords) HasActiveRecord(ctx context.Context, allocationID string, week int) (bool, error) {
	return m.HasActiveRecordFunc(ctx, allocationID, week)
}

type MockAllocations struct {
	ActiveAllocationsFunc func(ctx context.Context) ([]models.Allocation, error)
}

func (m *MockAllocations) ActiveAllocations(ctx context.Context) ([]models.Allocation, error) {
	return m.ActiveAllocationsFunc(ctx)
}

// dayOfWeek returns a time inside the given 1-indexed reporting week of 2025.
func dayOfWeek(week int) time.Time {
	return time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC).AddDate(0, 0, (week-1)*7)
}

func allocation(id string, withManager bool) models.Allocation {
	a := models.Allocation{
		ID:          id,
		ModuleName:  "Distributed Systems",
		CohortName:  "2025-A",
		ClassName:   "Group 1",
		Facilitator: models.Person{ID: "fac-" + id, Name: "Grace Hopper", Email: "fac-" + id + "@school.edu"},
		IsActive:    true,
	}
	if withManager {
		a.Manager = &models.Person{ID: "mgr-1", Name: "Alan Turing", Email: "mgr@school.edu"}
	}
	return a
}

type scannerFixture struct {
	ledger   *ledger.Ledger
	records  *RecordSet
	allocs   *StaticAllocations
	enqueuer *recordingEnqueuer
	now      time.Time
	scanner  *Scanner
}

func newFixture(t *testing.T, week int, allocations ...models.Allocation) *scannerFixture {
	f := &scannerFixture{
		records:  NewRecordSet(),
		allocs:   NewStaticAllocations(allocations...),
		enqueuer: &recordingEnqueuer{},
		now:      dayOfWeek(week),
	}
	clock := func() time.Time { return f.now }
	f.ledger = ledger.New(ledger.NewMemoryStore(), logger.NewNoOpLogger(), ledger.WithClock(clock))
	f.scanner = NewScanner(f.allocs, f.records, f.ledger, f.enqueuer, logger.NewNoOpLogger(),
		WithClock(clock), WithGraceWeeks(2))
	return f
}

func (f *scannerFixture) unread(t *testing.T, recipientID string, rt models.RecipientType) []*models.Notification {
	list, err := f.ledger.FindForRecipient(context.Background(), recipientID, rt, models.ListOptions{Limit: 100, UnreadOnly: true})
	require.NoError(t, err)
	return list
}

func TestWeekNumber(t *testing.T) {
	tests := []struct {
		date time.Time
		want int
	}{
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 1},
		{time.Date(2025, 1, 7, 23, 0, 0, 0, time.UTC), 1},
		{time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), 2},
		{time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), 3},
		{time.Date(2025, 1, 29, 0, 0, 0, 0, time.UTC), 5},
		{time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 53},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WeekNumber(tt.date), tt.date.String())
	}
	assert.Equal(t, 5, WeekNumber(dayOfWeek(5)))
}

func TestSweep_RepeatedSweepsCreateOneReminder(t *testing.T) {
	f := newFixture(t, 1, allocation("a1", true), allocation("a2", true))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		res, err := f.scanner.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Scanned)
		if i == 0 {
			assert.Equal(t, 2, res.RemindersCreated)
			assert.Equal(t, 2, res.Enqueued)
		} else {
			assert.Zero(t, res.RemindersCreated)
			assert.Zero(t, res.Enqueued)
		}
	}

	for _, id := range []string{"a1", "a2"} {
		list := f.unread(t, "fac-"+id, models.RecipientFacilitator)
		require.Len(t, list, 1)
		assert.Equal(t, models.TypeReminder, list[0].Type)
		assert.Equal(t, id, list[0].Related.ID)
		assert.Equal(t, 1, list[0].WeekNumber())
	}
	assert.Len(t, f.enqueuer.intents, 2)
}

func TestSweep_Escalation(t *testing.T) {
	t.Run("week 3 past grace escalates", func(t *testing.T) {
		f := newFixture(t, 3, allocation("a1", true))
		res, err := f.scanner.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.RemindersCreated)
		assert.Equal(t, 1, res.AlertsCreated)

		alerts := f.unread(t, "mgr-1", models.RecipientManager)
		require.Len(t, alerts, 1)
		assert.Equal(t, models.TypeAlert, alerts[0].Type)
		assert.Equal(t, "Grace Hopper", alerts[0].Metadata[models.MetaFacilitatorName])
	})

	t.Run("week 1 only reminds", func(t *testing.T) {
		f := newFixture(t, 1, allocation("a1", true))
		res, err := f.scanner.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.RemindersCreated)
		assert.Zero(t, res.AlertsCreated)
		assert.Empty(t, f.unread(t, "mgr-1", models.RecipientManager))
	})

	t.Run("allocation override raises threshold", func(t *testing.T) {
		alloc := allocation("a1", true)
		four := 4
		alloc.GraceWeeks = &four
		f := newFixture(t, 3, alloc)
		res, err := f.scanner.Sweep(context.Background())
		require.NoError(t, err)
		assert.Zero(t, res.AlertsCreated)
	})
}

func TestSweep_WeekFiveScenario(t *testing.T) {
	f := newFixture(t, 5, allocation("A", true))
	ctx := context.Background()

	res, err := f.scanner.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RemindersCreated)
	assert.Equal(t, 1, res.AlertsCreated)

	reminders := f.unread(t, "fac-A", models.RecipientFacilitator)
	require.Len(t, reminders, 1)
	assert.Equal(t, 5, reminders[0].WeekNumber())
	require.Len(t, f.unread(t, "mgr-1", models.RecipientManager), 1)

	f.records.Submit("A", 5)

	res, err = f.scanner.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Compliant)
	assert.Zero(t, res.RemindersCreated)
	assert.Zero(t, res.AlertsCreated)

	assert.Len(t, f.unread(t, "fac-A", models.RecipientFacilitator), 1, "existing reminder stays until read")
	assert.Len(t, f.unread(t, "mgr-1", models.RecipientManager), 1)
}

func TestSweep_NewWeekCreatesNewReminder(t *testing.T) {
	f := newFixture(t, 1, allocation("a1", false))
	ctx := context.Background()

	_, err := f.scanner.Sweep(ctx)
	require.NoError(t, err)
	f.now = dayOfWeek(2)
	res, err := f.scanner.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RemindersCreated)
	assert.Len(t, f.unread(t, "fac-a1", models.RecipientFacilitator), 2)
}

func TestSweep_FailureIsolation(t *testing.T) {
	noManager := allocation("orphan", false)
	broken := allocation("broken", true)
	healthy := allocation("healthy", true)

	clock := func() time.Time { return dayOfWeek(4) }
	l := ledger.New(ledger.NewMemoryStore(), logger.NewNoOpLogger(), ledger.WithClock(clock))
	records := &MockRecords{HasActiveRecordFunc: func(_ context.Context, id string, _ int) (bool, error) {
		if id == "broken" {
			return false, errors.New("activity_trackers unavailable")
		}
		return false, nil
	}}
	s := NewScanner(NewStaticAllocations(noManager, broken, healthy), records, l, nil, logger.NewNoOpLogger(), WithClock(clock))

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 2, res.RemindersCreated, "orphan still gets its reminder")
	assert.Equal(t, 1, res.AlertsCreated)
	assert.Zero(t, res.Enqueued)

	count, err := l.UnreadCount(context.Background(), "fac-orphan", models.RecipientFacilitator)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSweep_AllocationListFailure(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore(), logger.NewNoOpLogger())
	s := NewScanner(&MockAllocations{ActiveAllocationsFunc: func(context.Context) ([]models.Allocation, error) {
		return nil, errors.New("connection refused")
	}}, NewRecordSet(), l, nil, logger.NewNoOpLogger())

	_, err := s.Sweep(context.Background())
	assert.Error(t, err)
}

func TestSweep_EnqueueFailureDoesNotSkip(t *testing.T) {
	f := newFixture(t, 3, allocation("a1", true))
	f.enqueuer.err = errors.New("redis down")

	res, err := f.scanner.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Enqueued)
	assert.Equal(t, 1, res.RemindersCreated)
	assert.Equal(t, 1, res.AlertsCreated)
}

func TestSweep_IntentsCarryRecipientEmail(t *testing.T) {
	alloc := allocation("a1", true)
	alloc.Facilitator.Email = ""
	f := newFixture(t, 3, alloc)

	res, err := f.scanner.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enqueued, "only the manager has an email channel")
	require.Len(t, f.enqueuer.intents, 1)

	intent := f.enqueuer.intents[0]
	assert.Equal(t, models.TypeAlert, intent.Type)
	assert.Equal(t, "mgr@school.edu", intent.Email)
	assert.Equal(t, "a1", intent.AllocationID)
	assert.Equal(t, 3, intent.WeekNumber)
	assert.NotEmpty(t, intent.NotificationID)
}

func TestSweep_Cancelled(t *testing.T) {
	f := newFixture(t, 1, allocation("a1", true))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.scanner.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticAllocations_FiltersInactive(t *testing.T) {
	inactive := allocation("old", true)
	inactive.IsActive = false
	src := NewStaticAllocations(allocation("a1", true), inactive)

	list, err := src.ActiveAllocations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a1", list[0].ID)
}
