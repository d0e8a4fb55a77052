package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"compliance-engine/internal/common/errors"
	"compliance-engine/internal/common/logger"
	"compliance-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLedger(t *testing.T) (*Ledger, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)}
	return New(NewMemoryStore(), logger.NewTestLogger(t), WithClock(clock.Now)), clock
}

func reminderSpec(recipientID, allocationID string, week int) models.NotificationSpec {
	return models.NotificationSpec{
		RecipientID:   recipientID,
		RecipientType: models.RecipientFacilitator,
		Type:          models.TypeReminder,
		Title:         "Weekly compliance report due",
		Message:       "Please submit your report",
		Related:       &models.EntityRef{ID: allocationID, Type: models.EntityAllocation},
		Metadata:      map[string]interface{}{models.MetaWeekNumber: week},
	}
}

func TestCreate_Validation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.NotificationSpec)
	}{
		{"missing recipient", func(s *models.NotificationSpec) { s.RecipientID = "" }},
		{"unknown recipient type", func(s *models.NotificationSpec) { s.RecipientType = "student" }},
		{"unknown type", func(s *models.NotificationSpec) { s.Type = "digest" }},
		{"unknown related type", func(s *models.NotificationSpec) { s.Related.Type = "cohort" }},
		{"empty title", func(s *models.NotificationSpec) { s.Title = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := reminderSpec("fac-1", "alloc-1", 1)
			tt.mutate(&spec)
			_, err := l.Create(ctx, spec)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestCreate_PersistsRecord(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	n, err := l.Create(ctx, reminderSpec("fac-1", "alloc-1", 5))
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, clock.Now(), n.CreatedAt)
	assert.False(t, n.IsRead)
	assert.False(t, n.IsDelivered)
	assert.Equal(t, 5, n.WeekNumber())

	got, err := l.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.Title, got.Title)
	assert.Equal(t, "alloc-1", got.Related.ID)
}

func TestGet_NotFound(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Get(context.Background(), "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestEnsureOutstanding_Idempotent(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	key := DedupKey{Type: models.TypeReminder, RelatedEntityID: "alloc-1", WeekNumber: 5}

	first, created, err := l.EnsureOutstanding(ctx, reminderSpec("fac-1", "alloc-1", 5), key)
	require.NoError(t, err)
	require.True(t, created)
	require.NotNil(t, first)

	for i := 0; i < 3; i++ {
		n, created, err := l.EnsureOutstanding(ctx, reminderSpec("fac-1", "alloc-1", 5), key)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Nil(t, n)
	}

	count, err := l.UnreadCount(ctx, "fac-1", models.RecipientFacilitator)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// a different week is a different cycle
	_, created, err = l.EnsureOutstanding(ctx, reminderSpec("fac-1", "alloc-1", 6),
		DedupKey{Type: models.TypeReminder, RelatedEntityID: "alloc-1", WeekNumber: 6})
	require.NoError(t, err)
	assert.True(t, created)

	// once read, the outstanding reminder no longer blocks creation
	ok, err := l.MarkRead(ctx, first.ID, "fac-1")
	require.NoError(t, err)
	require.True(t, ok)
	_, created, err = l.EnsureOutstanding(ctx, reminderSpec("fac-1", "alloc-1", 5), key)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestEnsureOutstanding_Concurrent(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	key := DedupKey{Type: models.TypeAlert, RelatedEntityID: "alloc-9", WeekNumber: 3}
	spec := reminderSpec("mgr-1", "alloc-9", 3)
	spec.Type = models.TypeAlert
	spec.RecipientType = models.RecipientManager

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := l.EnsureOutstanding(ctx, spec, key)
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, createdCount)
}

func TestEnsureOutstanding_RequiresKey(t *testing.T) {
	l, _ := newTestLedger(t)
	_, _, err := l.EnsureOutstanding(context.Background(), reminderSpec("fac-1", "alloc-1", 1), DedupKey{Type: models.TypeReminder})
	assert.True(t, errors.IsValidation(err))
}

func TestEnsureOutstanding_RejectsZeroWeek(t *testing.T) {
	l, _ := newTestLedger(t)
	spec := reminderSpec("fac-1", "alloc-1", 1)
	spec.Metadata = nil

	_, _, err := l.EnsureOutstanding(context.Background(), spec,
		DedupKey{Type: models.TypeReminder, RelatedEntityID: "alloc-1"})
	assert.True(t, errors.IsValidation(err))
}

func TestEnsureOutstanding_StampsKeyWeek(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	spec := reminderSpec("fac-1", "alloc-1", 1)
	spec.Metadata = nil
	key := DedupKey{Type: models.TypeReminder, RelatedEntityID: "alloc-1", WeekNumber: 4}

	n, created, err := l.EnsureOutstanding(ctx, spec, key)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, 4, n.WeekNumber())

	_, created, err = l.EnsureOutstanding(ctx, spec, key)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestFindForRecipient_NewestFirstAndPagination(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	var ids []string
	for week := 1; week <= 4; week++ {
		n, err := l.Create(ctx, reminderSpec("fac-1", "alloc-1", week))
		require.NoError(t, err)
		ids = append(ids, n.ID)
		clock.Advance(time.Minute)
	}
	_, err := l.Create(ctx, reminderSpec("fac-2", "alloc-2", 1))
	require.NoError(t, err)

	ok, err := l.MarkRead(ctx, ids[3], "fac-1")
	require.NoError(t, err)
	require.True(t, ok)

	all, err := l.FindForRecipient(ctx, "fac-1", models.RecipientFacilitator, models.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ids[3], all[0].ID)
	assert.Equal(t, ids[0], all[3].ID)

	page, err := l.FindForRecipient(ctx, "fac-1", models.RecipientFacilitator, models.ListOptions{Limit: 1, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[2], page[0].ID)

	page, err = l.FindForRecipient(ctx, "fac-1", models.RecipientFacilitator, models.ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)

	count, err := l.UnreadCount(ctx, "fac-1", models.RecipientFacilitator)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestFindForRecipient_InvalidPagination(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	for _, opts := range []models.ListOptions{{Limit: 101}, {Limit: -1}, {Limit: 10, Offset: -1}} {
		_, err := l.FindForRecipient(ctx, "fac-1", models.RecipientFacilitator, opts)
		assert.True(t, errors.IsValidation(err), fmt.Sprintf("%+v", opts))
	}

	_, err := l.FindForRecipient(ctx, "fac-1", "student", models.ListOptions{})
	assert.True(t, errors.IsValidation(err))
}

func TestMarkRead_IdempotentAndOwned(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	n, err := l.Create(ctx, reminderSpec("fac-1", "alloc-1", 2))
	require.NoError(t, err)

	ok, err := l.MarkRead(ctx, n.ID, "fac-2")
	require.NoError(t, err)
	assert.False(t, ok, "foreign recipient must not mark read")

	ok, err = l.MarkRead(ctx, n.ID, "fac-1")
	require.NoError(t, err)
	assert.True(t, ok)
	first, err := l.Get(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, first.ReadAt)

	clock.Advance(time.Hour)
	ok, err = l.MarkRead(ctx, n.ID, "fac-1")
	require.NoError(t, err)
	assert.False(t, ok)

	second, err := l.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, second.IsRead)
	assert.Equal(t, *first.ReadAt, *second.ReadAt)

	ok, err = l.MarkRead(ctx, "missing", "fac-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkAllRead_ConcurrentWithMarkRead(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	var ids []string
	for week := 1; week <= 10; week++ {
		n, err := l.Create(ctx, reminderSpec("fac-1", "alloc-1", week))
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	wg.Add(1)
	go func() {
		defer wg.Done()
		n, err := l.MarkAllRead(ctx, "fac-1", models.RecipientFacilitator)
		assert.NoError(t, err)
		mu.Lock()
		total += n
		mu.Unlock()
	}()
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			ok, err := l.MarkRead(ctx, id, "fac-1")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				total++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 10, total, "each notification transitions exactly once")
	count, err := l.UnreadCount(ctx, "fac-1", models.RecipientFacilitator)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkDelivered(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	n, err := l.Create(ctx, reminderSpec("fac-1", "alloc-1", 2))
	require.NoError(t, err)

	require.NoError(t, l.MarkDelivered(ctx, n.ID))
	first, err := l.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, first.IsDelivered)
	assert.False(t, first.IsRead)

	clock.Advance(time.Hour)
	require.NoError(t, l.MarkDelivered(ctx, n.ID))
	second, err := l.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.DeliveredAt, *second.DeliveredAt)

	assert.True(t, errors.IsNotFound(l.MarkDelivered(ctx, "missing")))
}

func TestNormalizeListOptions(t *testing.T) {
	opts, err := NormalizeListOptions(models.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, opts.Limit)

	opts, err = NormalizeListOptions(models.ListOptions{Limit: 100, Offset: 5})
	require.NoError(t, err)
	assert.Equal(t, 100, opts.Limit)
	assert.Equal(t, 5, opts.Offset)
}
