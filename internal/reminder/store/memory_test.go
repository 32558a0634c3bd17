package store

import (
	"context"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/models"
)

var baseTime = time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)

func newMemoryStore(t *testing.T) (*MemoryStore, clock.FakeClock) {
	t.Helper()
	clk := clock.NewFake()
	clk.Set(baseTime)
	return NewMemoryStore(clk), clk
}

func newReminder(userID string, entityType models.EntityType, entityID string, at time.Time) *models.Reminder {
	return &models.Reminder{
		UserID:       userID,
		EntityType:   entityType,
		EntityID:     entityID,
		ReminderDate: at,
		ReminderType: models.ReminderOneTime,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s, _ := newMemoryStore(t)
	ctx := context.Background()

	r := newReminder("u-1", models.EntityTask, "t-1", baseTime.Add(time.Hour))
	r.Metadata = &models.ReminderMetadata{Title: "Custom"}
	require.NoError(t, s.Create(ctx, r))

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, models.StatusActive, r.Status)
	assert.Equal(t, int64(1), r.Seq)
	assert.Equal(t, baseTime, r.CreatedAt)

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	// returned reminders are copies
	got.Metadata.Title = "mutated"
	again, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Custom", again.Metadata.Title)

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	dup := newReminder("u-1", models.EntityTask, "t-1", baseTime)
	dup.ID = r.ID
	assert.Error(t, s.Create(ctx, dup))
}

func TestMemoryStore_FindDueOrdering(t *testing.T) {
	s, _ := newMemoryStore(t)
	ctx := context.Background()
	now := baseTime

	atNow := newReminder("u-1", models.EntityTask, "t-3", now)
	minus1 := newReminder("u-1", models.EntityTask, "t-2", now.Add(-time.Minute))
	minus2 := newReminder("u-1", models.EntityTask, "t-1", now.Add(-2*time.Minute))
	tieLater := newReminder("u-2", models.EntityHabit, "h-1", now.Add(-time.Minute))
	future := newReminder("u-1", models.EntityTask, "t-4", now.Add(time.Second))
	cancelled := newReminder("u-1", models.EntityTask, "t-5", now.Add(-time.Hour))

	for _, r := range []*models.Reminder{atNow, minus1, minus2, tieLater, future, cancelled} {
		require.NoError(t, s.Create(ctx, r))
	}
	_, err := s.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)

	due, err := s.FindDue(ctx, now)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, r := range due {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{minus2.ID, minus1.ID, tieLater.ID, atNow.ID}, ids)
}

func TestMemoryStore_UpdateCancel(t *testing.T) {
	s, clk := newMemoryStore(t)
	ctx := context.Background()

	r := newReminder("u-1", models.EntityTask, "t-1", baseTime)
	require.NoError(t, s.Create(ctx, r))

	clk.Add(time.Minute)
	next := baseTime.Add(24 * time.Hour)
	recurring := models.ReminderRecurring
	updated, err := s.Update(ctx, r.ID, models.ReminderPatch{
		ReminderDate: &next,
		ReminderType: &recurring,
		Recurrence:   &models.Recurrence{Frequency: models.FrequencyDaily, Interval: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, next, updated.ReminderDate)
	assert.Equal(t, models.ReminderRecurring, updated.ReminderType)
	assert.Equal(t, models.FrequencyDaily, updated.Recurrence.Frequency)
	assert.Equal(t, baseTime.Add(time.Minute), updated.UpdatedAt)

	oneTime := models.ReminderOneTime
	updated, err = s.Update(ctx, r.ID, models.ReminderPatch{ReminderType: &oneTime, ClearRecurrence: true})
	require.NoError(t, err)
	assert.Nil(t, updated.Recurrence)

	_, err = s.Update(ctx, "missing", models.ReminderPatch{ReminderDate: &next})
	assert.True(t, errors.IsNotFound(err))

	cancelled, err := s.Cancel(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	clk.Add(time.Hour)
	again, err := s.Cancel(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, again.Status)
	assert.Equal(t, cancelled.UpdatedAt, again.UpdatedAt)

	_, err = s.Cancel(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryStore_TransitionsOnlyFromActive(t *testing.T) {
	s, _ := newMemoryStore(t)
	ctx := context.Background()

	r := newReminder("u-1", models.EntityTask, "t-1", baseTime)
	require.NoError(t, s.Create(ctx, r))

	ok, err := s.Reschedule(ctx, r.ID, baseTime.Add(24*time.Hour), baseTime)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkSent(ctx, r.ID, baseTime)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, baseTime, *got.SentAt)

	for name, fn := range map[string]func() (bool, error){
		"mark sent":  func() (bool, error) { return s.MarkSent(ctx, r.ID, baseTime) },
		"reschedule": func() (bool, error) { return s.Reschedule(ctx, r.ID, baseTime, baseTime) },
		"expire":     func() (bool, error) { return s.Expire(ctx, r.ID) },
		"missing":    func() (bool, error) { return s.Expire(ctx, "missing") },
	} {
		t.Run(name, func(t *testing.T) {
			ok, err := fn()
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	got, err = s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, got.Status)
}

func TestMemoryStore_ListStatsCascadePurge(t *testing.T) {
	s, clk := newMemoryStore(t)
	ctx := context.Background()

	a := newReminder("u-1", models.EntityTask, "t-1", baseTime.Add(2*time.Hour))
	b := newReminder("u-1", models.EntityTask, "t-1", baseTime.Add(time.Hour))
	c := newReminder("u-1", models.EntityHabit, "h-1", baseTime)
	c.ReminderType = models.ReminderRecurring
	c.Recurrence = &models.Recurrence{Frequency: models.FrequencyDaily, Interval: 1}
	other := newReminder("u-2", models.EntityTask, "t-9", baseTime)
	for _, r := range []*models.Reminder{a, b, c, other} {
		require.NoError(t, s.Create(ctx, r))
	}

	all, err := s.ListForUser(ctx, "u-1", nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	task := models.EntityTask
	tasks, err := s.ListForUser(ctx, "u-1", &task)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	n, err := s.CancelForEntity(ctx, models.EntityTask, "t-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stats, err := s.Stats(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[models.StatusCancelled])
	assert.Equal(t, 1, stats.ByStatus[models.StatusActive])
	assert.Equal(t, 0, stats.ByStatus[models.StatusSent])
	assert.Equal(t, 2, stats.ByType[models.ReminderOneTime])
	assert.Equal(t, 1, stats.ByType[models.ReminderRecurring])

	// terminal reminders younger than the cutoff survive
	purged, err := s.PurgeTerminal(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)

	clk.Add(31 * 24 * time.Hour)
	purged, err = s.PurgeTerminal(ctx, clk.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	_, err = s.Get(ctx, c.ID)
	assert.NoError(t, err)
	_, err = s.Get(ctx, a.ID)
	assert.True(t, errors.IsNotFound(err))
}
