package service

import (
	"context"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/models"
	"habit-tracker/internal/reminder/registry"
	"habit-tracker/internal/reminder/store"
)

var baseTime = time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clk   clock.FakeClock
	store *store.MemoryStore
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake()
	clk.Set(baseTime)

	owners := map[string]string{"t-1": "u-1", "t-2": "u-1", "t-other": "u-2", "h-1": "u-1"}
	lookup := registry.LookupFunc(func(_ context.Context, id string) (*models.Entity, error) {
		owner, ok := owners[id]
		if !ok {
			return nil, registry.ErrEntityNotFound
		}
		return &models.Entity{ID: id, UserID: owner, Title: "entity " + id}, nil
	})

	reg := registry.New()
	require.NoError(t, reg.Register(models.EntityTask, registry.Entry{Lookup: lookup}))
	require.NoError(t, reg.Register(models.EntityHabit, registry.Entry{Lookup: lookup}))

	st := store.NewMemoryStore(clk)
	return &fixture{clk: clk, store: st, svc: New(st, reg, clk, logger.NewTestLogger(t))}
}

func at(t time.Time) *time.Time { return &t }

func TestCreateReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReminder(ctx, "u-1", models.EntityTask, "t-1", CreateInput{
		ReminderDate: at(baseTime.Add(time.Hour)),
		Metadata:     &models.ReminderMetadata{Priority: models.PriorityHigh},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, models.StatusActive, r.Status)
	assert.Equal(t, models.ReminderOneTime, r.ReminderType)
	assert.Equal(t, baseTime.Add(time.Hour), r.ReminderDate)

	stored, err := f.store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, stored.Metadata.Priority)
}

func TestCreateReminder_RecurringDefaultsInterval(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.CreateReminder(context.Background(), "u-1", models.EntityHabit, "h-1", CreateInput{
		ReminderDate: at(baseTime),
		ReminderType: models.ReminderRecurring,
		Recurrence:   &models.Recurrence{Frequency: models.FrequencyWeekly},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Recurrence.Interval)
}

func TestCreateReminder_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		entityType models.EntityType
		entityID   string
		input      CreateInput
		notFound   bool
		contains   string
	}{
		{
			name:       "missing reminder date",
			entityType: models.EntityTask,
			entityID:   "t-1",
			input:      CreateInput{},
			contains:   "reminderDate",
		},
		{
			name:       "unknown entity type",
			entityType: "journal",
			entityID:   "j-1",
			input:      CreateInput{ReminderDate: at(baseTime)},
			contains:   "unknown entity type",
		},
		{
			name:       "missing entity id",
			entityType: models.EntityTask,
			input:      CreateInput{ReminderDate: at(baseTime)},
			contains:   "entityId is required",
		},
		{
			name:       "missing user",
			userID:     " ",
			entityType: models.EntityTask,
			entityID:   "t-1",
			input:      CreateInput{ReminderDate: at(baseTime)},
			contains:   "userId is required",
		},
		{
			name:       "unknown reminder type",
			entityType: models.EntityTask,
			entityID:   "t-1",
			input:      CreateInput{ReminderDate: at(baseTime), ReminderType: "hourly"},
			contains:   "reminderType",
		},
		{
			name:       "recurring without rule",
			entityType: models.EntityTask,
			entityID:   "t-1",
			input:      CreateInput{ReminderDate: at(baseTime), ReminderType: models.ReminderRecurring},
			contains:   "recurrence is required",
		},
		{
			name:       "custom without weekdays",
			entityType: models.EntityTask,
			entityID:   "t-1",
			input: CreateInput{
				ReminderDate: at(baseTime),
				ReminderType: models.ReminderRecurring,
				Recurrence:   &models.Recurrence{Frequency: models.FrequencyCustom},
			},
			contains: "daysOfWeek",
		},
		{
			name:       "weekday out of range",
			entityType: models.EntityTask,
			entityID:   "t-1",
			input: CreateInput{
				ReminderDate: at(baseTime),
				ReminderType: models.ReminderRecurring,
				Recurrence:   &models.Recurrence{Frequency: models.FrequencyCustom, DaysOfWeek: []int{1, 7}},
			},
			contains: "daysOfWeek",
		},
		{
			name:       "negative interval",
			entityType: models.EntityTask,
			entityID:   "t-1",
			input: CreateInput{
				ReminderDate: at(baseTime),
				ReminderType: models.ReminderRecurring,
				Recurrence:   &models.Recurrence{Frequency: models.FrequencyDaily, Interval: -2},
			},
			contains: "interval",
		},
		{
			name:       "interval above maximum",
			entityType: models.EntityTask,
			entityID:   "t-1",
			input: CreateInput{
				ReminderDate: at(baseTime),
				ReminderType: models.ReminderRecurring,
				Recurrence:   &models.Recurrence{Frequency: models.FrequencyCustom, Interval: 2_000_000_000, DaysOfWeek: []int{6}},
			},
			contains: "interval",
		},
		{
			name:       "unknown priority",
			entityType: models.EntityTask,
			entityID:   "t-1",
			input: CreateInput{
				ReminderDate: at(baseTime),
				Metadata:     &models.ReminderMetadata{Priority: "urgent"},
			},
			contains: "priority",
		},
		{
			name:       "absent entity",
			entityType: models.EntityTask,
			entityID:   "t-missing",
			input:      CreateInput{ReminderDate: at(baseTime)},
			notFound:   true,
		},
		{
			name:       "entity of another user",
			entityType: models.EntityTask,
			entityID:   "t-other",
			input:      CreateInput{ReminderDate: at(baseTime)},
			notFound:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			userID := tt.userID
			if userID == "" {
				userID = "u-1"
			}

			_, err := f.svc.CreateReminder(context.Background(), userID, tt.entityType, tt.entityID, tt.input)
			require.Error(t, err)

			if tt.notFound {
				assert.True(t, errors.IsNotFound(err), "got %v", err)
				return
			}
			require.True(t, errors.IsValidation(err), "got %v", err)
			stdErr, _ := errors.AsStandardError(err)
			assert.Contains(t, stdErr.Details, tt.contains)
		})
	}
}

func TestUpdateReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReminder(ctx, "u-1", models.EntityTask, "t-1", CreateInput{ReminderDate: at(baseTime)})
	require.NoError(t, err)

	recurring := models.ReminderRecurring
	_, err = f.svc.UpdateReminder(ctx, r.ID, UpdateInput{ReminderType: &recurring})
	assert.True(t, errors.IsValidation(err), "switching to recurring needs a rule")

	updated, err := f.svc.UpdateReminder(ctx, r.ID, UpdateInput{
		ReminderDate: at(baseTime.Add(2 * time.Hour)),
		ReminderType: &recurring,
		Recurrence:   &models.Recurrence{Frequency: models.FrequencyDaily},
		Metadata:     &models.ReminderMetadata{Title: "Rent day"},
	})
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(2*time.Hour), updated.ReminderDate)
	assert.Equal(t, models.ReminderRecurring, updated.ReminderType)
	assert.Equal(t, 1, updated.Recurrence.Interval)
	assert.Equal(t, "Rent day", updated.Metadata.Title)

	_, err = f.svc.UpdateReminder(ctx, r.ID, UpdateInput{ClearRecurrence: true})
	assert.True(t, errors.IsValidation(err), "a recurring reminder keeps its rule")

	_, err = f.svc.UpdateReminder(ctx, "missing", UpdateInput{ReminderDate: at(baseTime)})
	assert.True(t, errors.IsNotFound(err))
}

func TestCancelReminder_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReminder(ctx, "u-1", models.EntityTask, "t-1", CreateInput{ReminderDate: at(baseTime)})
	require.NoError(t, err)

	first, err := f.svc.CancelReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, first.Status)

	second, err := f.svc.CancelReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, second.Status)

	_, err = f.svc.CancelReminder(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestGetUserRemindersAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	later, err := f.svc.CreateReminder(ctx, "u-1", models.EntityTask, "t-1", CreateInput{ReminderDate: at(baseTime.Add(time.Hour))})
	require.NoError(t, err)
	sooner, err := f.svc.CreateReminder(ctx, "u-1", models.EntityHabit, "h-1", CreateInput{
		ReminderDate: at(baseTime),
		ReminderType: models.ReminderRecurring,
		Recurrence:   &models.Recurrence{Frequency: models.FrequencyDaily},
	})
	require.NoError(t, err)
	_, err = f.svc.CancelReminder(ctx, later.ID)
	require.NoError(t, err)

	all, err := f.svc.GetUserReminders(ctx, "u-1", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, sooner.ID, all[0].ID)
	assert.Equal(t, later.ID, all[1].ID)

	habit := models.EntityHabit
	habits, err := f.svc.GetUserReminders(ctx, "u-1", &habit)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	assert.Equal(t, sooner.ID, habits[0].ID)

	unknown := models.EntityType("journal")
	_, err = f.svc.GetUserReminders(ctx, "u-1", &unknown)
	assert.True(t, errors.IsValidation(err))

	stats, err := f.svc.GetReminderStats(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[models.StatusActive])
	assert.Equal(t, 1, stats.ByStatus[models.StatusCancelled])
	assert.Equal(t, 0, stats.ByStatus[models.StatusSent])
	assert.Equal(t, 1, stats.ByType[models.ReminderOneTime])
	assert.Equal(t, 1, stats.ByType[models.ReminderRecurring])
}

func TestSnoozeReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReminder(ctx, "u-1", models.EntityTask, "t-1", CreateInput{ReminderDate: at(baseTime)})
	require.NoError(t, err)

	snoozed, err := f.svc.SnoozeReminder(ctx, r.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(15*time.Minute), snoozed.ReminderDate)

	f.clk.Add(time.Hour)
	snoozed, err = f.svc.SnoozeReminder(ctx, r.ID, 45)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(time.Hour+45*time.Minute), snoozed.ReminderDate)

	_, err = f.svc.CancelReminder(ctx, r.ID)
	require.NoError(t, err)
	_, err = f.svc.SnoozeReminder(ctx, r.ID, 10)
	assert.True(t, errors.IsValidation(err))

	_, err = f.svc.SnoozeReminder(ctx, "missing", 10)
	assert.True(t, errors.IsNotFound(err))
}

func TestCancelEntityReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.CreateReminder(ctx, "u-1", models.EntityTask, "t-2", CreateInput{ReminderDate: at(baseTime.Add(time.Duration(i) * time.Hour))})
		require.NoError(t, err)
	}
	other, err := f.svc.CreateReminder(ctx, "u-1", models.EntityTask, "t-1", CreateInput{ReminderDate: at(baseTime)})
	require.NoError(t, err)

	n, err := f.svc.CancelEntityReminders(ctx, models.EntityTask, "t-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	kept, err := f.store.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, kept.Status)
}
