// Package store persists reminders.
package store

import (
	"context"
	"fmt"
	"time"

	"habit-tracker/internal/models"
)

// Store is the durable record of scheduled reminders.
//
// MarkSent, Reschedule and Expire are the scheduler's transitions. They only
// apply to reminders that are still active and report whether a row changed,
// so a reminder cancelled while a tick is in flight stays cancelled.
type Store interface {
	Create(ctx context.Context, r *models.Reminder) error
	Get(ctx context.Context, id string) (*models.Reminder, error)
	FindDue(ctx context.Context, now time.Time) ([]*models.Reminder, error)
	Update(ctx context.Context, id string, patch models.ReminderPatch) (*models.Reminder, error)
	Cancel(ctx context.Context, id string) (*models.Reminder, error)
	ListForUser(ctx context.Context, userID string, entityType *models.EntityType) ([]*models.Reminder, error)
	Stats(ctx context.Context, userID string) (models.ReminderStats, error)

	MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error)
	Reschedule(ctx context.Context, id string, next, sentAt time.Time) (bool, error)
	Expire(ctx context.Context, id string) (bool, error)

	CancelForEntity(ctx context.Context, entityType models.EntityType, entityID string) (int64, error)
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error)
}

func cloneReminder(r *models.Reminder) *models.Reminder {
	if r == nil {
		return nil
	}
	out := *r
	if r.Recurrence != nil {
		rec := cloneRecurrence(*r.Recurrence)
		out.Recurrence = &rec
	}
	if r.Metadata != nil {
		meta := *r.Metadata
		out.Metadata = &meta
	}
	if r.SentAt != nil {
		sentAt := *r.SentAt
		out.SentAt = &sentAt
	}
	return &out
}

func cloneRecurrence(rec models.Recurrence) models.Recurrence {
	if rec.DaysOfWeek != nil {
		rec.DaysOfWeek = append([]int(nil), rec.DaysOfWeek...)
	}
	if rec.EndDate != nil {
		end := *rec.EndDate
		rec.EndDate = &end
	}
	return rec
}

func errDuplicateID(id string) error {
	return fmt.Errorf("reminder %s already exists", id)
}
