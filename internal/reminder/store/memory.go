package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/models"
)

// MemoryStore keeps reminders in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	clk       clock.Clock
	seq       int64
	reminders map[string]*models.Reminder
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clk:       clk,
		reminders: make(map[string]*models.Reminder),
	}
}

func (s *MemoryStore) Create(_ context.Context, r *models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := s.reminders[r.ID]; exists {
		return errors.NewDatabaseInsertFailedError(errDuplicateID(r.ID))
	}

	now := s.clk.Now().UTC()
	s.seq++
	r.Seq = s.seq
	r.Status = models.StatusActive
	r.ReminderDate = r.ReminderDate.UTC()
	if r.ReminderType == "" {
		r.ReminderType = models.ReminderOneTime
	}
	r.CreatedAt = now
	r.UpdatedAt = now

	s.reminders[r.ID] = cloneReminder(r)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reminders[id]
	if !ok {
		return nil, errors.NewNotFoundError("reminder", id)
	}
	return cloneReminder(r), nil
}

func (s *MemoryStore) FindDue(_ context.Context, now time.Time) ([]*models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.Reminder
	for _, r := range s.reminders {
		if r.Status == models.StatusActive && !r.ReminderDate.After(now) {
			due = append(due, cloneReminder(r))
		}
	}
	sortByDate(due)
	return due, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, patch models.ReminderPatch) (*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reminders[id]
	if !ok {
		return nil, errors.NewNotFoundError("reminder", id)
	}
	if patch.Empty() {
		return cloneReminder(r), nil
	}

	if patch.ReminderDate != nil {
		r.ReminderDate = patch.ReminderDate.UTC()
	}
	if patch.ReminderType != nil {
		r.ReminderType = *patch.ReminderType
	}
	if patch.ClearRecurrence {
		r.Recurrence = nil
	} else if patch.Recurrence != nil {
		rec := cloneRecurrence(*patch.Recurrence)
		r.Recurrence = &rec
	}
	if patch.Metadata != nil {
		meta := *patch.Metadata
		r.Metadata = &meta
	}
	r.UpdatedAt = s.clk.Now().UTC()
	return cloneReminder(r), nil
}

func (s *MemoryStore) Cancel(_ context.Context, id string) (*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reminders[id]
	if !ok {
		return nil, errors.NewNotFoundError("reminder", id)
	}
	if r.Status != models.StatusCancelled {
		r.Status = models.StatusCancelled
		r.UpdatedAt = s.clk.Now().UTC()
	}
	return cloneReminder(r), nil
}

func (s *MemoryStore) ListForUser(_ context.Context, userID string, entityType *models.EntityType) ([]*models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Reminder
	for _, r := range s.reminders {
		if r.UserID != userID {
			continue
		}
		if entityType != nil && r.EntityType != *entityType {
			continue
		}
		out = append(out, cloneReminder(r))
	}
	sortByDate(out)
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context, userID string) (models.ReminderStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.NewReminderStats()
	for _, r := range s.reminders {
		if r.UserID != userID {
			continue
		}
		stats.Total++
		stats.ByStatus[r.Status]++
		stats.ByType[r.ReminderType]++
	}
	return stats, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, id string, sentAt time.Time) (bool, error) {
	return s.transition(id, func(r *models.Reminder) {
		at := sentAt.UTC()
		r.Status = models.StatusSent
		r.SentAt = &at
	})
}

func (s *MemoryStore) Reschedule(_ context.Context, id string, next, sentAt time.Time) (bool, error) {
	return s.transition(id, func(r *models.Reminder) {
		at := sentAt.UTC()
		r.ReminderDate = next.UTC()
		r.SentAt = &at
	})
}

func (s *MemoryStore) Expire(_ context.Context, id string) (bool, error) {
	return s.transition(id, func(r *models.Reminder) {
		r.Status = models.StatusCancelled
	})
}

func (s *MemoryStore) transition(id string, apply func(r *models.Reminder)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reminders[id]
	if !ok || r.Status != models.StatusActive {
		return false, nil
	}
	apply(r)
	r.UpdatedAt = s.clk.Now().UTC()
	return true, nil
}

func (s *MemoryStore) CancelForEntity(_ context.Context, entityType models.EntityType, entityID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now().UTC()
	var n int64
	for _, r := range s.reminders {
		if r.EntityType == entityType && r.EntityID == entityID && r.Status == models.StatusActive {
			r.Status = models.StatusCancelled
			r.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) PurgeTerminal(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.reminders {
		if r.Status.Terminal() && r.UpdatedAt.Before(olderThan) {
			delete(s.reminders, id)
			n++
		}
	}
	return n, nil
}

func sortByDate(rs []*models.Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].ReminderDate.Equal(rs[j].ReminderDate) {
			return rs[i].ReminderDate.Before(rs[j].ReminderDate)
		}
		return rs[i].Seq < rs[j].Seq
	})
}
