// Package service is the reminder API that entity controllers call.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/jmhodges/clock"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/common/validation"
	"habit-tracker/internal/models"
	"habit-tracker/internal/reminder/store"
)

const DefaultSnoozeMinutes = 15

// Entities resolves the entity a reminder points at.
type Entities interface {
	Has(t models.EntityType) bool
	Resolve(ctx context.Context, t models.EntityType, id string) (*models.Entity, error)
}

type Service struct {
	store    store.Store
	entities Entities
	clk      clock.Clock
	logger   logger.Logger
}

func New(st store.Store, entities Entities, clk clock.Clock, log logger.Logger) *Service {
	return &Service{
		store:    st,
		entities: entities,
		clk:      clk,
		logger:   log.WithFields(map[string]interface{}{"component": "reminder-service"}),
	}
}

// CreateReminder schedules a reminder for an existing entity owned by userID.
func (s *Service) CreateReminder(ctx context.Context, userID string, entityType models.EntityType, entityID string, in CreateInput) (*models.Reminder, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.NewValidationError("userId is required")
	}
	if strings.TrimSpace(entityID) == "" {
		return nil, errors.NewValidationError("entityId is required")
	}
	if !s.entities.Has(entityType) {
		return nil, errors.NewValidationError("unknown entity type " + string(entityType))
	}

	in.Recurrence = normalizeRecurrence(in.Recurrence)
	if err := validate(createValidator, in); err != nil {
		return nil, err
	}
	if in.ReminderType == "" {
		in.ReminderType = models.ReminderOneTime
	}
	if err := checkRecurrence(in.ReminderType, in.Recurrence); err != nil {
		return nil, err
	}

	entity, err := s.entities.Resolve(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if entity.UserID != "" && entity.UserID != userID {
		return nil, errors.NewNotFoundError(string(entityType), entityID)
	}

	r := &models.Reminder{
		UserID:       userID,
		EntityType:   entityType,
		EntityID:     entityID,
		ReminderDate: in.ReminderDate.UTC(),
		ReminderType: in.ReminderType,
		Recurrence:   in.Recurrence,
		Metadata:     in.Metadata,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info("Reminder created", map[string]interface{}{
		"reminderId":   r.ID,
		"userId":       userID,
		"entityType":   entityType,
		"entityId":     entityID,
		"reminderDate": r.ReminderDate,
	})
	return r, nil
}

func (s *Service) UpdateReminder(ctx context.Context, id string, in UpdateInput) (*models.Reminder, error) {
	in.Recurrence = normalizeRecurrence(in.Recurrence)
	if err := validate(updateValidator, in); err != nil {
		return nil, err
	}

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	reminderType := current.ReminderType
	if in.ReminderType != nil {
		reminderType = *in.ReminderType
	}
	rec := current.Recurrence
	if in.ClearRecurrence {
		rec = nil
	} else if in.Recurrence != nil {
		rec = in.Recurrence
	}
	if err := checkRecurrence(reminderType, rec); err != nil {
		return nil, err
	}

	patch := models.ReminderPatch{
		ReminderDate:    in.ReminderDate,
		ReminderType:    in.ReminderType,
		Recurrence:      in.Recurrence,
		ClearRecurrence: in.ClearRecurrence,
		Metadata:        in.Metadata,
	}
	return s.store.Update(ctx, id, patch)
}

// CancelReminder is idempotent: cancelling a cancelled reminder succeeds.
func (s *Service) CancelReminder(ctx context.Context, id string) (*models.Reminder, error) {
	r, err := s.store.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Reminder cancelled", map[string]interface{}{"reminderId": id})
	return r, nil
}

func (s *Service) GetUserReminders(ctx context.Context, userID string, entityType *models.EntityType) ([]*models.Reminder, error) {
	if entityType != nil && !s.entities.Has(*entityType) {
		return nil, errors.NewValidationError("unknown entity type " + string(*entityType))
	}
	return s.store.ListForUser(ctx, userID, entityType)
}

func (s *Service) GetReminderStats(ctx context.Context, userID string) (models.ReminderStats, error) {
	return s.store.Stats(ctx, userID)
}

// SnoozeReminder pushes an active reminder to now plus minutes, or plus
// DefaultSnoozeMinutes when minutes is not positive.
func (s *Service) SnoozeReminder(ctx context.Context, id string, minutes int) (*models.Reminder, error) {
	if minutes <= 0 {
		minutes = DefaultSnoozeMinutes
	}

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusActive {
		return nil, errors.NewValidationError("only active reminders can be snoozed").
			WithMetadata("status", string(current.Status))
	}

	next := s.clk.Now().UTC().Add(time.Duration(minutes) * time.Minute)
	return s.store.Update(ctx, id, models.ReminderPatch{ReminderDate: &next})
}

// CancelEntityReminders cancels every active reminder of one entity and
// returns how many changed.
func (s *Service) CancelEntityReminders(ctx context.Context, entityType models.EntityType, entityID string) (int64, error) {
	n, err := s.store.CancelForEntity(ctx, entityType, entityID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Entity reminders cancelled", map[string]interface{}{
			"entityType": entityType,
			"entityId":   entityID,
			"count":      n,
		})
	}
	return n, nil
}

func validate(v *validation.Validator, in interface{}) error {
	result := v.Validate(in)
	if result.Valid {
		return nil
	}
	return errors.NewValidationError(result.Summary())
}

func checkRecurrence(t models.ReminderType, rec *models.Recurrence) error {
	if t != models.ReminderRecurring {
		return nil
	}
	if rec == nil {
		return errors.NewValidationError("recurrence is required for recurring reminders")
	}
	if rec.Frequency == models.FrequencyCustom && len(rec.DaysOfWeek) == 0 {
		return errors.NewValidationError("recurrence.daysOfWeek is required for custom frequency")
	}
	return nil
}
