package service

import (
	"context"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/models"
)

// Hooks are the calls entity controllers make around their own writes. A
// failing hook is logged and swallowed: the entity write has already
// happened and must not be undone by a reminder problem.
type Hooks struct {
	svc        *Service
	errHandler *errors.ErrorHandler
}

func NewHooks(svc *Service, log logger.Logger) *Hooks {
	return &Hooks{
		svc:        svc,
		errHandler: errors.NewErrorHandler(log.WithFields(map[string]interface{}{"component": "reminder-hooks"})),
	}
}

// OnEntityCreated schedules the reminder requested alongside a new entity,
// if any.
func (h *Hooks) OnEntityCreated(ctx context.Context, userID string, entityType models.EntityType, entityID string, in *CreateInput) *models.Reminder {
	if in == nil || in.ReminderDate == nil {
		return nil
	}
	r, err := h.svc.CreateReminder(ctx, userID, entityType, entityID, *in)
	if err != nil {
		h.errHandler.Handle("hooks.entity_created", err, map[string]interface{}{
			"userId":     userID,
			"entityType": entityType,
			"entityId":   entityID,
		})
		return nil
	}
	return r
}

// OnEntityUpdated replaces the entity's active reminders with the requested
// one. A nil input only cancels.
func (h *Hooks) OnEntityUpdated(ctx context.Context, userID string, entityType models.EntityType, entityID string, in *CreateInput) *models.Reminder {
	if _, err := h.svc.CancelEntityReminders(ctx, entityType, entityID); err != nil {
		h.errHandler.Handle("hooks.entity_updated", err, map[string]interface{}{
			"entityType": entityType,
			"entityId":   entityID,
		})
		return nil
	}
	return h.OnEntityCreated(ctx, userID, entityType, entityID, in)
}

func (h *Hooks) OnEntityDeleted(ctx context.Context, entityType models.EntityType, entityID string) {
	if _, err := h.svc.CancelEntityReminders(ctx, entityType, entityID); err != nil {
		h.errHandler.Handle("hooks.entity_deleted", err, map[string]interface{}{
			"entityType": entityType,
			"entityId":   entityID,
		})
	}
}
