// Package dispatchreminders runs the reminder tick: it delivers every due
// reminder and moves it to its next state.
package dispatchreminders

import (
	"context"
	"time"

	"github.com/jmhodges/clock"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/common/metrics"
	"habit-tracker/internal/delivery/push"
	"habit-tracker/internal/models"
	"habit-tracker/internal/reminder/recurrence"
	"habit-tracker/internal/reminder/store"
)

const TaskType = "dispatch-reminders"

// Sender is the real-time channel. Flush replays the user's backlog if they
// are connected now.
type Sender interface {
	SendToUser(ctx context.Context, userID string, ev push.Event) bool
	Flush(ctx context.Context, userID string) (int, error)
}

// Enqueuer is the offline fallback.
type Enqueuer interface {
	Enqueue(ctx context.Context, userID string, payload models.NotificationPayload) (*models.Notification, error)
}

// Entities resolves and renders the entity behind a reminder.
type Entities interface {
	Resolve(ctx context.Context, t models.EntityType, id string) (*models.Entity, error)
	Render(t models.EntityType, entity *models.Entity, meta *models.ReminderMetadata) (string, string)
}

type Handler struct {
	config     *Config
	store      store.Store
	entities   Entities
	sender     Sender
	queue      Enqueuer
	clk        clock.Clock
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, st store.Store, entities Entities, sender Sender, queue Enqueuer, clk clock.Clock, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		store:      st,
		entities:   entities,
		sender:     sender,
		queue:      queue,
		clk:        clk,
		errHandler: errors.NewErrorHandler(log),
		logger:     log,
	}
}

// Run adapts Tick to a scheduler job.
func (h *Handler) Run(ctx context.Context) error {
	_, err := h.Tick(ctx)
	return err
}

// Tick processes every reminder due now, earliest first. A failure on one
// reminder is logged and leaves it active for the next tick; only a failed
// due scan fails the tick.
func (h *Handler) Tick(ctx context.Context) (*TickReport, error) {
	started := time.Now()
	defer func() {
		metrics.ReminderTickDuration.Observe(time.Since(started).Seconds())
	}()

	now := h.clk.Now().UTC()
	due, err := h.store.FindDue(ctx, now)
	if err != nil {
		tickErr := errors.NewSchedulerTickError("", err)
		h.errHandler.Handle(TaskType, tickErr, nil)
		return nil, tickErr
	}

	report := &TickReport{Due: len(due)}
	for _, r := range due {
		if ctx.Err() != nil {
			h.logger.Warn("Tick interrupted, remaining reminders deferred", map[string]interface{}{
				"remaining": len(due) - report.processed(),
			})
			break
		}

		o, err := h.process(ctx, r, now)
		if err != nil {
			report.Failed++
			metrics.ReminderTickOutcomes.WithLabelValues("failed").Inc()
			h.errHandler.Handle(TaskType, errors.NewSchedulerTickError(r.ID, err), map[string]interface{}{
				"reminderId": r.ID,
				"entityType": r.EntityType,
				"entityId":   r.EntityID,
			})
			continue
		}
		report.add(o)
		recordOutcome(o)
	}

	fields := map[string]interface{}{
		"due":         report.Due,
		"delivered":   report.Delivered,
		"queued":      report.Queued,
		"sent":        report.Sent,
		"rescheduled": report.Rescheduled,
		"cancelled":   report.Cancelled,
		"failed":      report.Failed,
		"skipped":     report.Skipped,
	}
	if report.Due > 0 {
		h.logger.Info("Tick completed", fields)
	} else {
		h.logger.Debug("Tick completed", fields)
	}
	return report, nil
}

func (h *Handler) process(ctx context.Context, r *models.Reminder, now time.Time) (outcome, error) {
	entity, err := h.entities.Resolve(ctx, r.EntityType, r.EntityID)
	if err != nil {
		if !errors.IsNotFound(err) {
			return outcome{}, err
		}
		if _, err := h.store.Cancel(ctx, r.ID); err != nil {
			if errors.IsNotFound(err) {
				return outcome{result: resultSkipped}, nil
			}
			return outcome{}, err
		}
		h.logger.Info("Entity gone, reminder cancelled", map[string]interface{}{
			"reminderId": r.ID,
			"entityType": r.EntityType,
			"entityId":   r.EntityID,
		})
		return outcome{result: resultCancelled}, nil
	}

	payload := h.buildPayload(r, entity, now)

	var o outcome
	if h.sender.SendToUser(ctx, r.UserID, push.Event{Name: push.EventReminderNotification, Data: payload}) {
		o.delivered = true
	} else {
		if _, err := h.queue.Enqueue(ctx, r.UserID, payload); err != nil {
			return outcome{}, err
		}
		o.queued = true
		h.flush(ctx, r.UserID)
	}

	o.result, err = h.complete(ctx, r, now)
	return o, err
}

// flush covers a user who connected between the failed send and the
// enqueue. Failures leave the row queued for the next connect.
func (h *Handler) flush(ctx context.Context, userID string) {
	n, err := h.sender.Flush(ctx, userID)
	if err != nil {
		h.logger.WithError(err).Warn("Backlog flush failed", map[string]interface{}{"userId": userID})
		return
	}
	if n > 0 {
		h.logger.Debug("Queued notifications flushed to late connection", map[string]interface{}{
			"userId":    userID,
			"delivered": n,
		})
	}
}

func (h *Handler) buildPayload(r *models.Reminder, entity *models.Entity, now time.Time) models.NotificationPayload {
	title, message := h.entities.Render(r.EntityType, entity, r.Metadata)

	priority := models.PriorityMedium
	if r.Metadata != nil && r.Metadata.Priority != "" {
		priority = r.Metadata.Priority
	}

	return models.NotificationPayload{
		ID:         r.ID,
		Type:       models.NotificationReminder,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Title:      title,
		Message:    message,
		Priority:   priority,
		Timestamp:  now,
	}
}

func (h *Handler) complete(ctx context.Context, r *models.Reminder, now time.Time) (result, error) {
	if r.ReminderType != models.ReminderRecurring {
		changed, err := h.store.MarkSent(ctx, r.ID, now)
		return transitioned(changed, resultSent), err
	}

	if next, ok := h.nextOccurrence(r, now); ok {
		changed, err := h.store.Reschedule(ctx, r.ID, next, now)
		return transitioned(changed, resultRescheduled), err
	}

	changed, err := h.store.Expire(ctx, r.ID)
	return transitioned(changed, resultCancelled), err
}

// nextOccurrence steps the rule from the reminder's date until it passes
// now, so a reminder processed late fires once rather than once per missed
// occurrence. After MaxCatchUp steps the date may still be in the past; the
// following ticks continue from there. Steps are anchored on the scheduled
// date, not the processing time, so the time of day does not drift with
// tick latency and the end date is compared against the scheduled
// occurrence.
func (h *Handler) nextOccurrence(r *models.Reminder, now time.Time) (time.Time, bool) {
	next, ok := recurrence.Next(r.ReminderDate, r.Recurrence)
	for i := 0; ok && !next.After(now) && i < h.config.MaxCatchUp; i++ {
		next, ok = recurrence.Next(next, r.Recurrence)
	}
	return next, ok
}

func transitioned(changed bool, r result) result {
	if !changed {
		return resultSkipped
	}
	return r
}

func recordOutcome(o outcome) {
	if o.delivered {
		metrics.ReminderTickOutcomes.WithLabelValues("delivered").Inc()
	}
	if o.queued {
		metrics.ReminderTickOutcomes.WithLabelValues("queued").Inc()
	}
	metrics.ReminderTickOutcomes.WithLabelValues(string(o.result)).Inc()
}
