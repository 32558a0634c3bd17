// Package offline holds notifications for users without a live connection
// and replays them when the user reconnects.
package offline

import (
	"context"
	"strings"
	"time"

	"github.com/jmhodges/clock"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/common/metrics"
	"habit-tracker/internal/models"
)

// Store persists queued notifications.
type Store interface {
	Insert(ctx context.Context, n *models.Notification) error
	// Pending returns undelivered notifications in creation order.
	Pending(ctx context.Context, userID string) ([]*models.Notification, error)
	// MarkDelivered flips delivered once; it reports false if already delivered.
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
	MarkRead(ctx context.Context, userID, id string) (bool, error)
}

// Pusher writes one replayed notification to the user's connection.
type Pusher interface {
	Push(ctx context.Context, userID string, payload models.NotificationPayload) error
}

// PusherFunc adapts a function to Pusher.
type PusherFunc func(ctx context.Context, userID string, payload models.NotificationPayload) error

func (f PusherFunc) Push(ctx context.Context, userID string, payload models.NotificationPayload) error {
	return f(ctx, userID, payload)
}

// Notifier is told about every queued notification, e.g. to nudge the user
// by email. Its failures never fail Enqueue.
type Notifier interface {
	NotifyQueued(ctx context.Context, n *models.Notification) error
}

type Queue struct {
	store    Store
	notifier Notifier
	clk      clock.Clock
	logger   logger.Logger
}

type Option func(*Queue)

func WithNotifier(n Notifier) Option {
	return func(q *Queue) { q.notifier = n }
}

func NewQueue(store Store, clk clock.Clock, log logger.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:  store,
		clk:    clk,
		logger: log.WithFields(map[string]interface{}{"component": "offline-queue"}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue stores payload for userID with delivered=false.
func (q *Queue) Enqueue(ctx context.Context, userID string, payload models.NotificationPayload) (*models.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.NewValidationError("userId is required")
	}
	if strings.TrimSpace(payload.Title) == "" {
		return nil, errors.NewValidationError("title is required")
	}
	if strings.TrimSpace(payload.Message) == "" {
		return nil, errors.NewValidationError("message is required")
	}

	n := &models.Notification{
		UserID:     userID,
		Type:       payload.Type,
		EntityType: payload.EntityType,
		EntityID:   payload.EntityID,
		Title:      payload.Title,
		Message:    payload.Message,
		Priority:   payload.Priority,
		CreatedAt:  q.clk.Now().UTC(),
	}
	if n.Type == "" {
		n.Type = models.NotificationReminder
	}
	if n.Priority == "" {
		n.Priority = models.PriorityMedium
	}

	if err := q.store.Insert(ctx, n); err != nil {
		return nil, err
	}
	metrics.OfflineNotifications.WithLabelValues("enqueued").Inc()

	q.logger.Debug("Notification queued", map[string]interface{}{
		"notificationId": n.ID,
		"userId":         userID,
	})

	if q.notifier != nil {
		if err := q.notifier.NotifyQueued(ctx, n); err != nil {
			q.logger.WithError(err).Warn("Out-of-band nudge failed", map[string]interface{}{
				"notificationId": n.ID,
				"userId":         userID,
			})
		}
	}

	return n, nil
}

// Drain pushes every pending notification for userID in creation order and
// marks each delivered after its push. It stops at the first push failure;
// entries already pushed stay delivered, the rest stay pending.
func (q *Queue) Drain(ctx context.Context, userID string, pusher Pusher) (int, error) {
	pending, err := q.store.Pending(ctx, userID)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, n := range pending {
		if err := pusher.Push(ctx, userID, n.Payload()); err != nil {
			return delivered, errors.NewDeliveryError(userID, err).WithMetadata("notificationId", n.ID)
		}

		marked, err := q.store.MarkDelivered(ctx, n.ID, q.clk.Now().UTC())
		if err != nil {
			return delivered, err
		}
		if marked {
			delivered++
			metrics.OfflineNotifications.WithLabelValues("delivered").Inc()
		}
	}

	if delivered > 0 {
		q.logger.Info("Drained offline notifications", map[string]interface{}{
			"userId":    userID,
			"delivered": delivered,
		})
	}
	return delivered, nil
}

// MarkRead flags a notification owned by userID as read.
func (q *Queue) MarkRead(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.NewValidationError("notificationId is required")
	}
	ok, err := q.store.MarkRead(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewNotFoundError("notification", id)
	}
	metrics.OfflineNotifications.WithLabelValues("read").Inc()
	return nil
}
