// Package outofband nudges users who missed a reminder while offline, by
// email and, for urgent reminders, by SMS.
package outofband

import (
	"context"
	stderrors "errors"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/directory"
	"habit-tracker/internal/models"
)

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	// SMSThreshold is the lowest priority that also goes out by SMS.
	SMSThreshold models.Priority
}

// Notifier implements offline.Notifier.
type Notifier struct {
	config    Config
	directory directory.Directory
	email     EmailSender
	sms       SMSSender
	logger    logger.Logger
}

func NewNotifier(config Config, dir directory.Directory, email EmailSender, sms SMSSender, log logger.Logger) *Notifier {
	if config.SMSThreshold == "" {
		config.SMSThreshold = models.PriorityHigh
	}
	return &Notifier{
		config:    config,
		directory: dir,
		email:     email,
		sms:       sms,
		logger:    log.WithFields(map[string]interface{}{"component": "out-of-band"}),
	}
}

func (n *Notifier) emailOn() bool { return n.config.EmailEnabled && n.email != nil }
func (n *Notifier) smsOn() bool   { return n.config.SMSEnabled && n.sms != nil }

// NotifyQueued sends whichever channels apply to note. Users missing from
// the directory are skipped silently. Both channels are attempted even if
// one fails.
func (n *Notifier) NotifyQueued(ctx context.Context, note *models.Notification) error {
	if !n.emailOn() && !n.smsOn() {
		return nil
	}

	user, err := n.directory.FindByID(ctx, note.UserID)
	if err != nil {
		if errors.IsNotFound(err) {
			n.logger.Debug("No contact details for user", map[string]interface{}{"userId": note.UserID})
			return nil
		}
		return err
	}

	var errs []error

	if n.emailOn() && user.Email != "" {
		if err := n.email.Send(ctx, user.Email, note.Title, note.Message); err != nil {
			errs = append(errs, err)
		} else {
			n.logger.Debug("Reminder emailed", map[string]interface{}{
				"notificationId": note.ID,
				"userId":         note.UserID,
			})
		}
	}

	if n.smsOn() && user.Phone != "" && note.Priority.AtLeast(n.config.SMSThreshold) {
		if err := n.sms.Send(ctx, user.Phone, note.Title); err != nil {
			errs = append(errs, err)
		} else {
			n.logger.Debug("Reminder texted", map[string]interface{}{
				"notificationId": note.ID,
				"userId":         note.UserID,
			})
		}
	}

	return stderrors.Join(errs...)
}
