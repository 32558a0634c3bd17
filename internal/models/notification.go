// internal/models/notification.go
package models

import "time"

type NotificationType string

const (
	NotificationReminder    NotificationType = "reminder"
	NotificationSystem      NotificationType = "system"
	NotificationAchievement NotificationType = "achievement"
)

// Notification is an offline queue entry, created when real-time delivery fails.
type Notification struct {
	ID          string           `json:"id"`
	Seq         int64            `json:"-"`
	UserID      string           `json:"userId"`
	Type        NotificationType `json:"type"`
	EntityType  EntityType       `json:"entityType,omitempty"`
	EntityID    string           `json:"entityId,omitempty"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Priority    Priority         `json:"priority"`
	Read        bool             `json:"read"`
	Delivered   bool             `json:"delivered"`
	DeliveredAt *time.Time       `json:"deliveredAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NotificationPayload is the body of a reminder_notification event.
type NotificationPayload struct {
	ID         string           `json:"id"`
	Type       NotificationType `json:"type"`
	EntityType EntityType       `json:"entityType,omitempty"`
	EntityID   string           `json:"entityId,omitempty"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Priority   Priority         `json:"priority,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Payload renders a queued notification for replay, stamped with its creation time.
func (n *Notification) Payload() NotificationPayload {
	return NotificationPayload{
		ID:         n.ID,
		Type:       n.Type,
		EntityType: n.EntityType,
		EntityID:   n.EntityID,
		Title:      n.Title,
		Message:    n.Message,
		Priority:   n.Priority,
		Timestamp:  n.CreatedAt,
	}
}
