// Package push delivers events to connected clients over WebSocket.
package push

import (
	"context"
	"encoding/json"
)

const (
	EventAuthenticate            = "authenticate"
	EventAuthenticated           = "authenticated"
	EventReminderNotification    = "reminder_notification"
	EventNotificationRead        = "notification_read"
	EventNotificationReadSuccess = "notification_read_success"
	EventSocketError             = "socket_error"
)

// Event is the envelope of every message on the wire, in both directions.
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data,omitempty"`
}

type inboundEvent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

type authenticateData struct {
	UserID string `json:"userId"`
}

type notificationReadData struct {
	NotificationID string `json:"notificationId"`
}

type errorData struct {
	Message string `json:"message"`
}

// Conn is one client session.
type Conn interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}
