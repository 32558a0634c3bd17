package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/common/metrics"
	"habit-tracker/internal/delivery/offline"
	"habit-tracker/internal/models"
)

// Backlog is the offline side of delivery: what a session replays on
// authenticate and where read receipts go.
type Backlog interface {
	Drain(ctx context.Context, userID string, pusher offline.Pusher) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
}

type Config struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	AllowedOrigins []string
	DrainTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		PingInterval: 25 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadLimit:    64 * 1024,
		DrainTimeout: 30 * time.Second,
	}
}

type Stats struct {
	TotalConnections int `json:"totalConnections"`
	ConnectedUsers   int `json:"connectedUsers"`
}

// Hub serves user WebSocket sessions. The newest authenticated connection of
// a user receives all events. A user connecting while a tick fails over to
// the offline queue can miss both paths; callers that enqueue follow up with
// Flush so the row is replayed to the new connection.
type Hub struct {
	registry *Registry
	backlog  Backlog
	config   Config
	logger   logger.Logger
	upgrader websocket.Upgrader
	open     atomic.Int64
}

func NewHub(registry *Registry, backlog Backlog, config Config, log logger.Logger) *Hub {
	h := &Hub{
		registry: registry,
		backlog:  backlog,
		config:   config,
		logger:   log.WithFields(map[string]interface{}{"component": "push-hub"}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SendToUser writes ev to the user's registered connection. It reports
// false when the user has none or the write fails; a failed connection is
// unregistered and closed.
func (h *Hub) SendToUser(ctx context.Context, userID string, ev Event) bool {
	c, ok := h.registry.Get(userID)
	if !ok {
		metrics.PushEvents.WithLabelValues(ev.Name, "offline").Inc()
		return false
	}

	if err := c.Send(ctx, ev); err != nil {
		deliveryErr := errors.NewDeliveryError(userID, err)
		h.logger.WithError(deliveryErr).Warn("Push failed, dropping connection", map[string]interface{}{
			"userId": userID,
			"event":  ev.Name,
		})
		h.unregister(userID, c)
		_ = c.Close()
		metrics.PushEvents.WithLabelValues(ev.Name, "failed").Inc()
		return false
	}

	metrics.PushEvents.WithLabelValues(ev.Name, "delivered").Inc()
	return true
}

func (h *Hub) IsUserOnline(userID string) bool {
	_, ok := h.registry.Get(userID)
	return ok
}

func (h *Hub) Stats() Stats {
	return Stats{
		TotalConnections: int(h.open.Load()),
		ConnectedUsers:   h.registry.Len(),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed", map[string]interface{}{
			"remoteAddr": r.RemoteAddr,
		})
		return
	}

	c := newWSConn(ws, h.config.WriteTimeout)
	h.open.Add(1)
	defer h.open.Add(-1)

	h.serve(r.Context(), c)
}

func (h *Hub) serve(ctx context.Context, c *wsConn) {
	var userID string
	done := make(chan struct{})

	defer func() {
		close(done)
		if userID != "" {
			h.unregister(userID, c)
		}
		_ = c.Close()
	}()

	pongWait := h.config.PingInterval * 10 / 9
	c.ws.SetReadLimit(h.config.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.keepAlive(c, done)

	for {
		var in inboundEvent
		if err := c.ws.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).Debug("Connection closed", map[string]interface{}{"userId": userID})
			}
			return
		}

		switch in.Name {
		case EventAuthenticate:
			var data authenticateData
			if err := json.Unmarshal(in.Data, &data); err != nil || strings.TrimSpace(data.UserID) == "" {
				h.reply(ctx, c, Event{Name: EventSocketError, Data: errorData{Message: "userId is required"}})
				continue
			}
			if userID != "" && userID != data.UserID {
				h.unregister(userID, c)
			}
			userID = data.UserID
			h.authenticate(ctx, userID, c)

		case EventNotificationRead:
			if userID == "" {
				h.reply(ctx, c, Event{Name: EventSocketError, Data: errorData{Message: "not authenticated"}})
				continue
			}
			var data notificationReadData
			if err := json.Unmarshal(in.Data, &data); err != nil {
				h.reply(ctx, c, Event{Name: EventSocketError, Data: errorData{Message: "invalid payload"}})
				continue
			}
			if err := h.backlog.MarkRead(ctx, userID, data.NotificationID); err != nil {
				h.reply(ctx, c, Event{Name: EventSocketError, Data: errorData{Message: "failed to mark notification as read"}})
				continue
			}
			h.reply(ctx, c, Event{Name: EventNotificationReadSuccess, Data: data})

		default:
			h.reply(ctx, c, Event{Name: EventSocketError, Data: errorData{Message: fmt.Sprintf("unknown event %q", in.Name)}})
		}
	}
}

// authenticate registers c for userID and replays the user's backlog while
// holding c's write lock, so live sends for this session queue up behind the
// replay.
func (h *Hub) authenticate(ctx context.Context, userID string, c *wsConn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev := h.registry.Set(userID, c); prev != nil {
		h.logger.Info("Replaced existing connection for user", map[string]interface{}{"userId": userID})
	}
	metrics.PushConnectedUsers.Set(float64(h.registry.Len()))

	if err := c.writeLocked(ctx, Event{Name: EventAuthenticated, Data: authenticateData{UserID: userID}}); err != nil {
		h.logger.WithError(err).Warn("Failed to acknowledge authentication", map[string]interface{}{"userId": userID})
		return
	}

	delivered, err := h.drainLocked(ctx, userID, c)
	if err != nil {
		h.logger.WithError(err).Warn("Offline drain incomplete", map[string]interface{}{
			"userId":    userID,
			"delivered": delivered,
		})
		return
	}

	h.logger.Info("User authenticated", map[string]interface{}{
		"userId":  userID,
		"drained": delivered,
	})
}

// Flush replays userID's backlog to their registered connection. A tick
// whose send missed the registry can commit its queued row after the
// connect-time drain has already read the backlog; flushing after the
// enqueue delivers such rows without waiting for the next reconnect.
// It is a no-op for offline users.
func (h *Hub) Flush(ctx context.Context, userID string) (int, error) {
	conn, ok := h.registry.Get(userID)
	if !ok {
		return 0, nil
	}
	c, ok := conn.(*wsConn)
	if !ok {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return h.drainLocked(ctx, userID, c)
}

// drainLocked requires c.mu. Holding it for the whole pass keeps two drains
// of the same connection from reading the same pending rows.
func (h *Hub) drainLocked(ctx context.Context, userID string, c *wsConn) (int, error) {
	drainCtx, cancel := context.WithTimeout(ctx, h.config.DrainTimeout)
	defer cancel()

	pusher := offline.PusherFunc(func(ctx context.Context, _ string, payload models.NotificationPayload) error {
		return c.writeLocked(ctx, Event{Name: EventReminderNotification, Data: payload})
	})
	return h.backlog.Drain(drainCtx, userID, pusher)
}

func (h *Hub) reply(ctx context.Context, c *wsConn, ev Event) {
	if err := c.Send(ctx, ev); err != nil {
		h.logger.WithError(err).Debug("Reply failed", map[string]interface{}{"event": ev.Name})
	}
}

func (h *Hub) unregister(userID string, c Conn) {
	if h.registry.Remove(userID, c) {
		metrics.PushConnectedUsers.Set(float64(h.registry.Len()))
	}
}

func (h *Hub) keepAlive(c *wsConn, done <-chan struct{}) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// wsConn serializes writes to one WebSocket. Control frames bypass mu.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
	closeOnce    sync.Once
}

func newWSConn(ws *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{ws: ws, writeTimeout: writeTimeout}
}

func (c *wsConn) Send(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(ctx, ev)
}

func (c *wsConn) writeLocked(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteJSON(ev)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}
