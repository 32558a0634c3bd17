package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/delivery/offline"
	"habit-tracker/internal/models"
)

type hubFixture struct {
	hub    *Hub
	queue  *offline.Queue
	store  *offline.MemoryStore
	server *httptest.Server
	url    string
}

func newHubFixture(t *testing.T, cfg Config) *hubFixture {
	t.Helper()

	clk := clock.NewFake()
	clk.Set(time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC))

	store := offline.NewMemoryStore()
	queue := offline.NewQueue(store, clk, logger.NewNoOpLogger())
	hub := NewHub(NewRegistry(), queue, cfg, logger.NewNoOpLogger())

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	return &hubFixture{
		hub:    hub,
		queue:  queue,
		store:  store,
		server: srv,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (f *hubFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, name string, data interface{}) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(Event{Name: name, Data: data}))
}

func read(t *testing.T, ws *websocket.Conn) inboundEvent {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev inboundEvent
	require.NoError(t, ws.ReadJSON(&ev))
	return ev
}

func authenticate(t *testing.T, ws *websocket.Conn, userID string) {
	t.Helper()
	send(t, ws, EventAuthenticate, authenticateData{UserID: userID})
	ev := read(t, ws)
	require.Equal(t, EventAuthenticated, ev.Name)
}

func readNotification(t *testing.T, ws *websocket.Conn) models.NotificationPayload {
	t.Helper()
	ev := read(t, ws)
	require.Equal(t, EventReminderNotification, ev.Name)
	var payload models.NotificationPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	return payload
}

func queued(title string) models.NotificationPayload {
	return models.NotificationPayload{
		Type:       models.NotificationReminder,
		EntityType: models.EntityTask,
		EntityID:   "t-1",
		Title:      title,
		Message:    "Don't forget to complete: " + title,
		Priority:   models.PriorityMedium,
	}
}

func TestHub_AuthenticateDrainsBacklogInOrder(t *testing.T) {
	f := newHubFixture(t, DefaultConfig())
	ctx := context.Background()

	first, err := f.queue.Enqueue(ctx, "u-1", queued("first"))
	require.NoError(t, err)
	second, err := f.queue.Enqueue(ctx, "u-1", queued("second"))
	require.NoError(t, err)

	ws := f.dial(t)
	authenticate(t, ws, "u-1")

	assert.Equal(t, first.ID, readNotification(t, ws).ID)
	got := readNotification(t, ws)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "second", got.Title)

	for _, id := range []string{first.ID, second.ID} {
		n, ok := f.store.Get(id)
		require.True(t, ok)
		assert.True(t, n.Delivered)
	}

	pending, err := f.store.Pending(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHub_SendToUser(t *testing.T) {
	f := newHubFixture(t, DefaultConfig())
	ctx := context.Background()
	ev := Event{Name: EventReminderNotification, Data: queued("live")}

	assert.False(t, f.hub.SendToUser(ctx, "u-1", ev), "offline user")
	assert.False(t, f.hub.IsUserOnline("u-1"))

	ws := f.dial(t)
	authenticate(t, ws, "u-1")

	assert.True(t, f.hub.IsUserOnline("u-1"))
	assert.True(t, f.hub.SendToUser(ctx, "u-1", ev))
	assert.Equal(t, "live", readNotification(t, ws).Title)

	stats := f.hub.Stats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ConnectedUsers)
}

func TestHub_FlushReplaysRowsQueuedAfterConnect(t *testing.T) {
	f := newHubFixture(t, DefaultConfig())
	ctx := context.Background()

	n, err := f.hub.Flush(ctx, "u-1")
	require.NoError(t, err)
	assert.Zero(t, n, "offline user")

	ws := f.dial(t)
	authenticate(t, ws, "u-1")

	// Committed after the connect-time drain read an empty backlog.
	late, err := f.queue.Enqueue(ctx, "u-1", queued("late"))
	require.NoError(t, err)

	n, err = f.hub.Flush(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, late.ID, readNotification(t, ws).ID)

	n, err = f.hub.Flush(ctx, "u-1")
	require.NoError(t, err)
	assert.Zero(t, n, "already delivered")

	pending, err := f.store.Pending(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHub_LatestConnectionReceivesEvents(t *testing.T) {
	f := newHubFixture(t, DefaultConfig())
	ctx := context.Background()

	older := f.dial(t)
	authenticate(t, older, "u-1")
	newer := f.dial(t)
	authenticate(t, newer, "u-1")

	require.True(t, f.hub.SendToUser(ctx, "u-1", Event{Name: EventReminderNotification, Data: queued("to newer")}))
	assert.Equal(t, "to newer", readNotification(t, newer).Title)

	require.NoError(t, older.Close())
	require.Eventually(t, func() bool {
		return f.hub.Stats().TotalConnections == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, f.hub.IsUserOnline("u-1"), "closing the replaced connection keeps the newer registration")
	assert.True(t, f.hub.SendToUser(ctx, "u-1", Event{Name: EventReminderNotification, Data: queued("still newer")}))
	assert.Equal(t, "still newer", readNotification(t, newer).Title)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	f := newHubFixture(t, DefaultConfig())

	ws := f.dial(t)
	authenticate(t, ws, "u-1")
	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		return !f.hub.IsUserOnline("u-1")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.hub.Stats().ConnectedUsers)
}

func TestHub_NotificationRead(t *testing.T) {
	f := newHubFixture(t, DefaultConfig())

	n, err := f.queue.Enqueue(context.Background(), "u-1", queued("read me"))
	require.NoError(t, err)

	ws := f.dial(t)
	authenticate(t, ws, "u-1")
	readNotification(t, ws)

	send(t, ws, EventNotificationRead, notificationReadData{NotificationID: n.ID})
	ev := read(t, ws)
	require.Equal(t, EventNotificationReadSuccess, ev.Name)

	stored, ok := f.store.Get(n.ID)
	require.True(t, ok)
	assert.True(t, stored.Read)

	send(t, ws, EventNotificationRead, notificationReadData{NotificationID: "missing"})
	assert.Equal(t, EventSocketError, read(t, ws).Name)
}

func TestHub_SocketErrors(t *testing.T) {
	f := newHubFixture(t, DefaultConfig())
	ws := f.dial(t)

	send(t, ws, EventNotificationRead, notificationReadData{NotificationID: "n-1"})
	assert.Equal(t, EventSocketError, read(t, ws).Name, "read receipt before authenticate")

	send(t, ws, EventAuthenticate, authenticateData{})
	assert.Equal(t, EventSocketError, read(t, ws).Name, "authenticate without userId")

	send(t, ws, "subscribe", nil)
	ev := read(t, ws)
	assert.Equal(t, EventSocketError, ev.Name)

	var data errorData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Contains(t, data.Message, "subscribe")
}

func TestHub_CheckOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	f := newHubFixture(t, cfg)

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(f.url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	header.Set("Origin", "https://app.example.com")
	ws, resp, err := websocket.DefaultDialer.Dial(f.url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	_ = ws.Close()
}
