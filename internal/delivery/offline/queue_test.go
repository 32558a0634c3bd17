package offline

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/models"
)

var baseTime = time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)

// ==========================
// Mocks
// ==========================

type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) Push(ctx context.Context, userID string, payload models.NotificationPayload) error {
	args := m.Called(ctx, userID, payload)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyQueued(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func newQueue(t *testing.T, opts ...Option) (*Queue, *MemoryStore, clock.FakeClock) {
	t.Helper()
	clk := clock.NewFake()
	clk.Set(baseTime)
	store := NewMemoryStore()
	return NewQueue(store, clk, logger.NewTestLogger(t), opts...), store, clk
}

func payload(title, message string) models.NotificationPayload {
	return models.NotificationPayload{
		Type:       models.NotificationReminder,
		EntityType: models.EntityTask,
		EntityID:   "t-1",
		Title:      title,
		Message:    message,
	}
}

// ==========================
// Enqueue
// ==========================

func TestQueue_Enqueue_Validation(t *testing.T) {
	q, _, _ := newQueue(t)

	tests := []struct {
		name    string
		userID  string
		payload models.NotificationPayload
		errMsg  string
	}{
		{"missing user", "", payload("T", "M"), "userId is required"},
		{"missing title", "u-1", payload("  ", "M"), "title is required"},
		{"missing message", "u-1", payload("T", ""), "message is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Enqueue(context.Background(), tt.userID, tt.payload)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			stdErr, _ := errors.AsStandardError(err)
			assert.Equal(t, tt.errMsg, stdErr.Details)
		})
	}
}

func TestQueue_Enqueue_Defaults(t *testing.T) {
	q, store, _ := newQueue(t)

	n, err := q.Enqueue(context.Background(), "u-1", models.NotificationPayload{Title: "T", Message: "M"})
	require.NoError(t, err)

	stored, ok := store.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, models.NotificationReminder, stored.Type)
	assert.Equal(t, models.PriorityMedium, stored.Priority)
	assert.False(t, stored.Delivered)
	assert.False(t, stored.Read)
	assert.Equal(t, baseTime, stored.CreatedAt)
}

func TestQueue_Enqueue_NotifierFailureIsNotFatal(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("NotifyQueued", mock.Anything, mock.AnythingOfType("*models.Notification")).
		Return(stderrors.New("ses throttled")).Once()

	q, _, _ := newQueue(t, WithNotifier(notifier))

	n, err := q.Enqueue(context.Background(), "u-1", payload("T", "M"))
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	notifier.AssertExpectations(t)
}

// ==========================
// Drain
// ==========================

func TestQueue_RoundTripDeliversExactlyOnce(t *testing.T) {
	q, store, clk := newQueue(t)
	ctx := context.Background()

	n, err := q.Enqueue(ctx, "u-1", payload("Task Reminder: Pay rent", "Don't forget to complete: Pay rent"))
	require.NoError(t, err)

	pusher := new(MockPusher)
	pusher.On("Push", ctx, "u-1", mock.MatchedBy(func(p models.NotificationPayload) bool {
		return p.ID == n.ID && p.Timestamp.Equal(baseTime) && p.Title == "Task Reminder: Pay rent"
	})).Return(nil).Once()

	clk.Add(5 * time.Minute)
	delivered, err := q.Drain(ctx, "u-1", pusher)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	stored, _ := store.Get(n.ID)
	assert.True(t, stored.Delivered)
	require.NotNil(t, stored.DeliveredAt)
	assert.Equal(t, baseTime.Add(5*time.Minute), *stored.DeliveredAt)

	delivered, err = q.Drain(ctx, "u-1", pusher)
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)

	pusher.AssertNumberOfCalls(t, "Push", 1)
	pusher.AssertExpectations(t)
}

func TestQueue_DrainInCreationOrder(t *testing.T) {
	q, _, clk := newQueue(t)
	ctx := context.Background()

	var want []string
	for _, title := range []string{"first", "second", "third"} {
		n, err := q.Enqueue(ctx, "u-1", payload(title, "m"))
		require.NoError(t, err)
		want = append(want, n.ID)
		clk.Add(time.Second)
	}
	_, err := q.Enqueue(ctx, "u-2", payload("other user", "m"))
	require.NoError(t, err)

	var got []string
	pusher := PusherFunc(func(_ context.Context, _ string, p models.NotificationPayload) error {
		got = append(got, p.ID)
		return nil
	})

	delivered, err := q.Drain(ctx, "u-1", pusher)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	assert.Equal(t, want, got)
}

func TestQueue_DrainStopsAtFirstFailure(t *testing.T) {
	q, store, _ := newQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, "u-1", payload("first", "m"))
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, "u-1", payload("second", "m"))
	require.NoError(t, err)

	calls := 0
	pusher := PusherFunc(func(context.Context, string, models.NotificationPayload) error {
		calls++
		if calls == 2 {
			return stderrors.New("connection closed")
		}
		return nil
	})

	delivered, err := q.Drain(ctx, "u-1", pusher)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDeliveryFailed, errors.CodeOf(err))
	assert.Equal(t, 1, delivered)

	stored, _ := store.Get(first.ID)
	assert.True(t, stored.Delivered)
	stored, _ = store.Get(second.ID)
	assert.False(t, stored.Delivered)
}

// ==========================
// MarkRead
// ==========================

func TestQueue_MarkRead(t *testing.T) {
	q, store, _ := newQueue(t)
	ctx := context.Background()

	n, err := q.Enqueue(ctx, "u-1", payload("T", "M"))
	require.NoError(t, err)

	require.NoError(t, q.MarkRead(ctx, "u-1", n.ID))
	stored, _ := store.Get(n.ID)
	assert.True(t, stored.Read)

	assert.True(t, errors.IsNotFound(q.MarkRead(ctx, "u-2", n.ID)))
	assert.True(t, errors.IsNotFound(q.MarkRead(ctx, "u-1", "missing")))
	assert.True(t, errors.IsValidation(q.MarkRead(ctx, "u-1", "")))
}
