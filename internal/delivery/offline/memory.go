package offline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"habit-tracker/internal/models"
)

type MemoryStore struct {
	mu            sync.Mutex
	seq           int64
	notifications map[string]*models.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notifications: make(map[string]*models.Notification)}
}

func (s *MemoryStore) Insert(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.seq++
	n.Seq = s.seq
	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *MemoryStore) Pending(_ context.Context, userID string) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Delivered {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.Delivered {
		return false, nil
	}
	n.Delivered = true
	n.DeliveredAt = &at
	return true, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	n.Read = true
	return true, nil
}

// Get returns a copy of one notification. It exists for inspection in tests
// and local runs.
func (s *MemoryStore) Get(id string) (*models.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, false
	}
	cp := *n
	return &cp, true
}
