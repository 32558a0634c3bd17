package registry

import (
	"context"
	"sync"

	"habit-tracker/internal/models"
)

// MemoryLookup keeps entities of one type in process. Used by the memory
// driver and in tests.
type MemoryLookup struct {
	mu       sync.RWMutex
	entities map[string]models.Entity
}

func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{entities: make(map[string]models.Entity)}
}

func (l *MemoryLookup) Put(entity models.Entity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entities[entity.ID] = entity
}

func (l *MemoryLookup) Delete(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entities, id)
}

func (l *MemoryLookup) FindByID(_ context.Context, id string) (*models.Entity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entity, ok := l.entities[id]
	if !ok {
		return nil, ErrEntityNotFound
	}
	return &entity, nil
}

// InMemory registers an empty MemoryLookup for every configured entity type
// and returns the lookups by type.
func InMemory(types []models.EntityType) (*Registry, map[models.EntityType]*MemoryLookup, error) {
	reg := New()
	lookups := make(map[models.EntityType]*MemoryLookup, len(types))
	for _, t := range types {
		lookup := NewMemoryLookup()
		if err := reg.Register(t, Entry{Lookup: lookup}); err != nil {
			return nil, nil, err
		}
		lookups[t] = lookup
	}
	return reg, lookups, nil
}
