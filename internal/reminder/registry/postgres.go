package registry

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/lib/pq"

	"habit-tracker/internal/common/config"
	"habit-tracker/internal/common/database"
	"habit-tracker/internal/models"
)

// PostgresLookup reads entities of one type from their owning table.
type PostgresLookup struct {
	db         *sql.DB
	entityType models.EntityType
	query      string
}

func NewPostgresLookup(db *sql.DB, entityType models.EntityType, cfg config.EntityConfig) *PostgresLookup {
	query := fmt.Sprintf(
		"SELECT id::text, COALESCE(%s::text, ''), COALESCE(%s::text, '') FROM %s WHERE id = $1",
		pq.QuoteIdentifier(cfg.TitleColumn),
		pq.QuoteIdentifier(cfg.UserColumn),
		pq.QuoteIdentifier(cfg.Table),
	)
	return &PostgresLookup{db: db, entityType: entityType, query: query}
}

func (l *PostgresLookup) FindByID(ctx context.Context, id string) (*models.Entity, error) {
	entity := &models.Entity{Type: l.entityType}
	err := l.db.QueryRowContext(ctx, l.query, id).Scan(&entity.ID, &entity.Title, &entity.UserID)
	if stderrors.Is(err, sql.ErrNoRows) || database.IsMalformedKey(err) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// FromConfig registers a PostgresLookup for every configured entity type.
func FromConfig(db *sql.DB, entities map[string]config.EntityConfig) (*Registry, error) {
	reg := New()
	for name, cfg := range entities {
		t := models.EntityType(name)
		if err := reg.Register(t, Entry{Lookup: NewPostgresLookup(db, t, cfg)}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
