package offline

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/models"
)

const (
	insertNotificationQuery = `INSERT INTO notifications (id, user_id, type, entity_type, entity_id, title, message, priority, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING seq`

	pendingNotificationsQuery = `SELECT id, seq, user_id, type, entity_type, entity_id, title, message, priority, read, delivered, delivered_at, created_at
FROM notifications
WHERE user_id = $1 AND delivered = FALSE
ORDER BY created_at ASC, seq ASC`

	markDeliveredQuery = `UPDATE notifications SET delivered = TRUE, delivered_at = $2 WHERE id = $1 AND delivered = FALSE`

	markReadQuery = `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	err := s.db.QueryRowContext(ctx, insertNotificationQuery,
		n.ID, n.UserID, string(n.Type), nullString(string(n.EntityType)), nullString(n.EntityID),
		n.Title, n.Message, string(n.Priority), n.CreatedAt,
	).Scan(&n.Seq)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

func (s *PostgresStore) Pending(ctx context.Context, userID string) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, pendingNotificationsQuery, userID)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("pending notifications", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var (
			n                    models.Notification
			kind, priority       string
			entityType, entityID sql.NullString
			deliveredAt          sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.Seq, &n.UserID, &kind, &entityType, &entityID,
			&n.Title, &n.Message, &priority, &n.Read, &n.Delivered, &deliveredAt, &n.CreatedAt); err != nil {
			return nil, errors.NewQueryExecutionFailedError("pending notifications", err)
		}
		n.Type = models.NotificationType(kind)
		n.Priority = models.Priority(priority)
		n.EntityType = models.EntityType(entityType.String)
		n.EntityID = entityID.String
		if deliveredAt.Valid {
			at := deliveredAt.Time
			n.DeliveredAt = &at
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("pending notifications", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.execAffected(ctx, "mark notification delivered", markDeliveredQuery, id, at)
}

func (s *PostgresStore) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	return s.execAffected(ctx, "mark notification read", markReadQuery, id, userID)
}

func (s *PostgresStore) execAffected(ctx context.Context, operation, query string, args ...interface{}) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.NewQueryExecutionFailedError(operation, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewQueryExecutionFailedError(operation, err)
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
