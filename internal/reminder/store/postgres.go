package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/models"
)

const reminderColumns = "id, seq, user_id, entity_type, entity_id, reminder_date, reminder_type, recurrence, status, metadata, sent_at, created_at, updated_at"

const (
	insertReminderQuery = `INSERT INTO reminders (id, user_id, entity_type, entity_id, reminder_date, reminder_type, recurrence, metadata, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'active', $9, $9)
RETURNING seq`

	getReminderQuery = `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1`

	findDueQuery = `SELECT ` + reminderColumns + ` FROM reminders
WHERE status = 'active' AND reminder_date <= $1
ORDER BY reminder_date ASC, seq ASC`

	cancelReminderQuery = `UPDATE reminders
SET status = 'cancelled', updated_at = CASE WHEN status = 'cancelled' THEN updated_at ELSE $2 END
WHERE id = $1
RETURNING ` + reminderColumns

	statsQuery = `SELECT status, reminder_type, COUNT(*) FROM reminders WHERE user_id = $1 GROUP BY status, reminder_type`

	markSentQuery   = `UPDATE reminders SET status = 'sent', sent_at = $2, updated_at = $3 WHERE id = $1 AND status = 'active'`
	rescheduleQuery = `UPDATE reminders SET reminder_date = $2, sent_at = $3, updated_at = $4 WHERE id = $1 AND status = 'active'`
	expireQuery     = `UPDATE reminders SET status = 'cancelled', updated_at = $2 WHERE id = $1 AND status = 'active'`

	cancelForEntityQuery = `UPDATE reminders SET status = 'cancelled', updated_at = $3
WHERE entity_type = $1 AND entity_id = $2 AND status = 'active'`

	purgeTerminalQuery = `DELETE FROM reminders WHERE status IN ('sent', 'cancelled') AND updated_at < $1`
)

// PostgresStore keeps reminders in the reminders table.
type PostgresStore struct {
	db     *sql.DB
	clk    clock.Clock
	logger logger.Logger
}

type Option func(*PostgresStore)

// WithLogger sets the logger that reports rows skipped by the due scan.
func WithLogger(log logger.Logger) Option {
	return func(s *PostgresStore) { s.logger = log }
}

func NewPostgresStore(db *sql.DB, clk clock.Clock, opts ...Option) *PostgresStore {
	s := &PostgresStore{db: db, clk: clk, logger: logger.NewNoOpLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PostgresStore) Create(ctx context.Context, r *models.Reminder) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ReminderType == "" {
		r.ReminderType = models.ReminderOneTime
	}

	recurrence, err := marshalNullable(r.Recurrence != nil, r.Recurrence)
	if err != nil {
		return errors.NewValidationError(fmt.Sprintf("recurrence: %v", err))
	}
	metadata, err := marshalNullable(r.Metadata != nil, r.Metadata)
	if err != nil {
		return errors.NewValidationError(fmt.Sprintf("metadata: %v", err))
	}

	now := s.clk.Now().UTC()
	r.ReminderDate = r.ReminderDate.UTC()

	err = s.db.QueryRowContext(ctx, insertReminderQuery,
		r.ID, r.UserID, string(r.EntityType), r.EntityID, r.ReminderDate,
		string(r.ReminderType), recurrence, metadata, now,
	).Scan(&r.Seq)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}

	r.Status = models.StatusActive
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Reminder, error) {
	r, err := scanReminder(s.db.QueryRowContext(ctx, getReminderQuery, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("reminder", id)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get reminder", err)
	}
	return r, nil
}

// FindDue skips rows whose recurrence or metadata cannot be decoded. They
// stay active and are logged on every scan.
func (s *PostgresStore) FindDue(ctx context.Context, now time.Time) ([]*models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, findDueQuery, now.UTC())
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("find due reminders", err)
	}
	defer rows.Close()

	var out []*models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		var decodeErr *decodeError
		if stderrors.As(err, &decodeErr) {
			s.logger.WithError(err).Warn("Skipping undecodable reminder", map[string]interface{}{
				"reminderId": decodeErr.id,
				"column":     decodeErr.column,
			})
			continue
		}
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("find due reminders", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("find due reminders", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, patch models.ReminderPatch) (*models.Reminder, error) {
	if patch.Empty() {
		return s.Get(ctx, id)
	}

	args := []interface{}{id}
	var sets []string
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.ReminderDate != nil {
		add("reminder_date", patch.ReminderDate.UTC())
	}
	if patch.ReminderType != nil {
		add("reminder_type", string(*patch.ReminderType))
	}
	if patch.ClearRecurrence {
		add("recurrence", nil)
	} else if patch.Recurrence != nil {
		raw, err := json.Marshal(patch.Recurrence)
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("recurrence: %v", err))
		}
		add("recurrence", raw)
	}
	if patch.Metadata != nil {
		raw, err := json.Marshal(patch.Metadata)
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("metadata: %v", err))
		}
		add("metadata", raw)
	}
	add("updated_at", s.clk.Now().UTC())

	query := fmt.Sprintf("UPDATE reminders SET %s WHERE id = $1 RETURNING %s", strings.Join(sets, ", "), reminderColumns)

	r, err := scanReminder(s.db.QueryRowContext(ctx, query, args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("reminder", id)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("update reminder", err)
	}
	return r, nil
}

func (s *PostgresStore) Cancel(ctx context.Context, id string) (*models.Reminder, error) {
	r, err := scanReminder(s.db.QueryRowContext(ctx, cancelReminderQuery, id, s.clk.Now().UTC()))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("reminder", id)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("cancel reminder", err)
	}
	return r, nil
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID string, entityType *models.EntityType) ([]*models.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE user_id = $1`
	args := []interface{}{userID}
	if entityType != nil {
		query += ` AND entity_type = $2`
		args = append(args, string(*entityType))
	}
	query += ` ORDER BY reminder_date ASC, seq ASC`

	return s.queryReminders(ctx, "list reminders", query, args...)
}

func (s *PostgresStore) Stats(ctx context.Context, userID string) (models.ReminderStats, error) {
	stats := models.NewReminderStats()

	rows, err := s.db.QueryContext(ctx, statsQuery, userID)
	if err != nil {
		return stats, errors.NewQueryExecutionFailedError("reminder stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, reminderType string
		var count int
		if err := rows.Scan(&status, &reminderType, &count); err != nil {
			return stats, errors.NewQueryExecutionFailedError("reminder stats", err)
		}
		stats.Total += count
		stats.ByStatus[models.ReminderStatus(status)] += count
		stats.ByType[models.ReminderType(reminderType)] += count
	}
	if err := rows.Err(); err != nil {
		return stats, errors.NewQueryExecutionFailedError("reminder stats", err)
	}
	return stats, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error) {
	return s.execAffected(ctx, "mark reminder sent", markSentQuery, id, sentAt.UTC(), s.clk.Now().UTC())
}

func (s *PostgresStore) Reschedule(ctx context.Context, id string, next, sentAt time.Time) (bool, error) {
	return s.execAffected(ctx, "reschedule reminder", rescheduleQuery, id, next.UTC(), sentAt.UTC(), s.clk.Now().UTC())
}

func (s *PostgresStore) Expire(ctx context.Context, id string) (bool, error) {
	return s.execAffected(ctx, "expire reminder", expireQuery, id, s.clk.Now().UTC())
}

func (s *PostgresStore) CancelForEntity(ctx context.Context, entityType models.EntityType, entityID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, cancelForEntityQuery, string(entityType), entityID, s.clk.Now().UTC())
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("cancel entity reminders", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("cancel entity reminders", err)
	}
	return n, nil
}

func (s *PostgresStore) PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, purgeTerminalQuery, olderThan.UTC())
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("purge reminders", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("purge reminders", err)
	}
	return n, nil
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

func (s *PostgresStore) queryReminders(ctx context.Context, operation, query string, args ...interface{}) ([]*models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError(operation, err)
	}
	defer rows.Close()

	var out []*models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError(operation, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError(operation, err)
	}
	return out, nil
}

// decodeError marks a row that scanned but holds an unreadable JSON column.
type decodeError struct {
	id     string
	column string
	err    error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode %s of %s: %v", e.column, e.id, e.err)
}

func (e *decodeError) Unwrap() error { return e.err }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReminder(row rowScanner) (*models.Reminder, error) {
	var (
		r                                models.Reminder
		entityType, reminderType, status string
		recurrence, metadata             []byte
		sentAt                           sql.NullTime
	)

	err := row.Scan(
		&r.ID, &r.Seq, &r.UserID, &entityType, &r.EntityID, &r.ReminderDate,
		&reminderType, &recurrence, &status, &metadata, &sentAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.EntityType = models.EntityType(entityType)
	r.ReminderType = models.ReminderType(reminderType)
	r.Status = models.ReminderStatus(status)
	if sentAt.Valid {
		at := sentAt.Time
		r.SentAt = &at
	}
	if len(recurrence) > 0 {
		var rec models.Recurrence
		if err := json.Unmarshal(recurrence, &rec); err != nil {
			return nil, &decodeError{id: r.ID, column: "recurrence", err: err}
		}
		r.Recurrence = &rec
	}
	if len(metadata) > 0 {
		var meta models.ReminderMetadata
		if err := json.Unmarshal(metadata, &meta); err != nil {
			return nil, &decodeError{id: r.ID, column: "metadata", err: err}
		}
		r.Metadata = &meta
	}
	return &r, nil
}

func marshalNullable(present bool, v interface{}) (interface{}, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}
