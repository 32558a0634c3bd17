// Package directory looks up the contact details of users, for out-of-band
// reminder nudges.
package directory

import (
	"context"
	"database/sql"
	stderrors "errors"

	"habit-tracker/internal/common/database"
	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/models"
)

type Directory interface {
	FindByID(ctx context.Context, userID string) (*models.User, error)
}

const findUserQuery = `SELECT id::text, COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, '') FROM users WHERE id = $1`

type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) FindByID(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := d.db.QueryRowContext(ctx, findUserQuery, userID).Scan(&u.ID, &u.Name, &u.Email, &u.Phone)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) || database.IsMalformedKey(err) {
			return nil, errors.NewNotFoundError("user", userID)
		}
		return nil, errors.NewQueryExecutionFailedError("find user", err)
	}
	return &u, nil
}

// StaticDirectory serves users from memory. It backs the memory driver.
type StaticDirectory map[string]models.User

func (d StaticDirectory) FindByID(_ context.Context, userID string) (*models.User, error) {
	u, ok := d[userID]
	if !ok {
		return nil, errors.NewNotFoundError("user", userID)
	}
	return &u, nil
}
