package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLiteRepository stores users in SQLite.
type SQLiteRepository struct {
	db *sqlx.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository on an already migrated database.
func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts the user or refreshes its name. A nil name keeps the stored one.
func (r *SQLiteRepository) Upsert(ctx context.Context, id string, fullName *string) (*User, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, full_name) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE
		 SET full_name = COALESCE(excluded.full_name, users.full_name), updated_at = CURRENT_TIMESTAMP`,
		id, fullName,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches a user by subject.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u,
		`SELECT id, full_name, created_at, updated_at FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &u, nil
}
