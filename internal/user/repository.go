// Package user keeps the display names of callers seen in verified tokens.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User is a caller known to the gallery. ID is the identity provider's subject.
type User struct {
	ID        string    `json:"id" db:"id"`
	FullName  *string   `json:"fullName,omitempty" db:"full_name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// Repository persists users.
type Repository interface {
	Upsert(ctx context.Context, id string, fullName *string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// PostgresRepository handles user database operations on PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgresRepository with the given connection pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts the user or refreshes its name. A nil name keeps the stored one.
func (r *PostgresRepository) Upsert(ctx context.Context, id string, fullName *string) (*User, error) {
	u := &User{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, full_name)
		 VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE
		 SET full_name = COALESCE(EXCLUDED.full_name, users.full_name), updated_at = now()
		 RETURNING id, full_name, created_at, updated_at`,
		id, fullName,
	).Scan(&u.ID, &u.FullName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

// GetByID fetches a user by subject.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	u := &User{}
	err := r.db.QueryRow(ctx,
		`SELECT id, full_name, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.FullName, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}
