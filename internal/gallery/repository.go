// Package gallery implements the gallery's image records: ownership-scoped
// reads, renames, uploads and the two-phase delete across the record store
// and object storage.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Image is the metadata row of one stored image. The trailing path segment
// of ImageURL is the object key in storage.
type Image struct {
	ID        int64     `json:"id" db:"id"`
	FileName  *string   `json:"fileName" db:"file_name"`
	ImageName *string   `json:"imageName" db:"image_name"`
	ImageURL  string    `json:"imageUrl" db:"image_url"`
	UserID    string    `json:"userId" db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Fields holds the columns written by Create and Replace.
type Fields struct {
	FileName  *string
	ImageName *string
	ImageURL  string
}

// Repository persists image rows. Methods taking a userID only match rows
// owned by that user.
type Repository interface {
	Create(ctx context.Context, userID string, f Fields) (*Image, error)
	GetByID(ctx context.Context, id int64) (*Image, error)
	GetOwned(ctx context.Context, id int64, userID string) (*Image, error)
	ListByOwner(ctx context.Context, userID string) ([]Image, error)
	ListAll(ctx context.Context) ([]Image, error)
	Rename(ctx context.Context, id int64, userID, name string) (*Image, error)
	Replace(ctx context.Context, id int64, userID string, f Fields) (*Image, error)
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, id int64, userID string) (bool, error)
}

const imageColumns = `id, file_name, image_name, image_url, user_id, created_at`

// PostgresRepository handles image database operations on PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgresRepository with the given connection pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanImage(row pgx.Row) (*Image, error) {
	img := &Image{}
	err := row.Scan(&img.ID, &img.FileName, &img.ImageName, &img.ImageURL, &img.UserID, &img.CreatedAt)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Create inserts a new image row and returns it.
func (r *PostgresRepository) Create(ctx context.Context, userID string, f Fields) (*Image, error) {
	img, err := scanImage(r.db.QueryRow(ctx,
		`INSERT INTO images (file_name, image_name, image_url, user_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+imageColumns,
		f.FileName, f.ImageName, f.ImageURL, userID,
	))
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	return img, nil
}

// GetByID fetches an image regardless of owner.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Image, error) {
	img, err := scanImage(r.db.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image by id: %w", err)
	}
	return img, nil
}

// GetOwned fetches an image only if userID owns it.
func (r *PostgresRepository) GetOwned(ctx context.Context, id int64, userID string) (*Image, error) {
	img, err := scanImage(r.db.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get owned image: %w", err)
	}
	return img, nil
}

// ListByOwner returns the user's images, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, userID string) ([]Image, error) {
	return r.list(ctx, `SELECT `+imageColumns+` FROM images WHERE user_id = $1 ORDER BY id DESC`, userID)
}

// ListAll returns every image row.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]Image, error) {
	return r.list(ctx, `SELECT `+imageColumns+` FROM images ORDER BY id DESC`)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Image, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	images, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Image, error) {
		img, err := scanImage(row)
		if err != nil {
			return Image{}, err
		}
		return *img, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

// Rename sets the display name of an owned image.
func (r *PostgresRepository) Rename(ctx context.Context, id int64, userID, name string) (*Image, error) {
	img, err := scanImage(r.db.QueryRow(ctx,
		`UPDATE images SET image_name = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+imageColumns,
		id, userID, name,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rename image: %w", err)
	}
	return img, nil
}

// Replace points an owned image at a new stored object.
func (r *PostgresRepository) Replace(ctx context.Context, id int64, userID string, f Fields) (*Image, error) {
	img, err := scanImage(r.db.QueryRow(ctx,
		`UPDATE images SET file_name = $3, image_name = $4, image_url = $5
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+imageColumns,
		id, userID, f.FileName, f.ImageName, f.ImageURL,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("replace image: %w", err)
	}
	return img, nil
}

// Delete removes an owned image row.
func (r *PostgresRepository) Delete(ctx context.Context, id int64, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM images WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete image: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
