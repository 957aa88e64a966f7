package gallery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLiteRepository stores image rows in SQLite.
type SQLiteRepository struct {
	db *sqlx.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository on an already migrated database.
func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new image row and returns it.
func (r *SQLiteRepository) Create(ctx context.Context, userID string, f Fields) (*Image, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO images (file_name, image_name, image_url, user_id) VALUES (?, ?, ?, ?)`,
		f.FileName, f.ImageName, f.ImageURL, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches an image regardless of owner.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Image, error) {
	return r.get(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
}

// GetOwned fetches an image only if userID owns it.
func (r *SQLiteRepository) GetOwned(ctx context.Context, id int64, userID string) (*Image, error) {
	return r.get(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ? AND user_id = ?`, id, userID)
}

func (r *SQLiteRepository) get(ctx context.Context, query string, args ...any) (*Image, error) {
	var img Image
	err := r.db.GetContext(ctx, &img, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return &img, nil
}

// ListByOwner returns the user's images, newest first.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, userID string) ([]Image, error) {
	images := []Image{}
	err := r.db.SelectContext(ctx, &images,
		`SELECT `+imageColumns+` FROM images WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

// ListAll returns every image row.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]Image, error) {
	images := []Image{}
	if err := r.db.SelectContext(ctx, &images, `SELECT `+imageColumns+` FROM images ORDER BY id DESC`); err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

// Rename sets the display name of an owned image.
func (r *SQLiteRepository) Rename(ctx context.Context, id int64, userID, name string) (*Image, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE images SET image_name = ? WHERE id = ? AND user_id = ?`, name, id, userID)
	if err != nil {
		return nil, fmt.Errorf("rename image: %w", err)
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return r.GetOwned(ctx, id, userID)
}

// Replace points an owned image at a new stored object.
func (r *SQLiteRepository) Replace(ctx context.Context, id int64, userID string, f Fields) (*Image, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE images SET file_name = ?, image_name = ?, image_url = ? WHERE id = ? AND user_id = ?`,
		f.FileName, f.ImageName, f.ImageURL, id, userID)
	if err != nil {
		return nil, fmt.Errorf("replace image: %w", err)
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return r.GetOwned(ctx, id, userID)
}

// Delete removes an owned image row. It reports false when nothing matched.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete image: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete image: %w", err)
	}
	return n > 0, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
