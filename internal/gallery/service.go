package gallery

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/TimeFreeze025/it315-project/internal/auth"
	"github.com/TimeFreeze025/it315-project/internal/storage"
)

// Service enforces ownership on every image operation. Each call takes the
// caller explicitly; a zero caller fails with ErrUnauthenticated before any
// repository or storage access.
type Service struct {
	repo     Repository
	store    storage.Storage
	log      *zap.Logger
	validate *validator.Validate
}

// NewService creates a new image Service.
func NewService(repo Repository, store storage.Storage, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		store:    store,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// List returns the caller's images, newest first.
func (s *Service) List(ctx context.Context, caller auth.Caller) ([]Image, error) {
	if caller.IsZero() {
		return nil, ErrUnauthenticated
	}
	images, err := s.repo.ListByOwner(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	if images == nil {
		images = []Image{}
	}
	return images, nil
}

// Get returns the image with id if the caller owns it. A missing image and
// another user's image both yield (nil, nil).
func (s *Service) Get(ctx context.Context, caller auth.Caller, id int64) (*Image, error) {
	if caller.IsZero() {
		return nil, ErrUnauthenticated
	}
	img, err := s.repo.GetOwned(ctx, id, caller.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// Delete removes the stored object and then the row. If the object cannot be
// deleted the row is left in place and ErrUpstream is returned.
func (s *Service) Delete(ctx context.Context, caller auth.Caller, id int64) error {
	img, err := s.loadForWrite(ctx, caller, id)
	if err != nil {
		return err
	}

	key, err := storage.KeyFromURL(img.ImageURL)
	if err != nil {
		return fmt.Errorf("%w: image %d: %w", ErrInvalidRecord, id, err)
	}

	if err := s.store.Delete(ctx, key); err != nil {
		s.log.Error("delete stored object",
			zap.Int64("image_id", id), zap.String("key", key), zap.Error(err))
		return upstream("delete image", err)
	}

	deleted, err := s.repo.Delete(ctx, id, caller.UserID)
	if err != nil {
		// The object is already gone; the reconciler reports the dangling row.
		s.log.Error("delete image row after object removal",
			zap.Int64("image_id", id), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("delete image: %w", err)
	}
	if !deleted {
		s.log.Info("image row already removed", zap.Int64("image_id", id))
	}
	return nil
}

// Rename changes the display name of an owned image.
func (s *Service) Rename(ctx context.Context, caller auth.Caller, id int64, name string) (*Image, error) {
	if caller.IsZero() {
		return nil, ErrUnauthenticated
	}
	if err := s.validateName(name); err != nil {
		return nil, err
	}
	if _, err := s.loadForWrite(ctx, caller, id); err != nil {
		return nil, err
	}

	img, err := s.repo.Rename(ctx, id, caller.UserID, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("rename image: %w", err)
	}
	return img, nil
}

// loadForWrite reads the image by id alone so that a missing image and a
// foreign image produce distinct errors.
func (s *Service) loadForWrite(ctx context.Context, caller auth.Caller, id int64) (*Image, error) {
	if caller.IsZero() {
		return nil, ErrUnauthenticated
	}
	img, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load image: %w", err)
	}
	if img.UserID != caller.UserID {
		return nil, ErrForbidden
	}
	return img, nil
}

func (s *Service) validateName(name string) error {
	return nameError(s.validate.Var(name, nameRule))
}
