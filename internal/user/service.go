package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/TimeFreeze025/it315-project/internal/auth"
)

// Service contains business logic for the user directory.
type Service struct {
	repo Repository
}

// NewService creates a new user Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Remember records the caller's display name. It only writes when the name
// is new or has changed.
func (s *Service) Remember(ctx context.Context, caller auth.Caller) error {
	if caller.IsZero() || caller.FullName == nil {
		return nil
	}

	existing, err := s.repo.GetByID(ctx, caller.UserID)
	switch {
	case err == nil:
		if existing.FullName != nil && *existing.FullName == *caller.FullName {
			return nil
		}
	case !errors.Is(err, ErrNotFound):
		return fmt.Errorf("remember user: %w", err)
	}

	if _, err := s.repo.Upsert(ctx, caller.UserID, caller.FullName); err != nil {
		return fmt.Errorf("remember user: %w", err)
	}
	return nil
}

// GetByID returns a user by subject.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// FullName returns the user's display name, or ErrNotFound when none is known.
func (s *Service) FullName(ctx context.Context, id string) (string, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if u.FullName == nil {
		return "", ErrNotFound
	}
	return *u.FullName, nil
}

// IsNotFound returns true when the error indicates a user was not found.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
