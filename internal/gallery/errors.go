package gallery

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when the caller has no resolved identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrNotFound is returned when no image exists with the given id.
	ErrNotFound = errors.New("image not found")
	// ErrForbidden is returned when the image belongs to another user.
	ErrForbidden = errors.New("image belongs to another user")
	// ErrInvalidRecord is returned when a stored image URL yields no storage key.
	ErrInvalidRecord = errors.New("image record has no storage key")
	// ErrUpstream wraps failures of the object store.
	ErrUpstream = errors.New("object storage failure")
	// ErrNoFile is returned when an upload carries no files.
	ErrNoFile = errors.New("no file selected")
	// ErrNotImage is returned when an uploaded file is not an image.
	ErrNotImage = errors.New("file is not an image")
)

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}
