package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TimeFreeze025/it315-project/internal/auth"
	"github.com/TimeFreeze025/it315-project/internal/storage"
)

const nameRule = "required,min=5,max=50"

// sniffLen is how many leading bytes are inspected to detect the media type.
const sniffLen = 3072

// UploadFile is one file of an upload.
type UploadFile struct {
	Name string
	Size int64
	Body io.Reader
}

// UploadRequest describes an upload. A nil TargetID creates new images;
// otherwise the single file replaces the stored object of that image.
type UploadRequest struct {
	TargetID  *int64
	ImageName string `validate:"required,min=5,max=50"`
	Files     []UploadFile
}

type preparedFile struct {
	name        string
	size        int64
	contentType string
	ext         string
	body        io.Reader
}

// Upload stores the files and persists one row per file. A batch is all or
// nothing: every object is written before any row, and a failure at either
// step removes the rows and objects the batch already produced.
func (s *Service) Upload(ctx context.Context, caller auth.Caller, req UploadRequest) ([]Image, error) {
	if caller.IsZero() {
		return nil, ErrUnauthenticated
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, nameError(err)
	}
	if len(req.Files) == 0 {
		return nil, ErrNoFile
	}
	if req.TargetID != nil && len(req.Files) > 1 {
		return nil, &ValidationError{Field: "file", Message: "only one file can replace an existing image"}
	}

	prepared := make([]preparedFile, 0, len(req.Files))
	for _, f := range req.Files {
		p, err := prepare(f)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
	}

	if req.TargetID != nil {
		img, err := s.replace(ctx, caller, *req.TargetID, req.ImageName, prepared[0])
		if err != nil {
			return nil, err
		}
		return []Image{*img}, nil
	}
	return s.create(ctx, caller, req.ImageName, prepared)
}

func (s *Service) create(ctx context.Context, caller auth.Caller, name string, files []preparedFile) ([]Image, error) {
	keys := make([]string, 0, len(files))
	for _, p := range files {
		key, err := s.put(ctx, p)
		if err != nil {
			s.discard(ctx, keys...)
			return nil, err
		}
		keys = append(keys, key)
	}

	created := make([]Image, 0, len(files))
	for i, p := range files {
		img, err := s.repo.Create(ctx, caller.UserID, Fields{
			FileName:  optional(p.name),
			ImageName: &name,
			ImageURL:  s.store.PublicURL(keys[i]),
		})
		if err != nil {
			s.rollback(ctx, caller, created, keys)
			return nil, fmt.Errorf("create image: %w", err)
		}
		created = append(created, *img)
	}

	for i, img := range created {
		s.log.Info("image uploaded",
			zap.Int64("image_id", img.ID), zap.String("user_id", caller.UserID), zap.String("key", keys[i]))
	}
	return created, nil
}

// rollback undoes a partially persisted batch. created[i] references keys[i].
// An object stays in storage while its row could not be removed.
func (s *Service) rollback(ctx context.Context, caller auth.Caller, created []Image, keys []string) {
	ctx = context.WithoutCancel(ctx)
	orphans := make([]string, 0, len(keys))
	for i, key := range keys {
		if i < len(created) {
			deleted, err := s.repo.Delete(ctx, created[i].ID, caller.UserID)
			if err != nil || !deleted {
				s.log.Error("roll back image row",
					zap.Int64("image_id", created[i].ID), zap.String("user_id", caller.UserID), zap.Error(err))
				continue
			}
		}
		orphans = append(orphans, key)
	}
	s.discard(ctx, orphans...)
	if len(created) > 0 {
		s.log.Warn("upload rolled back",
			zap.String("user_id", caller.UserID), zap.Int("rows", len(created)), zap.Int("objects", len(orphans)))
	}
}

func (s *Service) replace(ctx context.Context, caller auth.Caller, id int64, name string, p preparedFile) (*Image, error) {
	old, err := s.loadForWrite(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	key, err := s.put(ctx, p)
	if err != nil {
		return nil, err
	}

	img, err := s.repo.Replace(ctx, id, caller.UserID, Fields{
		FileName:  optional(p.name),
		ImageName: &name,
		ImageURL:  s.store.PublicURL(key),
	})
	if err != nil {
		s.discard(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("replace image: %w", err)
	}

	// The previous object is no longer referenced. Leftovers are collected by the reconciler.
	if oldKey, err := storage.KeyFromURL(old.ImageURL); err == nil && oldKey != key {
		if err := s.store.Delete(ctx, oldKey); err != nil {
			s.log.Warn("delete replaced object",
				zap.Int64("image_id", id), zap.String("key", oldKey), zap.Error(err))
		}
	}
	s.log.Info("image replaced",
		zap.Int64("image_id", id), zap.String("user_id", caller.UserID), zap.String("key", key))
	return img, nil
}

func (s *Service) put(ctx context.Context, p preparedFile) (string, error) {
	key := uuid.NewString() + p.ext
	if err := s.store.Upload(ctx, key, p.body, p.size, p.contentType); err != nil {
		s.log.Error("upload object", zap.String("key", key), zap.Error(err))
		return "", upstream("upload image", err)
	}
	return key, nil
}

// discard removes objects whose rows could not be written.
func (s *Service) discard(ctx context.Context, keys ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.Warn("discard orphaned object", zap.String("key", key), zap.Error(err))
		}
	}
}

// prepare sniffs the media type from the leading bytes of f without
// consuming them.
func prepare(f UploadFile) (preparedFile, error) {
	if f.Body == nil {
		return preparedFile{}, ErrNoFile
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return preparedFile{}, fmt.Errorf("read %q: %w", f.Name, err)
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	if !strings.HasPrefix(mt.String(), "image/") {
		return preparedFile{}, fmt.Errorf("%w: %q is %s", ErrNotImage, f.Name, mt.String())
	}

	ext := mt.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(f.Name))
	}
	return preparedFile{
		name:        f.Name,
		size:        f.Size,
		contentType: mt.String(),
		ext:         ext,
		body:        io.MultiReader(bytes.NewReader(head), f.Body),
	}, nil
}

func nameError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	msg := "Image Name is invalid"
	switch verrs[0].Tag() {
	case "required":
		msg = "Image Name is required"
	case "min":
		msg = "Image Name must be at least 5 characters long"
	case "max":
		msg = "Image Name must be at most 50 characters long"
	}
	return &ValidationError{Field: "imageName", Message: msg}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
