package gallery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TimeFreeze025/it315-project/internal/storage"
)

// Report summarises one reconciliation pass.
type Report struct {
	Objects        int
	Rows           int
	OrphansDeleted []string
	OrphansSkipped int
	MissingObjects []int64
	InvalidRows    []int64
	DeleteFailures int
	ForeignObjects int
}

// Reconciler compares stored objects with image rows. Objects nobody
// references are deleted once older than the grace period; rows whose object
// is missing are only reported. Only flat keys, the shape Upload writes, are
// candidates for deletion. Nested keys belong to other producers and are left alone.
type Reconciler struct {
	repo  Repository
	store storage.Storage
	log   *zap.Logger
	grace time.Duration
	now   func() time.Time
}

// NewReconciler creates a Reconciler. grace protects objects whose row may
// still be in flight.
func NewReconciler(repo Repository, store storage.Storage, log *zap.Logger, grace time.Duration) *Reconciler {
	return &Reconciler{repo: repo, store: store, log: log, grace: grace, now: time.Now}
}

// Run performs a single pass.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var rep Report

	objects, err := r.store.List(ctx)
	if err != nil {
		return rep, upstream("reconcile", err)
	}
	rows, err := r.repo.ListAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("reconcile: %w", err)
	}
	rep.Objects, rep.Rows = len(objects), len(rows)

	referenced := make(map[string]struct{}, len(rows))
	for _, img := range rows {
		key, err := storage.KeyFromURL(img.ImageURL)
		if err != nil {
			rep.InvalidRows = append(rep.InvalidRows, img.ID)
			r.log.Warn("image row has no storage key", zap.Int64("image_id", img.ID), zap.String("user_id", img.UserID))
			continue
		}
		referenced[key] = struct{}{}
	}

	stored := make(map[string]struct{}, len(objects))
	cutoff := r.now().Add(-r.grace)
	for _, obj := range objects {
		stored[obj.Key] = struct{}{}
		if _, ok := referenced[obj.Key]; ok {
			continue
		}
		if strings.Contains(obj.Key, "/") {
			rep.ForeignObjects++
			continue
		}
		if obj.LastModified.After(cutoff) {
			rep.OrphansSkipped++
			continue
		}
		if err := r.store.Delete(ctx, obj.Key); err != nil {
			rep.DeleteFailures++
			r.log.Warn("delete orphaned object", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		rep.OrphansDeleted = append(rep.OrphansDeleted, obj.Key)
	}

	for _, img := range rows {
		key, err := storage.KeyFromURL(img.ImageURL)
		if err != nil {
			continue
		}
		if _, ok := stored[key]; !ok {
			rep.MissingObjects = append(rep.MissingObjects, img.ID)
			r.log.Warn("image row points at a missing object",
				zap.Int64("image_id", img.ID), zap.String("user_id", img.UserID), zap.String("key", key))
		}
	}

	r.log.Info("reconcile finished",
		zap.Int("objects", rep.Objects),
		zap.Int("rows", rep.Rows),
		zap.Int("orphans_deleted", len(rep.OrphansDeleted)),
		zap.Int("orphans_skipped", rep.OrphansSkipped),
		zap.Int("foreign_objects", rep.ForeignObjects),
		zap.Int("missing_objects", len(rep.MissingObjects)),
	)
	return rep, nil
}

// Start runs a pass every interval until ctx is cancelled. The returned
// channel is closed once the loop has stopped.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
					r.log.Error("reconcile", zap.Error(err))
				}
			}
		}
	}()
	return done
}
