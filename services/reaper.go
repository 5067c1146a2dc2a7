package services

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/s92475mark/remote-file-access/models"
)

// DefaultReapInterval matches the original schedule of one pass every 12 hours.
const DefaultReapInterval = 12 * time.Hour

// Reaper periodically deletes expired, non-permanent files. A pass first tries
// the physical deletes, then removes the surviving rows in one batch; files
// whose physical delete failed stay in the store and are retried next pass, so
// transient storage errors heal across runs.
type Reaper struct {
	db         *gorm.DB
	blobs      BlobStore
	assembler  *Assembler
	interval   time.Duration
	sessionAge time.Duration
	log        *zap.SugaredLogger
}

func NewReaper(db *gorm.DB, blobs BlobStore, assembler *Assembler, interval time.Duration, log *zap.SugaredLogger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &Reaper{
		db:         db,
		blobs:      blobs,
		assembler:  assembler,
		interval:   interval,
		sessionAge: 24 * time.Hour,
		log:        log,
	}
}

// Run drives passes on a fixed interval until ctx is cancelled. The in-flight
// pass finishes (or rolls back as a whole) before Run returns.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return
		case <-ticker.C:
			if n, err := r.RunOnce(ctx); err != nil {
				r.log.Errorw("reaper pass failed", "err", err)
			} else if n > 0 {
				r.log.Infow("reaper pass finished", "deleted", n)
			}
			if r.assembler != nil {
				if n, err := r.assembler.PurgeStale(ctx, r.sessionAge); err != nil {
					r.log.Warnw("stale upload purge failed", "err", err)
				} else if n > 0 {
					r.log.Infow("purged stale upload sessions", "count", n)
				}
			}
		}
	}
}

// RunOnce performs a single pass and returns the number of rows removed.
// Candidates whose physical delete fails are logged and skipped; an absent
// physical file is only a warning and the row is removed anyway. The row
// deletions commit as a single batch.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	var candidates []models.File
	if err := r.db.WithContext(ctx).
		Where("is_permanent = ? AND expiry_time < ?", false, time.Now()).
		Find(&candidates).Error; err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	deletable := make([]uint, 0, len(candidates))
	for _, f := range candidates {
		if err := r.blobs.Remove(f.StorageKey); err != nil {
			if os.IsNotExist(err) {
				r.log.Warnw("expired file already absent on disk", "storage_key", f.StorageKey)
			} else {
				// Leave the row for the next run.
				r.log.Errorw("failed to delete expired file", "storage_key", f.StorageKey, "err", err)
				continue
			}
		}
		deletable = append(deletable, f.ID)
	}
	if len(deletable) == 0 {
		return 0, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("id IN ?", deletable).Delete(&models.File{}).Error
	})
	if err != nil {
		return 0, err
	}
	return len(deletable), nil
}
