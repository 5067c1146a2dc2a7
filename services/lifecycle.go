package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/s92475mark/remote-file-access/models"
)

// DefaultRetentionDays is the system-wide fallback applied when the effective
// role lifetime is unlimited: a fresh upload always gets a deadline.
const DefaultRetentionDays = 7

// FileService owns file records and their physical bytes: create, promote,
// demote, delete, list, download. Quota checks run inside the same transaction
// as the count-and-insert so concurrent uploads cannot jointly slip past a
// finite limit.
type FileService struct {
	db            *gorm.DB
	blobs         BlobStore
	retentionDays int
	log           *zap.SugaredLogger
}

func NewFileService(db *gorm.DB, blobs BlobStore, retentionDays int, log *zap.SugaredLogger) *FileService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &FileService{db: db, blobs: blobs, retentionDays: retentionDays, log: log}
}

// ListResult bundles the owner's files with aggregate stats and effective limits.
type ListResult struct {
	Files          []models.File `json:"files"`
	Count          int64         `json:"count"`
	PermanentCount int64         `json:"permanent_count"`
	FileLimit      int           `json:"file_limit"`
	PermanentLimit int           `json:"permanent_file_limit"`
	LifetimeDays   int           `json:"file_lifetime_days"`
}

// NewStorageKey mints a collision-resistant storage key. The original filename
// never appears in it; only the extension is kept so downloads keep their type.
func NewStorageKey(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		ext = ""
	}
	return strings.ReplaceAll(uuid.New().String(), "-", "") + ext
}

// Create persists contents under a fresh storage key and inserts the file row.
// The owner row is locked for the duration of the quota check and insert; when
// the finite file limit is already reached the request fails before any bytes
// are written.
func (s *FileService) Create(ctx context.Context, ownerID uint, filename string, src io.Reader) (*models.File, error) {
	var rec *models.File
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, roles, err := lockOwner(tx, ownerID)
		if err != nil {
			return err
		}
		limits := ResolveLimits(roles)

		if limits.FileLimit != models.UnlimitedQuota {
			var count int64
			if err := tx.Model(&models.File{}).Where("owner_id = ?", user.ID).Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(limits.FileLimit) {
				return fmt.Errorf("%w: file upload limit exceeded, your limit is %d files", ErrForbidden, limits.FileLimit)
			}
		}

		key := NewStorageKey(filename)
		written, err := s.blobs.Save(key, src)
		if err != nil {
			return storageErr("save", err)
		}

		days := limits.LifetimeDays
		if days == models.UnlimitedQuota {
			days = s.retentionDays
		}
		expiry := time.Now().Add(time.Duration(days) * 24 * time.Hour)

		rec = &models.File{
			OwnerID:     user.ID,
			Filename:    filepath.Base(filename),
			StorageKey:  key,
			SizeBytes:   written,
			IsPermanent: false,
			ExpiryTime:  &expiry,
		}
		if err := tx.Create(rec).Error; err != nil {
			_ = s.blobs.Remove(key)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Promote marks a file permanent, re-checking the permanent quota under the
// owner lock. Promoting an already-permanent file succeeds without counting
// the file against its own limit. ExpiryTime is left untouched.
func (s *FileService) Promote(ctx context.Context, ownerID uint, storageKey string) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, roles, err := lockOwner(tx, ownerID)
		if err != nil {
			return err
		}
		if err := s.ownFile(tx, user.ID, storageKey, &file); err != nil {
			return err
		}
		if file.IsPermanent {
			return nil
		}

		limit := ResolveLimits(roles).PermanentFileLimit
		if limit != models.UnlimitedQuota {
			var count int64
			if err := tx.Model(&models.File{}).
				Where("owner_id = ? AND is_permanent = ?", user.ID, true).
				Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(limit) {
				return fmt.Errorf("%w: permanent file quota exceeded, your limit is %d files", ErrForbidden, limit)
			}
		}
		file.IsPermanent = true
		return tx.Model(&file).Update("is_permanent", true).Error
	})
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// Demote clears the permanent flag. ExpiryTime keeps its original value, so a
// file whose old deadline already passed becomes reapable immediately.
func (s *FileService) Demote(ctx context.Context, ownerID uint, storageKey string) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ownFile(tx, ownerID, storageKey, &file); err != nil {
			return err
		}
		if !file.IsPermanent {
			return nil
		}
		file.IsPermanent = false
		return tx.Model(&file).Update("is_permanent", false).Error
	})
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// Delete removes the row and best-effort removes the physical bytes. A missing
// physical file is treated as already deleted, not an error.
func (s *FileService) Delete(ctx context.Context, ownerID uint, storageKey string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file models.File
		if err := s.ownFile(tx, ownerID, storageKey, &file); err != nil {
			return err
		}
		if err := s.blobs.Remove(file.StorageKey); err != nil {
			if os.IsNotExist(err) {
				s.log.Warnw("physical file already absent", "storage_key", file.StorageKey)
			} else {
				return storageErr("remove", err)
			}
		}
		return tx.Delete(&file).Error
	})
}

// List returns the owner's files filtered and sorted, plus aggregate stats and
// the effective limits resolved from the same policy used at upload time.
func (s *FileService) List(ctx context.Context, ownerID uint, filter, sortBy, order string) (*ListResult, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.Preload("Roles").First(&user, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, err
	}

	q := db.Model(&models.File{}).Where("owner_id = ?", user.ID)
	if filter != "" {
		q = q.Where("LOWER(filename) LIKE ?", "%"+strings.ToLower(filter)+"%")
	}

	column := "created_at"
	switch sortBy {
	case "filename":
		column = "filename"
	case "size":
		column = "size_bytes"
	case "upload_time", "":
		column = "created_at"
	default:
		// unrecognized sort keys fall back to upload time
	}
	dir := "DESC"
	if strings.EqualFold(order, "asc") {
		dir = "ASC"
	}

	var files []models.File
	if err := q.Order(column + " " + dir).Find(&files).Error; err != nil {
		return nil, err
	}

	var total, permanent int64
	if err := db.Model(&models.File{}).Where("owner_id = ?", user.ID).Count(&total).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.File{}).Where("owner_id = ? AND is_permanent = ?", user.ID, true).Count(&permanent).Error; err != nil {
		return nil, err
	}

	limits := ResolveLimits(user.Roles)
	return &ListResult{
		Files:          files,
		Count:          total,
		PermanentCount: permanent,
		FileLimit:      limits.FileLimit,
		PermanentLimit: limits.PermanentFileLimit,
		LifetimeDays:   limits.LifetimeDays,
	}, nil
}

// Open verifies ownership and returns the record together with a reader over
// its bytes. Missing physical bytes surface as NotFound.
func (s *FileService) Open(ctx context.Context, ownerID uint, storageKey string) (*models.File, io.ReadCloser, error) {
	var file models.File
	if err := s.ownFile(s.db.WithContext(ctx), ownerID, storageKey, &file); err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(file.StorageKey)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: file content", ErrNotFound)
		}
		return nil, nil, storageErr("open", err)
	}
	return &file, rc, nil
}

// GetByKey loads a file row by storage key without an ownership check. Used by
// the token download path after the token itself proved access.
func (s *FileService) GetByKey(ctx context.Context, storageKey string) (*models.File, error) {
	var file models.File
	if err := s.db.WithContext(ctx).Where("storage_key = ?", storageKey).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: file", ErrNotFound)
		}
		return nil, err
	}
	return &file, nil
}

// OpenBlob returns a reader for a loaded record's bytes.
func (s *FileService) OpenBlob(file *models.File) (io.ReadCloser, error) {
	rc, err := s.blobs.Open(file.StorageKey)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: file content", ErrNotFound)
		}
		return nil, storageErr("open", err)
	}
	return rc, nil
}

// ownFile loads a file by storage key and enforces that ownerID owns it.
func (s *FileService) ownFile(tx *gorm.DB, ownerID uint, storageKey string, out *models.File) error {
	if err := tx.Where("storage_key = ?", storageKey).First(out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: file", ErrNotFound)
		}
		return err
	}
	if out.OwnerID != ownerID {
		return fmt.Errorf("%w: you do not have permission to modify this file", ErrForbidden)
	}
	return nil
}

// lockOwner takes a FOR UPDATE lock on the user row and loads its roles,
// serializing quota checks for one owner. sqlite has no row locks; there the
// whole database lock serializes writers instead.
func lockOwner(tx *gorm.DB, ownerID uint) (*models.User, []models.Role, error) {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var user models.User
	if err := q.First(&user, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, nil, err
	}
	var roles []models.Role
	if err := tx.Model(&user).Association("Roles").Find(&roles); err != nil {
		return nil, nil, err
	}
	return &user, roles, nil
}
