package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gorm.io/gorm"

	"github.com/s92475mark/remote-file-access/models"
	"github.com/s92475mark/remote-file-access/utils"
)

// ShareService issues and revokes capability tokens for public downloads. A
// share token is the only identifier usable without authentication.
type ShareService struct {
	db    *gorm.DB
	blobs BlobStore
}

func NewShareService(db *gorm.DB, blobs BlobStore) *ShareService {
	return &ShareService{db: db, blobs: blobs}
}

// CreateLink returns the file's share token, minting one only when absent.
// Calling it twice yields the identical token.
func (s *ShareService) CreateLink(ctx context.Context, ownerID uint, storageKey string) (string, error) {
	var token string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file models.File
		if err := ownedFile(tx, ownerID, storageKey, &file); err != nil {
			return err
		}
		if file.ShareToken != nil {
			token = *file.ShareToken
			return nil
		}
		minted, err := utils.RandomToken(32)
		if err != nil {
			return err
		}
		if err := tx.Model(&file).Update("share_token", minted).Error; err != nil {
			return err
		}
		token = minted
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// RevokeLink clears the token. Revoking a file with no token is a successful
// no-op.
func (s *ShareService) RevokeLink(ctx context.Context, ownerID uint, storageKey string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file models.File
		if err := ownedFile(tx, ownerID, storageKey, &file); err != nil {
			return err
		}
		if file.ShareToken == nil {
			return nil
		}
		return tx.Model(&file).Update("share_token", nil).Error
	})
}

// ResolvePublic maps a share token to the file and a reader over its bytes.
// There is intentionally no authentication here; unknown tokens and missing
// physical bytes both fail NotFound.
func (s *ShareService) ResolvePublic(ctx context.Context, token string) (*models.File, io.ReadCloser, error) {
	var file models.File
	if err := s.db.WithContext(ctx).Where("share_token = ?", token).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: share token", ErrNotFound)
		}
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

// ownedFile loads a file by storage key and enforces ownership.
func ownedFile(tx *gorm.DB, ownerID uint, storageKey string, out *models.File) error {
	if err := tx.Where("storage_key = ?", storageKey).First(out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: file", ErrNotFound)
		}
		return err
	}
	if out.OwnerID != ownerID {
		return fmt.Errorf("%w: you do not have permission to share this file", ErrForbidden)
	}
	return nil
}
