package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/s92475mark/remote-file-access/models"
)

// DefaultChunkSize is the chunk size advertised to clients at init. The
// assembler itself accepts whatever chunk sizes the caller sends; only the
// final slot-count check matters.
const DefaultChunkSize = 5 * 1024 * 1024

// Assembler accepts out-of-order chunks for in-progress uploads and merges
// them into a single stream handed to the FileService. Each chunk occupies a
// distinct slot keyed by (uploadID, index), so concurrent chunk writes for the
// same upload never race each other.
type Assembler struct {
	db        *gorm.DB
	files     *FileService
	tmpRoot   string
	chunkSize int64
	log       *zap.SugaredLogger
}

func NewAssembler(db *gorm.DB, files *FileService, tmpRoot string, chunkSize int64, log *zap.SugaredLogger) (*Assembler, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if err := os.MkdirAll(tmpRoot, 0o755); err != nil {
		return nil, err
	}
	return &Assembler{db: db, files: files, tmpRoot: tmpRoot, chunkSize: chunkSize, log: log}, nil
}

// ChunkSize reports the advertised chunk size for init responses.
func (a *Assembler) ChunkSize() int64 { return a.chunkSize }

// Init opens a new upload session and allocates its slot directory. No quota
// is reserved here; the check happens at Complete, symmetric with the
// whole-file path.
func (a *Assembler) Init(ctx context.Context, ownerID uint, filename string, declaredSize int64, contentType string) (string, error) {
	uploadID := uuid.New().String()
	dir := filepath.Join(a.tmpRoot, uploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", storageErr("mkdir", err)
	}

	session := models.UploadSession{
		UploadID:     uploadID,
		OwnerID:      ownerID,
		Filename:     filepath.Base(filename),
		DeclaredSize: declaredSize,
		ContentType:  contentType,
		TempDir:      dir,
		Status:       models.UploadStatusPending,
	}
	if err := a.db.WithContext(ctx).Create(&session).Error; err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	return uploadID, nil
}

// PutChunk writes one chunk into its slot. Unknown upload ids fail NotFound.
// Re-sending an index overwrites the previous slot content.
func (a *Assembler) PutChunk(ctx context.Context, uploadID string, index int, chunk io.Reader) error {
	if index < 0 {
		return fmt.Errorf("%w: negative chunk index", ErrBadRequest)
	}
	session, err := a.session(ctx, uploadID)
	if err != nil {
		return err
	}
	if session.Status != models.UploadStatusPending {
		return fmt.Errorf("%w: upload already completing", ErrConflict)
	}

	dst := filepath.Join(session.TempDir, strconv.Itoa(index)+".part")
	out, err := os.Create(dst)
	if err != nil {
		return storageErr("chunk create", err)
	}
	_, err = io.Copy(out, chunk)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return storageErr("chunk write", err)
	}
	return nil
}

// Complete checks that exactly totalChunks slots exist, merges them in
// ascending index order and hands the stream to FileService.Create. The slots
// are deleted only after the store confirms persistence. On a count mismatch
// the partial session is discarded and the caller must restart. Two concurrent
// Complete calls race on a status update; the loser fails Conflict.
func (a *Assembler) Complete(ctx context.Context, uploadID, filename string, totalChunks int) (*models.File, error) {
	session, err := a.session(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if filename == "" {
		filename = session.Filename
	}

	// First caller to flip pending -> merging wins.
	res := a.db.WithContext(ctx).Model(&models.UploadSession{}).
		Where("upload_id = ? AND status = ?", uploadID, models.UploadStatusPending).
		Update("status", models.UploadStatusMerging)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: upload already completed", ErrConflict)
	}

	indices, err := a.slotIndices(session.TempDir)
	if err != nil {
		a.reopen(uploadID)
		return nil, storageErr("list chunks", err)
	}
	if len(indices) != totalChunks {
		// Mismatch discards the partial session rather than silently
		// completing with fewer chunks.
		a.discard(session)
		return nil, fmt.Errorf("%w: expected %d chunks, received %d", ErrBadRequest, totalChunks, len(indices))
	}

	readers := make([]io.Reader, 0, len(indices))
	handles := make([]*os.File, 0, len(indices))
	closeAll := func() {
		for _, h := range handles {
			_ = h.Close()
		}
	}
	for _, idx := range indices {
		f, err := os.Open(filepath.Join(session.TempDir, strconv.Itoa(idx)+".part"))
		if err != nil {
			closeAll()
			a.reopen(uploadID)
			return nil, storageErr("open chunk", err)
		}
		handles = append(handles, f)
		readers = append(readers, f)
	}

	file, err := a.files.Create(ctx, session.OwnerID, filename, io.MultiReader(readers...))
	closeAll()
	if err != nil {
		// Leave the slots in place; the session stays open for retry.
		a.reopen(uploadID)
		return nil, err
	}

	a.discard(session)
	return file, nil
}

// Abort drops a session and its slots. Clearing an unknown id is a NotFound.
func (a *Assembler) Abort(ctx context.Context, uploadID string) error {
	session, err := a.session(ctx, uploadID)
	if err != nil {
		return err
	}
	a.discard(session)
	return nil
}

// PurgeStale enumerates sessions older than maxAge and garbage-collects them,
// slots included. Returns the number of sessions removed.
func (a *Assembler) PurgeStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	var stale []models.UploadSession
	if err := a.db.WithContext(ctx).Where("created_at < ?", cutoff).Find(&stale).Error; err != nil {
		return 0, err
	}
	for i := range stale {
		a.discard(&stale[i])
	}
	return len(stale), nil
}

func (a *Assembler) session(ctx context.Context, uploadID string) (*models.UploadSession, error) {
	var session models.UploadSession
	if err := a.db.WithContext(ctx).Where("upload_id = ?", uploadID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: upload session", ErrNotFound)
		}
		return nil, err
	}
	return &session, nil
}

// slotIndices returns the received chunk indices in ascending order.
func (a *Assembler) slotIndices(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	indices := make([]int, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".part") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(name, ".part"))
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}

func (a *Assembler) discard(session *models.UploadSession) {
	if err := os.RemoveAll(session.TempDir); err != nil {
		a.log.Warnw("failed to remove upload temp dir", "upload_id", session.UploadID, "err", err)
	}
	if err := a.db.Where("upload_id = ?", session.UploadID).Delete(&models.UploadSession{}).Error; err != nil {
		a.log.Warnw("failed to delete upload session row", "upload_id", session.UploadID, "err", err)
	}
}

// reopen flips a merging session back to pending after a failed completion.
func (a *Assembler) reopen(uploadID string) {
	if err := a.db.Model(&models.UploadSession{}).
		Where("upload_id = ?", uploadID).
		Update("status", models.UploadStatusPending).Error; err != nil {
		a.log.Warnw("failed to reopen upload session", "upload_id", uploadID, "err", err)
	}
}
