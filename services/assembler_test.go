package services

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s92475mark/remote-file-access/models"
)

func TestChunkedUploadReassemblesOutOfOrder(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "chunker", quotaRole("c", 10, 1, 7))
	ctx := context.Background()

	uploadID, err := env.assembler.Init(ctx, user.ID, "big.bin", 11, "application/octet-stream")
	require.NoError(t, err)

	// chunks arrive in reverse order and with uneven sizes
	require.NoError(t, env.assembler.PutChunk(ctx, uploadID, 2, strings.NewReader("gamma")))
	require.NoError(t, env.assembler.PutChunk(ctx, uploadID, 1, strings.NewReader("beta")))
	require.NoError(t, env.assembler.PutChunk(ctx, uploadID, 0, strings.NewReader("al")))

	file, err := env.assembler.Complete(ctx, uploadID, "big.bin", 3)
	require.NoError(t, err)
	assert.Equal(t, "big.bin", file.Filename)
	assert.EqualValues(t, len("albetagamma"), file.SizeBytes)
	require.NotNil(t, file.ExpiryTime)

	rc, err := env.blobs.Open(file.StorageKey)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "albetagamma", string(got))

	// session and slots are gone after a confirmed merge
	var sessions int64
	require.NoError(t, env.db.Model(&models.UploadSession{}).Count(&sessions).Error)
	assert.Zero(t, sessions)
}

func TestPutChunkValidation(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "validator", quotaRole("v", 10, 1, 7))
	ctx := context.Background()

	err := env.assembler.PutChunk(ctx, "no-such-upload", 0, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNotFound)

	uploadID, err := env.assembler.Init(ctx, user.ID, "f.bin", 1, "")
	require.NoError(t, err)
	err = env.assembler.PutChunk(ctx, uploadID, -1, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrBadRequest)

	// re-sending an index overwrites, it does not append
	require.NoError(t, env.assembler.PutChunk(ctx, uploadID, 0, strings.NewReader("first")))
	require.NoError(t, env.assembler.PutChunk(ctx, uploadID, 0, strings.NewReader("second")))
	file, err := env.assembler.Complete(ctx, uploadID, "", 1)
	require.NoError(t, err)
	assert.Equal(t, "f.bin", file.Filename)
	assert.EqualValues(t, len("second"), file.SizeBytes)
}

func TestCompleteChunkCountMismatchDiscardsSession(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "mismatch", quotaRole("m", 10, 1, 7))
	ctx := context.Background()

	uploadID, err := env.assembler.Init(ctx, user.ID, "half.bin", 4, "")
	require.NoError(t, err)
	require.NoError(t, env.assembler.PutChunk(ctx, uploadID, 0, strings.NewReader("a")))
	require.NoError(t, env.assembler.PutChunk(ctx, uploadID, 1, strings.NewReader("b")))

	_, err = env.assembler.Complete(ctx, uploadID, "", 3)
	require.ErrorIs(t, err, ErrBadRequest)
	assert.Contains(t, err.Error(), "expected 3 chunks, received 2")

	// nothing persisted, session gone, a retry must start over
	var files, sessions int64
	require.NoError(t, env.db.Model(&models.File{}).Count(&files).Error)
	require.NoError(t, env.db.Model(&models.UploadSession{}).Count(&sessions).Error)
	assert.Zero(t, files)
	assert.Zero(t, sessions)
	assert.ErrorIs(t, env.assembler.PutChunk(ctx, uploadID, 2, strings.NewReader("c")), ErrNotFound)
}

func TestCompleteConcurrencyGuard(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "racer", quotaRole("r", 10, 1, 7))
	ctx := context.Background()

	uploadID, err := env.assembler.Init(ctx, user.ID, "race.bin", 1, "")
	require.NoError(t, err)
	require.NoError(t, env.assembler.PutChunk(ctx, uploadID, 0, strings.NewReader("x")))

	// a session already mid-merge refuses both chunks and a second complete
	require.NoError(t, env.db.Model(&models.UploadSession{}).
		Where("upload_id = ?", uploadID).
		Update("status", models.UploadStatusMerging).Error)

	err = env.assembler.PutChunk(ctx, uploadID, 1, strings.NewReader("y"))
	assert.ErrorIs(t, err, ErrConflict)
	_, err = env.assembler.Complete(ctx, uploadID, "", 1)
	assert.ErrorIs(t, err, ErrConflict)

	// completing an already-merged upload is indistinguishable from an
	// unknown one once the session row is gone
	require.NoError(t, env.db.Model(&models.UploadSession{}).
		Where("upload_id = ?", uploadID).
		Update("status", models.UploadStatusPending).Error)
	_, err = env.assembler.Complete(ctx, uploadID, "", 1)
	require.NoError(t, err)
	_, err = env.assembler.Complete(ctx, uploadID, "", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteQuotaFailureKeepsSessionForRetry(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "retrier", quotaRole("tight1", 1, 1, 7))
	ctx := context.Background()

	blocker := mustCreate(t, env, user.ID, "blocker.txt", "x")

	uploadID, err := env.assembler.Init(ctx, user.ID, "wanted.bin", 1, "")
	require.NoError(t, err)
	require.NoError(t, env.assembler.PutChunk(ctx, uploadID, 0, strings.NewReader("payload")))

	_, err = env.assembler.Complete(ctx, uploadID, "", 1)
	require.ErrorIs(t, err, ErrForbidden)

	// the session reopened with its slots intact; freeing quota lets the
	// same complete call succeed without re-sending chunks
	require.NoError(t, env.files.Delete(ctx, user.ID, blocker.StorageKey))
	file, err := env.assembler.Complete(ctx, uploadID, "", 1)
	require.NoError(t, err)
	assert.EqualValues(t, len("payload"), file.SizeBytes)
}

func TestAbort(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "aborter", quotaRole("a", 10, 1, 7))
	ctx := context.Background()

	uploadID, err := env.assembler.Init(ctx, user.ID, "nope.bin", 1, "")
	require.NoError(t, err)
	require.NoError(t, env.assembler.PutChunk(ctx, uploadID, 0, strings.NewReader("x")))

	require.NoError(t, env.assembler.Abort(ctx, uploadID))
	assert.ErrorIs(t, env.assembler.Abort(ctx, uploadID), ErrNotFound)
}

func TestPurgeStale(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "staler", quotaRole("s", 10, 1, 7))
	ctx := context.Background()

	oldID, err := env.assembler.Init(ctx, user.ID, "old.bin", 1, "")
	require.NoError(t, err)
	freshID, err := env.assembler.Init(ctx, user.ID, "fresh.bin", 1, "")
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&models.UploadSession{}).
		Where("upload_id = ?", oldID).
		Update("created_at", time.Now().Add(-48*time.Hour)).Error)

	var stale models.UploadSession
	require.NoError(t, env.db.Where("upload_id = ?", oldID).First(&stale).Error)

	n, err := env.assembler.PurgeStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, statErr := os.Stat(stale.TempDir)
	assert.True(t, os.IsNotExist(statErr))

	var remaining []models.UploadSession
	require.NoError(t, env.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, freshID, remaining[0].UploadID)
}
