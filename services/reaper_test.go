package services

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/s92475mark/remote-file-access/models"
)

// flakyStore fails Remove once per listed key, then delegates.
type flakyStore struct {
	BlobStore
	failures map[string]int
}

func (s *flakyStore) Remove(key string) error {
	if s.failures[key] > 0 {
		s.failures[key]--
		return errors.New("disk on fire")
	}
	return s.BlobStore.Remove(key)
}

func expireFile(t *testing.T, env *testEnv, f *models.File) {
	t.Helper()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, env.db.Model(&models.File{}).
		Where("id = ?", f.ID).
		Update("expiry_time", past).Error)
}

func newReaper(env *testEnv, blobs BlobStore) *Reaper {
	return NewReaper(env.db, blobs, env.assembler, DefaultReapInterval, zap.NewNop().Sugar())
}

func TestReaperDeletesExpiredFiles(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "reapee", quotaRole("re", 10, 5, 7))
	ctx := context.Background()

	expired := mustCreate(t, env, user.ID, "expired.txt", "old")
	fresh := mustCreate(t, env, user.ID, "fresh.txt", "new")
	protected := mustCreate(t, env, user.ID, "keep.txt", "perm")
	_, err := env.files.Promote(ctx, user.ID, protected.StorageKey)
	require.NoError(t, err)

	expireFile(t, env, expired)
	expireFile(t, env, protected)

	n, err := newReaper(env, env.blobs).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// expired row and bytes gone, everything else untouched
	var keys []string
	require.NoError(t, env.db.Model(&models.File{}).Order("filename").Pluck("filename", &keys).Error)
	assert.Equal(t, []string{"fresh.txt", "keep.txt"}, keys)
	assert.False(t, env.blobs.Exists(expired.StorageKey))
	assert.True(t, env.blobs.Exists(fresh.StorageKey))
	assert.True(t, env.blobs.Exists(protected.StorageKey))

	// a second pass finds nothing
	n, err = newReaper(env, env.blobs).RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReaperRemovesRowWhenBytesAlreadyGone(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "reapghost", quotaRole("rg", 10, 1, 7))
	ctx := context.Background()

	f := mustCreate(t, env, user.ID, "ghost.txt", "g")
	expireFile(t, env, f)
	require.NoError(t, env.blobs.Remove(f.StorageKey))

	n, err := newReaper(env, env.blobs).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var count int64
	require.NoError(t, env.db.Model(&models.File{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReaperRetriesAfterStorageError(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "reapretry", quotaRole("rr", 10, 1, 7))
	ctx := context.Background()

	stuck := mustCreate(t, env, user.ID, "stuck.txt", "s")
	smooth := mustCreate(t, env, user.ID, "smooth.txt", "s")
	expireFile(t, env, stuck)
	expireFile(t, env, smooth)

	store := &flakyStore{BlobStore: env.blobs, failures: map[string]int{stuck.StorageKey: 1}}
	reaper := newReaper(env, store)

	// first pass: the failing delete is skipped, the healthy one proceeds
	n, err := reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var remaining []models.File
	require.NoError(t, env.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, stuck.StorageKey, remaining[0].StorageKey)
	assert.True(t, env.blobs.Exists(stuck.StorageKey))

	// next pass the storage recovered and the row drains
	n, err = reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, env.blobs.Exists(stuck.StorageKey))
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	reaper := NewReaper(env.db, env.blobs, env.assembler, 10*time.Millisecond, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}

// guards the BlobStore contract the reaper relies on: Remove of an absent key
// reports os.IsNotExist, not a generic error.
func TestDiskStoreRemoveMissing(t *testing.T) {
	env := newTestEnv(t)
	err := env.blobs.Remove("0123456789abcdef0123456789abcdef")
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}
