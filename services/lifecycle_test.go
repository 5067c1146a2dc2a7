package services

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s92475mark/remote-file-access/models"
)

func mustCreate(t *testing.T, env *testEnv, ownerID uint, filename, content string) *models.File {
	t.Helper()
	rec, err := env.files.Create(context.Background(), ownerID, filename, strings.NewReader(content))
	require.NoError(t, err)
	return rec
}

func TestNewStorageKey(t *testing.T) {
	key := NewStorageKey("Report.PDF")
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.Len(t, key, 32+len(".pdf"))

	// keys never embed the original name
	assert.NotContains(t, strings.ToLower(key), "report")

	// oversized or hostile extensions are dropped
	assert.Len(t, NewStorageKey("archive.超長拡張子あり過ぎる何か"), 32)
	assert.Len(t, NewStorageKey("noext"), 32)
	assert.NotEqual(t, NewStorageKey("a.txt"), NewStorageKey("a.txt"))
}

func TestCreateEnforcesFileLimit(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "capped", quotaRole("small", 2, 1, 7))

	mustCreate(t, env, user.ID, "a.txt", "aa")
	mustCreate(t, env, user.ID, "b.txt", "bb")

	_, err := env.files.Create(context.Background(), user.ID, "c.txt", strings.NewReader("cc"))
	require.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, err.Error(), "limit")

	// the rejected upload must not leave a row behind
	var count int64
	require.NoError(t, env.db.Model(&models.File{}).Where("owner_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestCreateUnlimitedRole(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "admin", quotaRole("root", -1, -1, -1))

	for i := 0; i < 5; i++ {
		mustCreate(t, env, user.ID, "f.txt", "x")
	}
	var count int64
	require.NoError(t, env.db.Model(&models.File{}).Where("owner_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 5, count)
}

func TestCreateExpiry(t *testing.T) {
	env := newTestEnv(t)

	t.Run("role lifetime applied", func(t *testing.T) {
		user := createUser(t, env.db, "threeday", quotaRole("threeday", 10, 1, 3))
		rec := mustCreate(t, env, user.ID, "a.txt", "a")
		require.NotNil(t, rec.ExpiryTime)
		assert.WithinDuration(t, time.Now().Add(3*24*time.Hour), *rec.ExpiryTime, time.Minute)
		assert.False(t, rec.IsPermanent)
	})

	t.Run("unlimited lifetime falls back to default retention", func(t *testing.T) {
		user := createUser(t, env.db, "nolimit", quotaRole("nolifetime", 10, 1, -1))
		rec := mustCreate(t, env, user.ID, "b.txt", "b")
		require.NotNil(t, rec.ExpiryTime)
		assert.WithinDuration(t, time.Now().Add(DefaultRetentionDays*24*time.Hour), *rec.ExpiryTime, time.Minute)
	})
}

func TestCreateStoresBytes(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "writer", quotaRole("w", 10, 1, 7))

	rec := mustCreate(t, env, user.ID, "hello.txt", "hello world")
	assert.EqualValues(t, len("hello world"), rec.SizeBytes)

	rc, err := env.blobs.Open(rec.StorageKey)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestCreateUnknownOwner(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.files.Create(context.Background(), 9999, "a.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPromoteDemote(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "promoter", quotaRole("p", 3, 1, 7))

	f1 := mustCreate(t, env, user.ID, "one.txt", "1")
	f2 := mustCreate(t, env, user.ID, "two.txt", "2")
	origExpiry := *f1.ExpiryTime

	got, err := env.files.Promote(context.Background(), user.ID, f1.StorageKey)
	require.NoError(t, err)
	assert.True(t, got.IsPermanent)
	// promotion never touches the deadline
	require.NotNil(t, got.ExpiryTime)
	assert.WithinDuration(t, origExpiry, *got.ExpiryTime, time.Second)

	// promoting again is a no-op, not a quota violation
	got, err = env.files.Promote(context.Background(), user.ID, f1.StorageKey)
	require.NoError(t, err)
	assert.True(t, got.IsPermanent)

	// a second file exceeds the permanent quota of 1
	_, err = env.files.Promote(context.Background(), user.ID, f2.StorageKey)
	require.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, err.Error(), "permanent")

	// demoting the first frees the slot
	got, err = env.files.Demote(context.Background(), user.ID, f1.StorageKey)
	require.NoError(t, err)
	assert.False(t, got.IsPermanent)
	require.NotNil(t, got.ExpiryTime)
	assert.WithinDuration(t, origExpiry, *got.ExpiryTime, time.Second)

	_, err = env.files.Promote(context.Background(), user.ID, f2.StorageKey)
	assert.NoError(t, err)
}

func TestQuotaScenario(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "scenario", quotaRole("sc", 3, 1, -1))
	ctx := context.Background()

	f1 := mustCreate(t, env, user.ID, "one.txt", "1")
	mustCreate(t, env, user.ID, "two.txt", "2")
	f3 := mustCreate(t, env, user.ID, "three.txt", "3")

	// unlimited lifetime still yields a deadline via the default retention
	require.NotNil(t, f1.ExpiryTime)
	assert.WithinDuration(t, time.Now().Add(DefaultRetentionDays*24*time.Hour), *f1.ExpiryTime, time.Minute)

	_, err := env.files.Create(ctx, user.ID, "four.txt", strings.NewReader("4"))
	require.ErrorIs(t, err, ErrForbidden)

	got, err := env.files.Promote(ctx, user.ID, f1.StorageKey)
	require.NoError(t, err)
	assert.WithinDuration(t, *f1.ExpiryTime, *got.ExpiryTime, time.Second)

	_, err = env.files.Promote(ctx, user.ID, f3.StorageKey)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.files.Demote(ctx, user.ID, f1.StorageKey)
	require.NoError(t, err)
	_, err = env.files.Promote(ctx, user.ID, f3.StorageKey)
	assert.NoError(t, err)
}

func TestDemoteNonPermanentIsNoop(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "noop", quotaRole("n", 3, 1, 7))
	f := mustCreate(t, env, user.ID, "a.txt", "a")

	got, err := env.files.Demote(context.Background(), user.ID, f.StorageKey)
	require.NoError(t, err)
	assert.False(t, got.IsPermanent)
}

func TestOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	owner := createUser(t, env.db, "owner", quotaRole("o", 3, 1, 7))
	intruder := createUser(t, env.db, "intruder", quotaRole("o", 3, 1, 7))
	f := mustCreate(t, env, owner.ID, "secret.txt", "s")

	_, err := env.files.Promote(context.Background(), intruder.ID, f.StorageKey)
	assert.ErrorIs(t, err, ErrForbidden)

	err = env.files.Delete(context.Background(), intruder.ID, f.StorageKey)
	assert.ErrorIs(t, err, ErrForbidden)

	_, _, err = env.files.Open(context.Background(), intruder.ID, f.StorageKey)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.files.Promote(context.Background(), owner.ID, "no-such-key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFreesQuota(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "cycler", quotaRole("tight", 1, 1, 7))

	f := mustCreate(t, env, user.ID, "only.txt", "x")
	_, err := env.files.Create(context.Background(), user.ID, "blocked.txt", strings.NewReader("y"))
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, env.files.Delete(context.Background(), user.ID, f.StorageKey))
	assert.False(t, env.blobs.Exists(f.StorageKey))

	mustCreate(t, env, user.ID, "again.txt", "z")
}

func TestDeleteToleratesMissingBlob(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "ghost", quotaRole("g", 3, 1, 7))
	f := mustCreate(t, env, user.ID, "gone.txt", "x")

	require.NoError(t, env.blobs.Remove(f.StorageKey))
	require.NoError(t, env.files.Delete(context.Background(), user.ID, f.StorageKey))

	var count int64
	require.NoError(t, env.db.Model(&models.File{}).Where("owner_id = ?", user.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListFilterAndSort(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "lister", quotaRole("l", 10, 2, 7))

	mustCreate(t, env, user.ID, "alpha.txt", "aaaa")
	mustCreate(t, env, user.ID, "Beta.txt", "bb")
	gamma := mustCreate(t, env, user.ID, "gamma.bin", "cccccc")
	_, err := env.files.Promote(context.Background(), user.ID, gamma.StorageKey)
	require.NoError(t, err)

	names := func(files []models.File) []string {
		out := make([]string, len(files))
		for i, f := range files {
			out[i] = f.Filename
		}
		return out
	}

	t.Run("filter is case-insensitive substring", func(t *testing.T) {
		res, err := env.files.List(context.Background(), user.ID, "beta", "filename", "asc")
		require.NoError(t, err)
		assert.Equal(t, []string{"Beta.txt"}, names(res.Files))
		// aggregate stats count everything, not just the filtered page
		assert.EqualValues(t, 3, res.Count)
		assert.EqualValues(t, 1, res.PermanentCount)
	})

	t.Run("sort by filename ascending", func(t *testing.T) {
		res, err := env.files.List(context.Background(), user.ID, "", "filename", "asc")
		require.NoError(t, err)
		assert.Equal(t, []string{"Beta.txt", "alpha.txt", "gamma.bin"}, names(res.Files))
	})

	t.Run("sort by size descending", func(t *testing.T) {
		res, err := env.files.List(context.Background(), user.ID, "", "size", "desc")
		require.NoError(t, err)
		assert.Equal(t, []string{"gamma.bin", "alpha.txt", "Beta.txt"}, names(res.Files))
	})

	t.Run("unknown sort key falls back to upload time", func(t *testing.T) {
		res, err := env.files.List(context.Background(), user.ID, "", "owner_id; DROP TABLE files", "asc")
		require.NoError(t, err)
		assert.Len(t, res.Files, 3)
	})

	t.Run("limits come from the role set", func(t *testing.T) {
		res, err := env.files.List(context.Background(), user.ID, "", "", "")
		require.NoError(t, err)
		assert.Equal(t, 10, res.FileLimit)
		assert.Equal(t, 2, res.PermanentLimit)
		assert.Equal(t, 7, res.LifetimeDays)
	})
}

func TestListScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	a := createUser(t, env.db, "usera", quotaRole("s", 10, 1, 7))
	b := createUser(t, env.db, "userb", quotaRole("s", 10, 1, 7))
	mustCreate(t, env, a.ID, "mine.txt", "m")
	mustCreate(t, env, b.ID, "theirs.txt", "t")

	res, err := env.files.List(context.Background(), a.ID, "", "", "")
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "mine.txt", res.Files[0].Filename)
}

func TestOpenRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	user := createUser(t, env.db, "reader", quotaRole("r", 3, 1, 7))
	f := mustCreate(t, env, user.ID, "doc.txt", "round trip")

	rec, rc, err := env.files.Open(context.Background(), user.ID, f.StorageKey)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "doc.txt", rec.Filename)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "round trip", string(got))

	// missing bytes surface as not found, not as a storage fault
	require.NoError(t, env.blobs.Remove(f.StorageKey))
	_, _, err = env.files.Open(context.Background(), user.ID, f.StorageKey)
	assert.ErrorIs(t, err, ErrNotFound)
}
