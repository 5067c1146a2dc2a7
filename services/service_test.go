package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/s92475mark/remote-file-access/models"
)

// testEnv bundles the engine with a throwaway database and blob directory.
type testEnv struct {
	db        *gorm.DB
	blobs     *DiskStore
	files     *FileService
	assembler *Assembler
	shares    *ShareService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "engine.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.File{},
		&models.UploadSession{},
	))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	blobs, err := NewDiskStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	files := NewFileService(db, blobs, DefaultRetentionDays, log)
	assembler, err := NewAssembler(db, files, filepath.Join(t.TempDir(), "uploads"), DefaultChunkSize, log)
	require.NoError(t, err)

	return &testEnv{
		db:        db,
		blobs:     blobs,
		files:     files,
		assembler: assembler,
		shares:    NewShareService(db, blobs),
	}
}

// createUser inserts a user holding the given roles.
func createUser(t *testing.T, db *gorm.DB, account string, roles ...models.Role) *models.User {
	t.Helper()
	for i := range roles {
		require.NoError(t, db.Where("role_name = ?", roles[i].RoleName).FirstOrCreate(&roles[i]).Error)
	}
	user := &models.User{
		Account:      account,
		PasswordHash: "x",
		UserName:     account,
		Roles:        roles,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// quotaRole builds a role carrying the three quota fields.
func quotaRole(name string, fileLimit, permLimit, lifetimeDays int) models.Role {
	return models.Role{
		RoleName:           name,
		Level:              3,
		FileLimit:          fileLimit,
		PermanentFileLimit: permLimit,
		FileLifetimeDays:   lifetimeDays,
	}
}
