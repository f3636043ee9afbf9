package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "admin", "$2a$10$hash", 10)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, s.UpdateSession(ctx, u.ID, "tok-1", now.Add(14*24*time.Hour), now, "127.0.0.1"))

	got, err := s.GetUserByToken(ctx, "tok-1", now)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Name)
	assert.Equal(t, "127.0.0.1", got.LastAddress)

	// Expired token must fail auth lookups.
	require.NoError(t, s.SetTokenExpire(ctx, u.ID, now.Add(-time.Second)))
	_, err = s.GetUserByToken(ctx, "tok-1", now)
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)

	// Unknown token.
	_, err = s.GetUserByToken(ctx, "nope", now)
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)
}

func TestRemoveUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "bob", "h", 0)
	require.NoError(t, err)
	require.NoError(t, s.RemoveUser(ctx, "bob"))
	assert.ErrorIs(t, s.RemoveUser(ctx, "bob"), errs.ErrUserNotFound)
}

func snapshotFixture(source uuid.UUID, prev *uuid.UUID) (*types.Backup, []types.SnapshotFile, []types.SnapshotErrorFile) {
	size := int64(1024)
	mod := time.Now().UTC().Truncate(time.Second)
	b := &types.Backup{
		ID:             uuid.New(),
		Type:           types.BackupSnapshot,
		Source:         source,
		Created:        time.Now().UTC(),
		PreviousBackup: prev,
		Path:           source.String() + "/20260824_120000",
		TotalFiles:     2,
		TotalFilesSize: 1024,
	}
	files := []types.SnapshotFile{
		{Path: "world", Type: types.SnapshotEntryDirectory, Status: types.StatusCreate},
		{Path: "world/level.dat", Type: types.SnapshotEntryFile, Size: &size, Status: types.StatusCreate, Modified: &mod},
	}
	errFiles := []types.SnapshotErrorFile{
		{Path: "locked.dat", ErrorType: types.SnapshotErrScan, ErrorMessage: "permission denied"},
	}
	return b, files, errFiles
}

func TestSnapshotTransaction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	source := uuid.New()

	b, files, errFiles := snapshotFixture(source, nil)
	require.NoError(t, s.InsertSnapshot(ctx, b, files, errFiles))

	got, err := s.GetBackup(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BackupSnapshot, got.Type)
	assert.Equal(t, source, got.Source)

	sf, err := s.SnapshotFiles(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, sf, 2)
	assert.Equal(t, "world", sf[0].Path) // sorted by path
	assert.Equal(t, types.SnapshotEntryDirectory, sf[0].Type)

	ef, err := s.SnapshotErrorFiles(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, ef, 1)
	assert.Equal(t, types.SnapshotErrScan, ef[0].ErrorType)

	latest, err := s.LatestSnapshot(ctx, source)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, b.ID, latest.ID)
}

func TestDeleteBackupRemovesAllRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b, files, errFiles := snapshotFixture(uuid.New(), nil)
	require.NoError(t, s.InsertSnapshot(ctx, b, files, errFiles))
	require.NoError(t, s.DeleteBackup(ctx, b.ID))

	_, err := s.GetBackup(ctx, b.ID)
	assert.ErrorIs(t, err, errs.ErrBackupNotFound)

	sf, err := s.SnapshotFiles(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, sf)

	assert.ErrorIs(t, s.DeleteBackup(ctx, b.ID), errs.ErrBackupNotFound)
}

func TestFileHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	source := uuid.New()

	a, filesA, _ := snapshotFixture(source, nil)
	a.Created = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.InsertSnapshot(ctx, a, filesA, nil))

	b, filesB, _ := snapshotFixture(source, &a.ID)
	filesB[1].Status = types.StatusUpdate
	require.NoError(t, s.InsertSnapshot(ctx, b, filesB, nil))

	hist, err := s.FileHistory(ctx, source, "world/level.dat")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, b.ID, hist[0].BackupID) // newest first
	assert.Equal(t, types.StatusUpdate, hist[0].Status)
}

func TestListBackupsBySource(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	src1, src2 := uuid.New(), uuid.New()

	full := &types.Backup{
		ID: uuid.New(), Type: types.BackupFull, Source: src1,
		Created: time.Now().UTC(), Path: src1.String() + "/20260824_110000.zip",
		TotalFiles: 2, TotalFilesSize: 1536,
	}
	require.NoError(t, s.InsertBackup(ctx, full))

	b, files, _ := snapshotFixture(src2, nil)
	require.NoError(t, s.InsertSnapshot(ctx, b, files, nil))

	got, err := s.ListBackupsBySource(ctx, src1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.BackupFull, got[0].Type)

	all, err := s.ListBackups(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
