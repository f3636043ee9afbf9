package backup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/files"
	"github.com/swicore/switcher/pkg/types"
)

// CreateSnapshot materialises a hard-link snapshot tree against the server's
// last snapshot. A base that no longer exists (deleted backup) degrades to a
// full snapshot where every file is CREATE.
func (e *Engine) CreateSnapshot(ctx context.Context, target Target, comments string) (*files.Task, uuid.UUID, error) {
	if !e.snapshots {
		return nil, uuid.Nil, errs.ErrInvalidBackup.WithDetail("snapshots are disabled")
	}
	if err := e.guard(target.ServerID); err != nil {
		return nil, uuid.Nil, err
	}

	base, baseFiles, err := e.loadBase(ctx, target)
	if err != nil {
		return nil, uuid.Nil, err
	}

	backupID := uuid.New()
	now := time.Now()
	relPath := target.SourceID.String() + "/" + timestampName(now, comments)
	absPath := filepath.Join(e.root, filepath.FromSlash(relPath))

	task := e.files.NewTask(types.TaskBackup,
		files.Path{Real: target.Dir, Virtual: "/"},
		files.Path{Real: absPath, Virtual: relPath},
		target.ServerID)
	e.bus.Publish(types.BackupStart{ServerID: target.ServerID, BackupID: backupID, Type: types.BackupSnapshot, TaskID: task.ID()})
	e.notifyEnd(task, target.ServerID, backupID, types.BackupSnapshot)

	e.files.Run(task, func(ctx context.Context, progress func(float64)) error {
		scanned, errFiles := scanDir(target.Dir)
		rows, materializeErrs := e.materialize(target.Dir, absPath, base, baseFiles, scanned, progress)
		errFiles = append(errFiles, materializeErrs...)

		var totalFiles, totalSize int64
		for _, info := range scanned {
			if !info.IsDir {
				totalFiles++
				totalSize += info.Size
			}
		}
		record := &types.Backup{
			ID:             backupID,
			Type:           types.BackupSnapshot,
			Source:         target.SourceID,
			Created:        now,
			Path:           relPath,
			Comments:       comments,
			TotalFiles:     totalFiles,
			TotalFilesSize: totalSize,
			ErrorFiles:     int64(len(errFiles)),
		}
		if base != nil {
			record.PreviousBackup = &base.ID
		}
		for i := range rows {
			rows[i].BackupID = backupID
		}
		for i := range errFiles {
			errFiles[i].BackupID = backupID
		}
		if err := e.store.InsertSnapshot(ctx, record, rows, errFiles); err != nil {
			os.RemoveAll(absPath)
			return err
		}
		e.log.Info().Str("server", target.ServerID).Str("backup_id", backupID.String()).
			Int("files", len(rows)).Int("errors", len(errFiles)).Msg("snapshot complete")
		return nil
	})
	return task, backupID, nil
}

// loadBase resolves the server's last snapshot and its file table. A
// last_backup_id pointing at a deleted or non-snapshot record yields no base.
func (e *Engine) loadBase(ctx context.Context, target Target) (*types.Backup, map[string]types.SnapshotFile, error) {
	if target.LastBackupID == nil {
		return nil, nil, nil
	}
	base, err := e.store.GetBackup(ctx, *target.LastBackupID)
	if err != nil {
		if errs.ErrBackupNotFound.Is(err) {
			e.log.Warn().Str("server", target.ServerID).Str("backup_id", target.LastBackupID.String()).
				Msg("base snapshot missing, creating full snapshot")
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if base.Type != types.BackupSnapshot {
		return nil, nil, nil
	}
	rows, err := e.store.SnapshotFiles(ctx, base.ID)
	if err != nil {
		return nil, nil, err
	}
	byPath := make(map[string]types.SnapshotFile, len(rows))
	for _, r := range rows {
		byPath[r.Path] = r
	}
	return base, byPath, nil
}

// materialize builds the snapshot tree: unchanged files hard-link into the
// base tree, changed or new files copy, directories mkdir, paths gone from
// the source record DELETE rows without an artifact.
func (e *Engine) materialize(srcDir, dstDir string, base *types.Backup, baseFiles map[string]types.SnapshotFile,
	scanned map[string]types.FileInfo, progress func(float64)) ([]types.SnapshotFile, []types.SnapshotErrorFile) {

	var rows []types.SnapshotFile
	var errFiles []types.SnapshotErrorFile
	fail := func(path string, ftype types.SnapshotFileType, et types.SnapshotErrorType, err error) {
		t := ftype
		errFiles = append(errFiles, types.SnapshotErrorFile{Path: path, Type: &t, ErrorType: et, ErrorMessage: err.Error()})
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		fail(".", types.SnapshotEntryDirectory, types.SnapshotErrMkdir, err)
		return rows, errFiles
	}

	paths := sortedPaths(scanned)
	var baseDir string
	if base != nil {
		baseDir = e.BackupPath(base)
	}

	for i, rel := range paths {
		info := scanned[rel]
		dst := filepath.Join(dstDir, filepath.FromSlash(rel))
		baseRow, inBase := baseFiles[rel]

		switch {
		case info.IsDir:
			status := types.StatusCreate
			if inBase && baseRow.Type == types.SnapshotEntryDirectory && baseRow.Status != types.StatusDelete {
				status = types.StatusNoChange
			}
			if err := os.MkdirAll(dst, 0o755); err != nil {
				fail(rel, types.SnapshotEntryDirectory, types.SnapshotErrMkdir, err)
				continue
			}
			rows = append(rows, snapshotRow(rel, info, status))

		case inBase && baseRow.Status != types.StatusDelete && rowEqual(baseRow, info) && baseDir != "":
			baseFile := filepath.Join(baseDir, filepath.FromSlash(rel))
			if err := os.Link(baseFile, dst); err != nil {
				fail(rel, types.SnapshotEntryFile, types.SnapshotErrLink, err)
				if err := copyFileTimes(filepath.Join(srcDir, filepath.FromSlash(rel)), dst, info); err != nil {
					fail(rel, types.SnapshotEntryFile, types.SnapshotErrCopy, err)
					continue
				}
				// The copy fallback records UPDATE: the row carries its own
				// artifact like any changed file, while CREATE stays reserved
				// for paths new to the chain.
				rows = append(rows, snapshotRow(rel, info, types.StatusUpdate))
				continue
			}
			rows = append(rows, snapshotRow(rel, info, types.StatusLink))

		default:
			status := types.StatusCreate
			if inBase && baseRow.Type == types.SnapshotEntryFile && baseRow.Status != types.StatusDelete {
				status = types.StatusUpdate
			}
			if err := copyFileTimes(filepath.Join(srcDir, filepath.FromSlash(rel)), dst, info); err != nil {
				fail(rel, types.SnapshotEntryFile, types.SnapshotErrCopy, err)
				continue
			}
			rows = append(rows, snapshotRow(rel, info, status))
		}

		if progress != nil {
			progress(float64(i+1) / float64(len(paths)))
		}
	}

	// Paths present in the base but gone from the source.
	for rel, baseRow := range baseFiles {
		if _, ok := scanned[rel]; ok || baseRow.Status == types.StatusDelete {
			continue
		}
		rows = append(rows, types.SnapshotFile{Path: rel, Type: baseRow.Type, Status: types.StatusDelete})
	}
	return rows, errFiles
}

func snapshotRow(rel string, info types.FileInfo, status types.FileStatus) types.SnapshotFile {
	ftype := types.SnapshotEntryFile
	var size *int64
	if info.IsDir {
		ftype = types.SnapshotEntryDirectory
	} else {
		s := info.Size
		size = &s
	}
	mod := info.Modified
	return types.SnapshotFile{Path: rel, Type: ftype, Size: size, Status: status, Modified: &mod}
}

// rowEqual compares a persisted snapshot row against a live scan entry.
func rowEqual(row types.SnapshotFile, info types.FileInfo) bool {
	if row.Type == types.SnapshotEntryDirectory || info.IsDir {
		return row.Type == types.SnapshotEntryDirectory && info.IsDir
	}
	if row.Size == nil || row.Modified == nil {
		return false
	}
	return *row.Size == info.Size && row.Modified.Equal(info.Modified)
}

func copyFileTimes(src, dst string, info types.FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.Modified, info.Modified)
}
