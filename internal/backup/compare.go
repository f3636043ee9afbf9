package backup

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/swicore/switcher/pkg/types"
)

// Compare diffs two scans. Paths in both with equal info are NO_CHANGE,
// differing are UPDATE; only-new are CREATE; only-old are DELETE. Output is
// sorted by path.
func Compare(oldFiles, newFiles map[string]types.FileInfo) []types.BackupFileDiff {
	seen := map[string]bool{}
	var out []types.BackupFileDiff

	for path, newInfo := range newFiles {
		seen[path] = true
		n := newInfo
		diff := types.BackupFileDiff{Path: path, New: &n}
		if oldInfo, ok := oldFiles[path]; ok {
			o := oldInfo
			diff.Old = &o
			if oldInfo.Equal(newInfo) {
				diff.Status = types.StatusNoChange
			} else {
				diff.Status = types.StatusUpdate
			}
		} else {
			diff.Status = types.StatusCreate
		}
		out = append(out, diff)
	}
	for path, oldInfo := range oldFiles {
		if seen[path] {
			continue
		}
		o := oldInfo
		out = append(out, types.BackupFileDiff{Path: path, Old: &o, Status: types.StatusDelete})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Preview scans the live server directory and, when snapshot is set, diffs
// it against the server's latest snapshot.
func (e *Engine) Preview(ctx context.Context, target Target, snapshot bool) (*types.BackupPreview, error) {
	live, scanErrs := scanDir(target.Dir)

	base := map[string]types.FileInfo{}
	if snapshot {
		latest, err := e.store.LatestSnapshot(ctx, target.SourceID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			rows, err := e.store.SnapshotFiles(ctx, latest.ID)
			if err != nil {
				return nil, err
			}
			base = rowsToInfos(rows)
		}
	}

	preview := aggregate(Compare(base, live))
	preview.ErrorFiles = int64(len(scanErrs))
	return preview, nil
}

// FilesCompare diffs a backup's file table against another backup's (the
// recorded previous one when otherID is nil). With checkFiles set, the
// snapshot tree is re-scanned on disk first and missing paths count as
// errors.
func (e *Engine) FilesCompare(ctx context.Context, backupID uuid.UUID, otherID *uuid.UUID, checkFiles bool) (*types.BackupPreview, error) {
	b, err := e.store.GetBackup(ctx, backupID)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.SnapshotFiles(ctx, backupID)
	if err != nil {
		return nil, err
	}

	var missing int64
	if checkFiles {
		rows, missing = e.checkOnDisk(b, rows)
	}

	base := map[string]types.FileInfo{}
	if otherID == nil {
		otherID = b.PreviousBackup
	}
	if otherID != nil {
		baseRows, err := e.store.SnapshotFiles(ctx, *otherID)
		if err != nil {
			return nil, err
		}
		base = rowsToInfos(baseRows)
	}

	preview := aggregate(Compare(base, rowsToInfos(rows)))
	preview.ErrorFiles += missing
	return preview, nil
}

// Verify re-scans a snapshot's on-disk tree and diffs it against its
// recorded base.
func (e *Engine) Verify(ctx context.Context, backupID uuid.UUID) (*types.BackupPreview, error) {
	return e.FilesCompare(ctx, backupID, nil, true)
}

// checkOnDisk drops rows whose artifact is gone and reports their count.
// Sizes are refreshed from disk.
func (e *Engine) checkOnDisk(b *types.Backup, rows []types.SnapshotFile) ([]types.SnapshotFile, int64) {
	root := e.BackupPath(b)
	var kept []types.SnapshotFile
	var missing int64
	for _, r := range rows {
		if r.Status == types.StatusDelete {
			kept = append(kept, r)
			continue
		}
		st, err := os.Stat(filepath.Join(root, filepath.FromSlash(r.Path)))
		if err != nil {
			missing++
			e.log.Warn().Str("backup_id", b.ID.String()).Str("path", r.Path).
				Msg("snapshot file missing on disk")
			continue
		}
		if r.Type == types.SnapshotEntryFile {
			s := st.Size()
			r.Size = &s
		}
		kept = append(kept, r)
	}
	return kept, missing
}

// rowsToInfos converts a snapshot file table into a scan map, skipping
// DELETE rows (they carry no artifact).
func rowsToInfos(rows []types.SnapshotFile) map[string]types.FileInfo {
	out := make(map[string]types.FileInfo, len(rows))
	for _, r := range rows {
		if r.Status == types.StatusDelete {
			continue
		}
		info := types.FileInfo{IsDir: r.Type == types.SnapshotEntryDirectory}
		if r.Size != nil {
			info.Size = *r.Size
		}
		if r.Modified != nil {
			info.Modified = *r.Modified
		}
		out[r.Path] = info
	}
	return out
}

// aggregate folds a diff list into preview counts. LINK and NO_CHANGE share
// the unchanged bucket; the Updates sub-list carries only UPDATE rows.
func aggregate(diffs []types.BackupFileDiff) *types.BackupPreview {
	p := &types.BackupPreview{}
	for _, d := range diffs {
		isDir := (d.New != nil && d.New.IsDir) || (d.New == nil && d.Old != nil && d.Old.IsDir)
		if !isDir && d.New != nil {
			p.TotalFiles++
			p.TotalFilesSize += d.New.Size
		}
		switch d.Status {
		case types.StatusCreate:
			if !isDir {
				p.CreateFiles++
				p.CreateFilesSize += d.New.Size
			}
		case types.StatusUpdate:
			p.UpdateFiles++
			p.UpdateFilesSize += d.New.Size
			p.Updates = append(p.Updates, d)
		case types.StatusDelete:
			if !isDir {
				p.DeleteFiles++
			}
		case types.StatusNoChange, types.StatusLink:
			if !isDir {
				p.UnchangedFiles++
			}
		}
	}
	return p
}
