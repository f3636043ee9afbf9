package backup

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/swicore/switcher/internal/archive"
	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/files"
	"github.com/swicore/switcher/pkg/types"
)

// Restore replaces the target server directory with the backup's content.
// FULL backups extract the archive's inferred top directory; snapshots copy
// the tree (never hard-link into the live tree) and delete paths absent from
// the snapshot.
func (e *Engine) Restore(ctx context.Context, target Target, backupID uuid.UUID) (*files.Task, error) {
	if err := e.guard(target.ServerID); err != nil {
		return nil, err
	}
	b, err := e.store.GetBackup(ctx, backupID)
	if err != nil {
		return nil, err
	}
	src := e.BackupPath(b)
	if _, err := os.Stat(src); err != nil {
		return nil, errs.ErrInvalidBackup.WithDetail("artifact missing: %s", b.Path)
	}

	task := e.files.NewTask(types.TaskRestoreBackup,
		files.Path{Real: src, Virtual: b.Path},
		files.Path{Real: target.Dir, Virtual: "/"},
		target.ServerID)
	e.bus.Publish(types.BackupRestoreStart{ServerID: target.ServerID, BackupID: backupID, TaskID: task.ID()})
	go func() {
		<-task.Done()
		result := types.ResultSuccess
		if task.Err() != nil {
			result = types.ResultFailed
		}
		e.bus.Publish(types.BackupRestoreEnd{ServerID: target.ServerID, BackupID: backupID, TaskID: task.ID(), Result: result})
	}()

	e.files.Run(task, func(ctx context.Context, progress func(float64)) error {
		if b.Type == types.BackupFull {
			return e.restoreFull(ctx, src, target.Dir, progress)
		}
		return e.restoreSnapshot(src, target.Dir, progress)
	})
	return task, nil
}

// restoreFull clears the target and extracts the archive's top directory
// into it. Entries outside the inferred top directory are dropped and
// logged. A mid-extract failure leaves the target partially restored.
func (e *Engine) restoreFull(ctx context.Context, archivePath, targetDir string, progress func(float64)) error {
	helper, err := e.files.Archives().ByFilename(archivePath)
	if err != nil {
		return err
	}
	entries, err := helper.List(ctx, archivePath, "")
	if err != nil {
		return err
	}
	topDir := inferTopDir(entries)

	staging := targetDir + ".swi_restore"
	if err := os.RemoveAll(staging); err != nil {
		return err
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := helper.Extract(ctx, archivePath, staging, "", func(p archive.Progress) {
		progress(p.Fraction * 0.9)
	}); err != nil {
		return err
	}

	contentDir := staging
	if topDir != "" {
		contentDir = filepath.Join(staging, topDir)
		if stray := countStray(entries, topDir); stray > 0 {
			e.log.Warn().Str("archive", archivePath).Int("entries", stray).
				Msg("dropping archive entries outside the top directory")
		}
	}

	if err := clearDir(targetDir); err != nil {
		return err
	}
	items, err := os.ReadDir(contentDir)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := os.Rename(filepath.Join(contentDir, item.Name()), filepath.Join(targetDir, item.Name())); err != nil {
			return err
		}
	}
	progress(1)
	return nil
}

// restoreSnapshot copies the snapshot tree over the target and removes
// target paths the snapshot does not contain.
func (e *Engine) restoreSnapshot(snapDir, targetDir string, progress func(float64)) error {
	scanned, _ := scanDir(snapDir)
	paths := sortedPaths(scanned)

	for i, rel := range paths {
		info := scanned[rel]
		dst := filepath.Join(targetDir, filepath.FromSlash(rel))
		if info.IsDir {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return err
			}
		} else if err := copyFileTimes(filepath.Join(snapDir, filepath.FromSlash(rel)), dst, info); err != nil {
			return err
		}
		if progress != nil {
			progress(float64(i+1) / float64(len(paths)+1))
		}
	}

	// Remove leftovers, deepest first so directories empty out.
	live, _ := scanDir(targetDir)
	var leftovers []string
	for rel := range live {
		if _, ok := scanned[rel]; !ok {
			leftovers = append(leftovers, rel)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(leftovers)))
	for _, rel := range leftovers {
		if err := os.RemoveAll(filepath.Join(targetDir, filepath.FromSlash(rel))); err != nil {
			return err
		}
	}
	progress(1)
	return nil
}

// inferTopDir returns the single top-level directory shared by every entry,
// or "" when the entries do not share one.
func inferTopDir(entries []archive.Entry) string {
	top := ""
	for _, en := range entries {
		name := strings.Trim(strings.ReplaceAll(en.Filename, "\\", "/"), "/")
		if name == "" {
			continue
		}
		first, _, hasMore := strings.Cut(name, "/")
		if !hasMore && !en.IsDir {
			return "" // file at the archive root
		}
		if top == "" {
			top = first
		} else if top != first {
			return ""
		}
	}
	return top
}

func countStray(entries []archive.Entry, topDir string) int {
	n := 0
	for _, en := range entries {
		name := strings.Trim(strings.ReplaceAll(en.Filename, "\\", "/"), "/")
		if name == "" || name == topDir {
			continue
		}
		if !strings.HasPrefix(name, topDir+"/") {
			n++
		}
	}
	return n
}

func clearDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := os.RemoveAll(filepath.Join(dir, item.Name())); err != nil {
			return err
		}
	}
	return nil
}
