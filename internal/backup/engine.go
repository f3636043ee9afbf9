// Package backup produces and restores versioned server backups: full
// archives and hard-link snapshot trees, grouped per source id under the
// backups root.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/swicore/switcher/internal/archive"
	"github.com/swicore/switcher/internal/db"
	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/event"
	"github.com/swicore/switcher/internal/files"
	"github.com/swicore/switcher/internal/logging"
	"github.com/swicore/switcher/pkg/types"
)

// Target identifies the server directory a backup operation works on. The
// caller owns config persistence; the engine only reads these fields.
type Target struct {
	ServerID     string
	Dir          string // absolute server directory
	SourceID     uuid.UUID
	LastBackupID *uuid.UUID
}

// Engine exclusively writes under the backups root.
type Engine struct {
	root      string
	store     *db.Store
	files     *files.Manager
	bus       *event.Bus
	log       zerolog.Logger
	suffixes  []string
	snapshots bool
}

// New creates the engine and probes hard-link support between the server
// root and the backups root. When the probe fails, snapshot mode is disabled
// and only full backups are offered.
func New(store *db.Store, fm *files.Manager, bus *event.Bus, cfg types.BackupConfig) (*Engine, error) {
	root := cfg.Directory
	if root == "" {
		root = filepath.Join(fm.Root(), "_backups")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create backups root: %w", err)
	}

	e := &Engine{
		root:      abs,
		store:     store,
		files:     fm,
		bus:       bus,
		log:       logging.WithComponent("backup"),
		suffixes:  cfg.PreferredSuffixes,
		snapshots: cfg.Snapshots,
	}
	if e.snapshots && !e.probeHardLinks(fm.Root()) {
		e.log.Warn().Str("backups", abs).Str("servers", fm.Root()).
			Msg("hard links unavailable between server root and backups root, snapshots disabled")
		e.snapshots = false
	}
	return e, nil
}

// Root returns the backups root directory.
func (e *Engine) Root() string { return e.root }

// SnapshotsEnabled reports whether hard-link snapshots are available.
func (e *Engine) SnapshotsEnabled() bool { return e.snapshots }

// probeHardLinks creates a probe file under the server root and tries to
// link it into the backups root.
func (e *Engine) probeHardLinks(serverRoot string) bool {
	probe := filepath.Join(serverRoot, ".swi_link_probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		return false
	}
	defer os.Remove(probe)
	link := filepath.Join(e.root, ".swi_link_probe")
	defer os.Remove(link)
	return os.Link(probe, link) == nil
}

// BackupPath resolves a record's relative path under the backups root.
func (e *Engine) BackupPath(b *types.Backup) string {
	return filepath.Join(e.root, filepath.FromSlash(b.Path))
}

// unsafeNameChars are stripped from user comments before they become a path
// component.
const unsafeNameChars = `\/:*?"<>|`

func sanitizeComments(comments string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeNameChars, r) {
			return '_'
		}
		return r
	}, comments)
}

func timestampName(now time.Time, comments string) string {
	name := now.Format("20060102_150405")
	if comments != "" {
		name += "_" + sanitizeComments(comments)
	}
	return name
}

// guard refuses a second backup or restore task bound to the same server.
func (e *Engine) guard(serverID string) error {
	if e.files.TaskByServer(serverID, types.TaskBackup) ||
		e.files.TaskByServer(serverID, types.TaskRestoreBackup) {
		return errs.ErrAlreadyBackup.WithDetail("%s", serverID)
	}
	return nil
}

// CreateFull archives the entire server directory as one file and records it.
func (e *Engine) CreateFull(ctx context.Context, target Target, comments string) (*files.Task, uuid.UUID, error) {
	if err := e.guard(target.ServerID); err != nil {
		return nil, uuid.Nil, err
	}
	helper, suffix, err := e.files.Archives().ForCreate(e.suffixes)
	if err != nil {
		return nil, uuid.Nil, err
	}

	backupID := uuid.New()
	now := time.Now()
	relPath := target.SourceID.String() + "/" + timestampName(now, comments) + "." + suffix
	absPath := filepath.Join(e.root, filepath.FromSlash(relPath))

	task := e.files.NewTask(types.TaskBackup,
		files.Path{Real: target.Dir, Virtual: "/"},
		files.Path{Real: absPath, Virtual: relPath},
		target.ServerID)
	e.bus.Publish(types.BackupStart{ServerID: target.ServerID, BackupID: backupID, Type: types.BackupFull, TaskID: task.ID()})
	e.notifyEnd(task, target.ServerID, backupID, types.BackupFull)

	e.files.Run(task, func(ctx context.Context, progress func(float64)) error {
		scanned, scanErrs := scanDir(target.Dir)
		var totalFiles, totalSize int64
		for _, info := range scanned {
			if !info.IsDir {
				totalFiles++
				totalSize += info.Size
			}
		}

		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return err
		}
		// Archive the server directory itself so restore can infer the
		// top-level entry.
		err := helper.Make(ctx, absPath, filepath.Dir(target.Dir), []string{target.Dir}, func(p archive.Progress) {
			progress(p.Fraction)
		})
		if err != nil {
			os.Remove(absPath)
			return err
		}

		var finalSize *int64
		if st, err := os.Stat(absPath); err == nil {
			s := st.Size()
			finalSize = &s
		}
		record := &types.Backup{
			ID:             backupID,
			Type:           types.BackupFull,
			Source:         target.SourceID,
			Created:        now,
			Path:           relPath,
			Comments:       comments,
			TotalFiles:     totalFiles,
			TotalFilesSize: totalSize,
			ErrorFiles:     int64(len(scanErrs)),
			FinalSize:      finalSize,
		}
		if err := e.store.InsertBackup(ctx, record); err != nil {
			os.Remove(absPath)
			return err
		}
		e.log.Info().Str("server", target.ServerID).Str("backup_id", backupID.String()).
			Str("size", humanize.IBytes(uint64(totalSize))).Int64("files", totalFiles).
			Msg("full backup complete")
		return nil
	})
	return task, backupID, nil
}

// notifyEnd publishes BackupEnd once the task reaches a terminal result.
func (e *Engine) notifyEnd(task *files.Task, serverID string, backupID uuid.UUID, btype types.BackupType) {
	go func() {
		<-task.Done()
		result := types.ResultSuccess
		if task.Err() != nil {
			result = types.ResultFailed
		}
		e.bus.Publish(types.BackupEnd{ServerID: serverID, BackupID: backupID, Type: btype, TaskID: task.ID(), Result: result})
	}()
}

// Delete removes a backup: DB transaction first, then the filesystem
// artifact. A failed removal is logged, never rolled back.
func (e *Engine) Delete(ctx context.Context, backupID uuid.UUID) error {
	b, err := e.store.GetBackup(ctx, backupID)
	if err != nil {
		return err
	}
	if err := e.store.DeleteBackup(ctx, backupID); err != nil {
		return err
	}
	if err := os.RemoveAll(e.BackupPath(b)); err != nil {
		e.log.Error().Str("backup_id", backupID.String()).Str("path", b.Path).Err(err).
			Msg("backup artifact removal failed after db delete")
	}
	return nil
}

// scanDir walks dir and returns relative-path file infos plus per-path scan
// errors. Paths use forward slashes; the root itself is excluded.
func scanDir(dir string) (map[string]types.FileInfo, []types.SnapshotErrorFile) {
	out := map[string]types.FileInfo{}
	var errFiles []types.SnapshotErrorFile
	filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if err != nil {
			errFiles = append(errFiles, types.SnapshotErrorFile{
				Path: rel, ErrorType: types.SnapshotErrScan, ErrorMessage: err.Error(),
			})
			return nil
		}
		out[rel] = types.FileInfo{Size: info.Size(), Modified: info.ModTime(), IsDir: info.IsDir()}
		return nil
	})
	return out, errFiles
}

func sortedPaths(m map[string]types.FileInfo) []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
