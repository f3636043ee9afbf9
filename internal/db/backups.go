package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/pkg/types"
)

const backupColumns = `id, type, source, created, previous_backup, path, COALESCE(comments, ''), total_files, total_files_size, error_files, final_size`

func scanBackup(row interface{ Scan(...any) error }) (*types.Backup, error) {
	b := &types.Backup{}
	var id, source string
	var prev sql.NullString
	err := row.Scan(&id, &b.Type, &source, &b.Created, &prev, &b.Path,
		&b.Comments, &b.TotalFiles, &b.TotalFilesSize, &b.ErrorFiles, &b.FinalSize)
	if err != nil {
		return nil, err
	}
	if b.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("backup id: %w", err)
	}
	if b.Source, err = uuid.Parse(source); err != nil {
		return nil, fmt.Errorf("backup source: %w", err)
	}
	if prev.Valid {
		p, err := uuid.Parse(prev.String)
		if err != nil {
			return nil, fmt.Errorf("previous backup id: %w", err)
		}
		b.PreviousBackup = &p
	}
	return b, nil
}

// InsertBackup persists a FULL backup record.
func (s *Store) InsertBackup(ctx context.Context, b *types.Backup) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.insertBackupRow(ctx, s.db, b)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertBackupRow(ctx context.Context, ex execer, b *types.Backup) error {
	var prev any
	if b.PreviousBackup != nil {
		prev = b.PreviousBackup.String()
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO backups (id, type, source, created, previous_backup, path,
			comments, total_files, total_files_size, error_files, final_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.Type, b.Source.String(), b.Created.UTC(), prev, b.Path,
		b.Comments, b.TotalFiles, b.TotalFilesSize, b.ErrorFiles, b.FinalSize)
	if err != nil {
		return fmt.Errorf("insert backup: %w", err)
	}
	return nil
}

// InsertSnapshot persists the backup row plus all snapshot file and error
// rows in one transaction under the commit lock.
func (s *Store) InsertSnapshot(ctx context.Context, b *types.Backup, files []types.SnapshotFile, errFiles []types.SnapshotErrorFile) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertBackupRow(ctx, tx, b); err != nil {
		return err
	}

	fileStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_files (backup_id, path, type, size, status, modified, hash_md5)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer fileStmt.Close()
	for _, f := range files {
		var mod any
		if f.Modified != nil {
			mod = f.Modified.UTC()
		}
		if _, err := fileStmt.ExecContext(ctx, b.ID.String(), f.Path, f.Type, f.Size, f.Status, mod, f.HashMD5); err != nil {
			return fmt.Errorf("insert snapshot file %s: %w", f.Path, err)
		}
	}

	errStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_error_files (backup_id, path, type, error_type, error_message)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer errStmt.Close()
	for _, f := range errFiles {
		if _, err := errStmt.ExecContext(ctx, b.ID.String(), f.Path, f.Type, f.ErrorType, f.ErrorMessage); err != nil {
			return fmt.Errorf("insert snapshot error %s: %w", f.Path, err)
		}
	}

	return tx.Commit()
}

// GetBackup looks a backup record up by id.
func (s *Store) GetBackup(ctx context.Context, id uuid.UUID) (*types.Backup, error) {
	b, err := scanBackup(s.db.QueryRowContext(ctx,
		`SELECT `+backupColumns+` FROM backups WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrBackupNotFound
	}
	return b, err
}

// ListBackups returns all backup records, newest first.
func (s *Store) ListBackups(ctx context.Context) ([]*types.Backup, error) {
	return s.queryBackups(ctx, `SELECT `+backupColumns+` FROM backups ORDER BY created DESC`)
}

// ListBackupsBySource returns the backups of one source, newest first.
func (s *Store) ListBackupsBySource(ctx context.Context, source uuid.UUID) ([]*types.Backup, error) {
	return s.queryBackups(ctx,
		`SELECT `+backupColumns+` FROM backups WHERE source = ? ORDER BY created DESC`, source.String())
}

// LatestSnapshot returns the most recent SNAPSHOT backup of a source, or nil.
func (s *Store) LatestSnapshot(ctx context.Context, source uuid.UUID) (*types.Backup, error) {
	b, err := scanBackup(s.db.QueryRowContext(ctx,
		`SELECT `+backupColumns+` FROM backups WHERE source = ? AND type = ? ORDER BY created DESC LIMIT 1`,
		source.String(), types.BackupSnapshot))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *Store) queryBackups(ctx context.Context, query string, args ...any) ([]*types.Backup, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBackup removes the backup row and all snapshot rows in one
// transaction. Filesystem cleanup is the caller's concern and happens after
// the commit.
func (s *Store) DeleteBackup(ctx context.Context, id uuid.UUID) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrBackupNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_files WHERE backup_id = ?`, id.String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_error_files WHERE backup_id = ?`, id.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// SnapshotFiles returns the persisted file table of one snapshot.
func (s *Store) SnapshotFiles(ctx context.Context, backupID uuid.UUID) ([]types.SnapshotFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, type, size, status, modified, hash_md5
		FROM snapshot_files WHERE backup_id = ? ORDER BY path`, backupID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SnapshotFile
	for rows.Next() {
		f := types.SnapshotFile{BackupID: backupID}
		var mod sql.NullTime
		if err := rows.Scan(&f.Path, &f.Type, &f.Size, &f.Status, &mod, &f.HashMD5); err != nil {
			return nil, err
		}
		if mod.Valid {
			t := mod.Time
			f.Modified = &t
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SnapshotErrorFiles returns the persisted error table of one snapshot.
func (s *Store) SnapshotErrorFiles(ctx context.Context, backupID uuid.UUID) ([]types.SnapshotErrorFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, type, error_type, COALESCE(error_message, '')
		FROM snapshot_error_files WHERE backup_id = ? ORDER BY path`, backupID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SnapshotErrorFile
	for rows.Next() {
		f := types.SnapshotErrorFile{BackupID: backupID}
		if err := rows.Scan(&f.Path, &f.Type, &f.ErrorType, &f.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FileHistory returns every snapshot row recorded for one path across all
// backups of a source, newest first.
func (s *Store) FileHistory(ctx context.Context, source uuid.UUID, path string) ([]types.SnapshotFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sf.backup_id, sf.path, sf.type, sf.size, sf.status, sf.modified, sf.hash_md5
		FROM snapshot_files sf
		JOIN backups b ON b.id = sf.backup_id
		WHERE b.source = ? AND sf.path = ?
		ORDER BY b.created DESC`, source.String(), path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SnapshotFile
	for rows.Next() {
		var f types.SnapshotFile
		var id string
		var mod sql.NullTime
		if err := rows.Scan(&id, &f.Path, &f.Type, &f.Size, &f.Status, &mod, &f.HashMD5); err != nil {
			return nil, err
		}
		if f.BackupID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if mod.Valid {
			t := mod.Time
			f.Modified = &t
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
