package types

import (
	"time"

	"github.com/google/uuid"
)

// BackupType distinguishes archive backups from hard-link snapshot trees.
type BackupType string

const (
	BackupFull     BackupType = "FULL"
	BackupSnapshot BackupType = "SNAPSHOT"
)

// Backup is a persisted backup record. Path is relative to the backups root:
// an archive file for FULL, a directory tree for SNAPSHOT.
type Backup struct {
	ID             uuid.UUID  `json:"id"`
	Type           BackupType `json:"type"`
	Source         uuid.UUID  `json:"source"`
	Created        time.Time  `json:"created"`
	PreviousBackup *uuid.UUID `json:"previousBackup,omitempty"`
	Path           string     `json:"path"`
	Comments       string     `json:"comments,omitempty"`
	TotalFiles     int64      `json:"totalFiles"`
	TotalFilesSize int64      `json:"totalFilesSize"`
	ErrorFiles     int64      `json:"errorFiles"`
	FinalSize      *int64     `json:"finalSize,omitempty"`
}

// SnapshotFileType is FILE or DIRECTORY.
type SnapshotFileType string

const (
	SnapshotEntryFile      SnapshotFileType = "FILE"
	SnapshotEntryDirectory SnapshotFileType = "DIRECTORY"
)

// FileStatus describes a path's fate relative to the base snapshot.
type FileStatus string

const (
	StatusDelete   FileStatus = "DELETE"
	StatusNoChange FileStatus = "NO_CHANGE"
	StatusUpdate   FileStatus = "UPDATE"
	StatusCreate   FileStatus = "CREATE"
	StatusLink     FileStatus = "LINK"
)

// SnapshotFile is one persisted row of a snapshot's file table, keyed by
// (backup id, path).
type SnapshotFile struct {
	BackupID uuid.UUID        `json:"backupID"`
	Path     string           `json:"path"`
	Type     SnapshotFileType `json:"type"`
	Size     *int64           `json:"size,omitempty"`
	Status   FileStatus       `json:"status"`
	Modified *time.Time       `json:"modified,omitempty"`
	HashMD5  *string          `json:"hashMd5,omitempty"`
}

// SnapshotErrorType classifies per-file failures captured during a snapshot.
type SnapshotErrorType string

const (
	SnapshotErrScan       SnapshotErrorType = "SCAN"
	SnapshotErrMkdir      SnapshotErrorType = "CREATE_DIRECTORY"
	SnapshotErrLink       SnapshotErrorType = "CREATE_LINK"
	SnapshotErrCopy       SnapshotErrorType = "COPY_FILE"
	SnapshotErrExistCheck SnapshotErrorType = "EXISTS_CHECK"
)

// SnapshotErrorFile records one path that could not be captured or verified.
type SnapshotErrorFile struct {
	BackupID     uuid.UUID         `json:"backupID"`
	Path         string            `json:"path"`
	Type         *SnapshotFileType `json:"type,omitempty"`
	ErrorType    SnapshotErrorType `json:"errorType"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
}

// BackupFileDiff is one row of a snapshot comparison.
type BackupFileDiff struct {
	Path   string     `json:"path"`
	Old    *FileInfo  `json:"old,omitempty"`
	New    *FileInfo  `json:"new,omitempty"`
	Status FileStatus `json:"status"`
}

// FileInfo is the scan-time identity of a path: equality is both-dir, or
// same size and same mtime.
type FileInfo struct {
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	IsDir    bool      `json:"isDir"`
}

// Equal reports scan equality: directories compare equal to directories;
// files compare by size and mtime.
func (f FileInfo) Equal(o FileInfo) bool {
	if f.IsDir || o.IsDir {
		return f.IsDir && o.IsDir
	}
	return f.Size == o.Size && f.Modified.Equal(o.Modified)
}

// BackupPreview aggregates a live-directory scan against the latest snapshot.
type BackupPreview struct {
	TotalFiles      int64            `json:"totalFiles"`
	TotalFilesSize  int64            `json:"totalFilesSize"`
	CreateFiles     int64            `json:"createFiles"`
	CreateFilesSize int64            `json:"createFilesSize"`
	UpdateFiles     int64            `json:"updateFiles"`
	UpdateFilesSize int64            `json:"updateFilesSize"`
	DeleteFiles     int64            `json:"deleteFiles"`
	UnchangedFiles  int64            `json:"unchangedFiles"`
	ErrorFiles      int64            `json:"errorFiles"`
	Updates         []BackupFileDiff `json:"updates,omitempty"`
}
