package types

import "github.com/google/uuid"

// FileTaskType classifies the work a file task performs.
type FileTaskType string

const (
	TaskCopy           FileTaskType = "COPY"
	TaskMove           FileTaskType = "MOVE"
	TaskDelete         FileTaskType = "DELETE"
	TaskUpdate         FileTaskType = "UPDATE"
	TaskCreate         FileTaskType = "CREATE"
	TaskExtractArchive FileTaskType = "EXTRACT_ARCHIVE"
	TaskCreateArchive  FileTaskType = "CREATE_ARCHIVE"
	TaskDownload       FileTaskType = "DOWNLOAD"
	TaskBackup         FileTaskType = "BACKUP"
	TaskRestoreBackup  FileTaskType = "RESTORE_BACKUP"
)

// TaskResult is the terminal outcome of a task. PENDING is also what HTTP
// callers see when a task outlives the handler's await deadline.
type TaskResult string

const (
	ResultPending TaskResult = "PENDING"
	ResultSuccess TaskResult = "SUCCESS"
	ResultFailed  TaskResult = "FAILED"
)

// FileTask is the wire representation of a tracked file operation.
// IDs are monotonic integers assigned by the file manager.
type FileTask struct {
	ID          int64        `json:"id"`
	Type        FileTaskType `json:"type"`
	Src         string       `json:"src"`
	Dst         string       `json:"dst,omitempty"`
	Result      TaskResult   `json:"result"`
	Progress    *float64     `json:"progress"`
	BoundServer string       `json:"server,omitempty"`
	SrcPath     string       `json:"srcPath,omitempty"` // virtual
	DstPath     string       `json:"dstPath,omitempty"` // virtual
}

// BackupTask extends FileTask with backup identity.
type BackupTask struct {
	FileTask
	BackupID   uuid.UUID  `json:"backupID"`
	BackupType BackupType `json:"backupType"`
	Comments   string     `json:"comments,omitempty"`
}
