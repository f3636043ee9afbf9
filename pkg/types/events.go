package types

import "github.com/google/uuid"

// Event is a typed message on the in-process bus. The type string doubles as
// the websocket discriminator.
type Event interface {
	EventType() string
}

// ServerChangeState is published on every state transition.
type ServerChangeState struct {
	ServerID string      `json:"server"`
	OldState ServerState `json:"oldState"`
	NewState ServerState `json:"newState"`
}

func (ServerChangeState) EventType() string { return "server_change_state" }

// ServerPreStart is published before launch and is cancellable: a subscriber
// that cancels it aborts the start with the given reason.
type ServerPreStart struct {
	ServerID  string `json:"server"`
	cancelled bool
	reason    string
}

func (*ServerPreStart) EventType() string { return "server_pre_start" }

// Cancel aborts the pending start.
func (e *ServerPreStart) Cancel(reason string) {
	e.cancelled = true
	e.reason = reason
}

// Cancelled reports whether a subscriber cancelled the start.
func (e *ServerPreStart) Cancelled() (bool, string) { return e.cancelled, e.reason }

// ServerLaunchOptionBuild exposes the assembled command line before spawn;
// subscribers may mutate Args in place.
type ServerLaunchOptionBuild struct {
	ServerID  string   `json:"server"`
	Args      []string `json:"args"`
	Generated bool     `json:"generated"`
}

func (*ServerLaunchOptionBuild) EventType() string { return "server_launch_option_build" }

// FileTaskStart fires exactly once when a task is registered.
type FileTaskStart struct {
	Task FileTask `json:"task"`
}

func (FileTaskStart) EventType() string { return "file_task_start" }

// FileTaskEnd fires exactly once with the terminal outcome.
type FileTaskEnd struct {
	Task  FileTask `json:"task"`
	Error string   `json:"error,omitempty"`
}

func (FileTaskEnd) EventType() string { return "file_task_end" }

// WatchdogAction is a filesystem change kind observed under the root.
type WatchdogAction string

const (
	WatchCreated  WatchdogAction = "watchdog_created"
	WatchDeleted  WatchdogAction = "watchdog_deleted"
	WatchModified WatchdogAction = "watchdog_modified"
	WatchMoved    WatchdogAction = "watchdog_moved"
)

// WatchdogEvent reports one filesystem change with virtual paths.
type WatchdogEvent struct {
	Action  WatchdogAction `json:"-"`
	Path    string         `json:"path"`
	DstPath string         `json:"dstPath,omitempty"`
	IsDir   bool           `json:"isDir"`
}

func (e WatchdogEvent) EventType() string { return string(e.Action) }

// BackupStart announces a backup task bound to a server.
type BackupStart struct {
	ServerID string     `json:"server"`
	BackupID uuid.UUID  `json:"backupID"`
	Type     BackupType `json:"backupType"`
	TaskID   int64      `json:"taskID"`
}

func (BackupStart) EventType() string { return "backup_start" }

// BackupEnd carries the backup outcome.
type BackupEnd struct {
	ServerID string     `json:"server"`
	BackupID uuid.UUID  `json:"backupID"`
	Type     BackupType `json:"backupType"`
	TaskID   int64      `json:"taskID"`
	Result   TaskResult `json:"result"`
}

func (BackupEnd) EventType() string { return "backup_end" }

// BackupRestoreStart announces a restore into a server directory.
type BackupRestoreStart struct {
	ServerID string    `json:"server"`
	BackupID uuid.UUID `json:"backupID"`
	TaskID   int64     `json:"taskID"`
}

func (BackupRestoreStart) EventType() string { return "backup_restore_start" }

// BackupRestoreEnd carries the restore outcome.
type BackupRestoreEnd struct {
	ServerID string     `json:"server"`
	BackupID uuid.UUID  `json:"backupID"`
	TaskID   int64      `json:"taskID"`
	Result   TaskResult `json:"result"`
}

func (BackupRestoreEnd) EventType() string { return "backup_restore_end" }
