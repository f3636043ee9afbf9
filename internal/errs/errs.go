// Package errs defines the typed error kinds shared by the core components
// and their 1:1 mapping to API codes and HTTP statuses.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a component-level error kind. Kinds compare by Code, so wrapping
// with detail keeps errors.Is working against the package sentinels.
type Error struct {
	Code    string
	Status  int
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithDetail returns a copy of the kind carrying extra detail.
func (e *Error) WithDetail(format string, args ...any) *Error {
	c := *e
	c.Detail = fmt.Sprintf(format, args...)
	return &c
}

// Precondition errors.
var (
	ErrAlreadyRunning   = &Error{Code: "SERVER_ALREADY_RUNNING", Status: http.StatusBadRequest, Message: "server is already running"}
	ErrNotRunning       = &Error{Code: "SERVER_NOT_RUNNING", Status: http.StatusBadRequest, Message: "server is not running"}
	ErrServerProcessing = &Error{Code: "SERVER_PROCESSING", Status: http.StatusBadRequest, Message: "server is processing another operation"}
	ErrOutOfMemory      = &Error{Code: "OUT_OF_MEMORY", Status: http.StatusBadRequest, Message: "not enough free memory to launch"}
	ErrCancelled        = &Error{Code: "OPERATION_CANCELLED", Status: http.StatusBadRequest, Message: "operation cancelled"}
	ErrUnknownJava      = &Error{Code: "UNKNOWN_JAVA_PRESET", Status: http.StatusBadRequest, Message: "unknown java preset"}
	ErrAlreadyBackup    = &Error{Code: "BACKUP_ALREADY_RUNNING", Status: http.StatusBadRequest, Message: "a backup task is already bound to this server"}
	ErrNoArchiveHelper  = &Error{Code: "NO_SUPPORTED_ARCHIVE_FORMAT", Status: http.StatusBadRequest, Message: "no archive helper supports this format"}
	ErrNoDownloadFile   = &Error{Code: "NO_DOWNLOAD_FILE", Status: http.StatusBadRequest, Message: "build has no downloadable file"}
)

// Path and resource errors.
var (
	ErrNotAllowedPath  = &Error{Code: "NOT_ALLOWED_PATH", Status: http.StatusBadRequest, Message: "path escapes the allowed root"}
	ErrNotExistsFile   = &Error{Code: "NOT_EXISTS_FILE", Status: http.StatusNotFound, Message: "file does not exist"}
	ErrNotExistsDir    = &Error{Code: "NOT_EXISTS_DIRECTORY", Status: http.StatusNotFound, Message: "directory does not exist"}
	ErrAlreadyExists   = &Error{Code: "ALREADY_EXISTS_PATH", Status: http.StatusBadRequest, Message: "path already exists"}
	ErrNotExistsConfig = &Error{Code: "NOT_EXISTS_CONFIG_FILE", Status: http.StatusNotFound, Message: "server config file does not exist"}
	ErrServerExists    = &Error{Code: "ALREADY_EXISTS_SERVER", Status: http.StatusBadRequest, Message: "server id is already registered"}
	ErrServerNotFound  = &Error{Code: "SERVER_NOT_FOUND", Status: http.StatusNotFound, Message: "server not found"}
)

// Build and launch errors.
var (
	ErrLaunch          = &Error{Code: "SERVER_LAUNCH_ERROR", Status: http.StatusInternalServerError, Message: "server launch failed"}
	ErrEulaNotAccepted = &Error{Code: "EULA_NOT_ACCEPTED", Status: http.StatusBadRequest, Message: "eula.txt is not accepted"}
)

// Backup errors.
var (
	ErrBackupNotFound = &Error{Code: "BACKUP_NOT_FOUND", Status: http.StatusNotFound, Message: "backup not found"}
	ErrInvalidBackup  = &Error{Code: "INVALID_BACKUP", Status: http.StatusInternalServerError, Message: "backup is invalid"}
)

// Auth and user errors.
var (
	ErrInvalidCredentials = &Error{Code: "INVALID_AUTHENTICATION_CREDENTIALS", Status: http.StatusUnauthorized, Message: "invalid authentication credentials"}
	ErrUserNotFound       = &Error{Code: "NOT_EXISTS_USER", Status: http.StatusNotFound, Message: "user does not exist"}
)

// HTTPStatus maps any error to an HTTP status: typed kinds keep their status,
// everything else is a 500.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Code maps any error to a stable API code.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL_ERROR"
}
