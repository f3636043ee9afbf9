package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/swicore/switcher/internal/archive"
	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/files"
	"github.com/swicore/switcher/pkg/types"
)

func parseBackupID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("bid"))
	if err != nil {
		return uuid.Nil, errs.ErrBackupNotFound.WithDetail("%s", c.Param("bid"))
	}
	return id, nil
}

func (s *Server) listAllBackups(c echo.Context) error {
	backups, err := s.core.Store().ListBackups(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, backups)
}

func (s *Server) getBackup(c echo.Context) error {
	id, err := parseBackupID(c)
	if err != nil {
		return s.fail(c, err)
	}
	b, err := s.core.Store().GetBackup(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (s *Server) deleteBackup(c echo.Context) error {
	id, err := parseBackupID(c)
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.core.Backups().Delete(c.Request().Context(), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": true})
}

func (s *Server) backupFiles(c echo.Context) error {
	id, err := parseBackupID(c)
	if err != nil {
		return s.fail(c, err)
	}
	ctx := c.Request().Context()
	rows, err := s.core.Store().SnapshotFiles(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}
	errRows, err := s.core.Store().SnapshotErrorFiles(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"files": rows, "errors": errRows})
}

func (s *Server) backupFilesCompare(c echo.Context) error {
	id, err := parseBackupID(c)
	if err != nil {
		return s.fail(c, err)
	}
	var other *uuid.UUID
	if v := c.QueryParam("target_backup_id"); v != "" {
		t, err := uuid.Parse(v)
		if err != nil {
			return s.fail(c, errs.ErrBackupNotFound.WithDetail("%s", v))
		}
		other = &t
	}
	checkFiles, _ := strconv.ParseBool(c.QueryParam("check_files"))
	preview, err := s.core.Backups().FilesCompare(c.Request().Context(), id, other, checkFiles)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, preview)
}

func (s *Server) serverBackups(c echo.Context) error {
	backups, err := s.core.ListBackups(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if backups == nil {
		backups = []*types.Backup{}
	}
	return c.JSON(http.StatusOK, backups)
}

func (s *Server) backupPreview(c echo.Context) error {
	snapshot := true
	if v := c.QueryParam("snapshot"); v != "" {
		snapshot, _ = strconv.ParseBool(v)
	}
	preview, err := s.core.PreviewBackup(c.Request().Context(), c.Param("id"), snapshot)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, preview)
}

type createBackupRequest struct {
	Snapshot bool   `json:"snapshot" query:"snapshot"`
	Comments string `json:"comments" query:"comments"`
}

func (s *Server) createBackup(c echo.Context) error {
	var req createBackupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	task, backupID, err := s.core.CreateBackup(c.Request().Context(), c.Param("id"), req.Snapshot, req.Comments)
	if err != nil {
		return s.fail(c, err)
	}
	info := s.core.Files().Await(c.Request().Context(), task, awaitDeadline)
	resp := map[string]any{
		"result":   info.Result,
		"taskID":   info.ID,
		"backupID": backupID,
		"task":     info,
	}
	if info.Result == types.ResultFailed {
		if err := task.Err(); err != nil {
			resp["error"] = err.Error()
			return c.JSON(errs.HTTPStatus(err), resp)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) restoreBackup(c echo.Context) error {
	id, err := parseBackupID(c)
	if err != nil {
		return s.fail(c, err)
	}
	task, err := s.core.RestoreBackup(c.Request().Context(), c.Param("id"), id)
	if err != nil {
		return s.fail(c, err)
	}
	return s.awaitTask(c, task)
}

func (s *Server) verifyBackup(c echo.Context) error {
	id, err := parseBackupID(c)
	if err != nil {
		return s.fail(c, err)
	}
	preview, err := s.core.Backups().Verify(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, preview)
}

// backupFile streams one file out of a backup: directly from the tree for
// snapshots, through the archive helper for full backups.
func (s *Server) backupFile(c echo.Context) error {
	id, err := parseBackupID(c)
	if err != nil {
		return s.fail(c, err)
	}
	virtual := c.QueryParam("path")
	ctx := c.Request().Context()

	b, err := s.core.Store().GetBackup(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}
	real := s.core.Backups().BackupPath(b)

	if b.Type == types.BackupSnapshot {
		p, err := files.ResolveUnder(real, virtual)
		if err != nil {
			return s.fail(c, err)
		}
		f, err := s.core.Files().Open(p)
		if err != nil {
			return s.fail(c, err)
		}
		defer f.Close()
		return c.Stream(http.StatusOK, "application/octet-stream", f)
	}

	helper, err := s.core.Files().Archives().ByFilename(real)
	if err != nil {
		return s.fail(c, err)
	}
	// Full archives carry the server directory as their top-level entry.
	entry := virtualTrim(virtual)
	if entries, err := helper.List(ctx, real, c.QueryParam("password")); err == nil {
		if top := inferArchiveTop(entries); top != "" {
			entry = top + "/" + entry
		}
	}
	rc, err := helper.ExtractFile(ctx, real, entry, c.QueryParam("password"))
	if err != nil {
		return s.fail(c, errs.ErrNotExistsFile.WithDetail("%v", err))
	}
	defer rc.Close()
	return c.Stream(http.StatusOK, "application/octet-stream", rc)
}

// inferArchiveTop mirrors the restore path: the single directory every entry
// lives under, or "" when there is none.
func inferArchiveTop(entries []archive.Entry) string {
	top := ""
	for _, en := range entries {
		name := strings.Trim(strings.ReplaceAll(en.Filename, "\\", "/"), "/")
		if name == "" {
			continue
		}
		first, _, hasMore := strings.Cut(name, "/")
		if !hasMore && !en.IsDir {
			return ""
		}
		if top == "" {
			top = first
		} else if top != first {
			return ""
		}
	}
	return top
}

func virtualTrim(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}

func (s *Server) backupFileHistory(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	cfg := srv.Config()
	if cfg.SourceID == nil {
		return c.JSON(http.StatusOK, []types.SnapshotFile{})
	}
	history, err := s.core.Store().FileHistory(c.Request().Context(), *cfg.SourceID, virtualTrim(c.QueryParam("path")))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, history)
}
