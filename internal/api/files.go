package api

import (
	"net/http"
	"path"

	"github.com/labstack/echo/v4"

	"github.com/swicore/switcher/internal/files"
)

// resolver maps a client-supplied virtual path to a validated real path. The
// root resolver works against the global root; the server resolver against
// one server's directory.
type resolver func(c echo.Context, virtual string) (files.Path, error)

func (s *Server) rootResolver(c echo.Context, virtual string) (files.Path, error) {
	return s.core.Files().Resolve(virtual)
}

func (s *Server) serverResolver(c echo.Context, virtual string) (files.Path, error) {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return files.Path{}, err
	}
	return files.ResolveUnder(srv.Dir, virtual)
}

// boundServer is the server id tasks from this route set are bound to; empty
// on the global routes.
func boundServer(c echo.Context) string { return c.Param("id") }

// registerFileRoutes mounts the file surface once per resolver: bare under
// the root and mirrored under /server/:id with server-relative paths.
func (s *Server) registerFileRoutes(g *echo.Group, prefix string, res resolver) {
	g.GET(prefix+"/files", s.handleListDir(res))
	g.GET(prefix+"/file/info", s.handleFileInfo(res))
	g.GET(prefix+"/file", s.handleFileDownload(res))
	g.POST(prefix+"/file", s.handleFileUpload(res))
	g.DELETE(prefix+"/file", s.handleFileDelete(res))
	g.POST(prefix+"/file/mkdir", s.handleMkdir(res))
	g.PUT(prefix+"/file/copy", s.handleCopyMove(res, false))
	g.PUT(prefix+"/file/move", s.handleCopyMove(res, true))
	g.POST(prefix+"/file/archive/files", s.handleArchiveList(res))
	g.POST(prefix+"/file/archive/extract", s.handleArchiveExtract(res))
	g.POST(prefix+"/file/archive/make", s.handleArchiveMake(res))
	g.GET(prefix+"/file/archive/file", s.handleArchiveFile(res))
}

func (s *Server) handleListDir(res resolver) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := res(c, c.QueryParam("path"))
		if err != nil {
			return s.fail(c, err)
		}
		entries, err := s.core.Files().ListDir(p)
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(http.StatusOK, entries)
	}
}

func (s *Server) handleFileInfo(res resolver) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := res(c, c.QueryParam("path"))
		if err != nil {
			return s.fail(c, err)
		}
		info, err := s.core.Files().Stat(p)
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(http.StatusOK, info)
	}
}

func (s *Server) handleFileDownload(res resolver) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := res(c, c.QueryParam("path"))
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
}

func (s *Server) handleFileUpload(res resolver) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := res(c, c.QueryParam("path"))
		if err != nil {
			return s.fail(c, err)
		}
		body := c.Request().Body
		defer body.Close()
		if err := s.core.Files().WriteFile(p, body); err != nil {
			return s.fail(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"result": true, "path": p.Virtual})
	}
}

func (s *Server) handleFileDelete(res resolver) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := res(c, c.QueryParam("path"))
		if err != nil {
			return s.fail(c, err)
		}
		task, err := s.core.Files().Delete(p, boundServer(c))
		if err != nil {
			return s.fail(c, err)
		}
		return s.awaitTask(c, task)
	}
}

func (s *Server) handleMkdir(res resolver) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := res(c, c.QueryParam("path"))
		if err != nil {
			return s.fail(c, err)
		}
		if err := s.core.Files().MkDir(p); err != nil {
			return s.fail(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"result": true, "path": p.Virtual})
	}
}

func (s *Server) handleCopyMove(res resolver, move bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		src, err := res(c, c.QueryParam("src"))
		if err != nil {
			return s.fail(c, err)
		}
		dst, err := res(c, c.QueryParam("dst"))
		if err != nil {
			return s.fail(c, err)
		}
		var task *files.Task
		if move {
			task, err = s.core.Files().Move(src, dst, boundServer(c))
		} else {
			task, err = s.core.Files().Copy(src, dst, boundServer(c))
		}
		if err != nil {
			return s.fail(c, err)
		}
		return s.awaitTask(c, task)
	}
}

func (s *Server) handleArchiveList(res resolver) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := res(c, c.QueryParam("path"))
		if err != nil {
			return s.fail(c, err)
		}
		entries, err := s.core.Files().ListArchive(c.Request().Context(), p, c.QueryParam("password"))
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(http.StatusOK, entries)
	}
}

func (s *Server) handleArchiveExtract(res resolver) echo.HandlerFunc {
	return func(c echo.Context) error {
		src, err := res(c, c.QueryParam("src"))
		if err != nil {
			return s.fail(c, err)
		}
		dst, err := res(c, c.QueryParam("dst"))
		if err != nil {
			return s.fail(c, err)
		}
		task, err := s.core.Files().ExtractArchive(src, dst, c.QueryParam("password"), boundServer(c))
		if err != nil {
			return s.fail(c, err)
		}
		return s.awaitTask(c, task)
	}
}

type archiveMakeRequest struct {
	Dst   string   `json:"dst"`
	Root  string   `json:"root"`
	Files []string `json:"files"`
}

func (s *Server) handleArchiveMake(res resolver) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req archiveMakeRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		dst, err := res(c, req.Dst)
		if err != nil {
			return s.fail(c, err)
		}
		root := req.Root
		if root == "" {
			root = path.Dir(req.Dst)
		}
		rootPath, err := res(c, root)
		if err != nil {
			return s.fail(c, err)
		}
		srcs := make([]files.Path, 0, len(req.Files))
		for _, f := range req.Files {
			p, err := res(c, f)
			if err != nil {
				return s.fail(c, err)
			}
			srcs = append(srcs, p)
		}
		task, err := s.core.Files().MakeArchive(dst, rootPath, srcs, boundServer(c))
		if err != nil {
			return s.fail(c, err)
		}
		return s.awaitTask(c, task)
	}
}

func (s *Server) handleArchiveFile(res resolver) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := res(c, c.QueryParam("path"))
		if err != nil {
			return s.fail(c, err)
		}
		rc, err := s.core.Files().ArchiveFileReader(c.Request().Context(), p,
			c.QueryParam("filename"), c.QueryParam("password"))
		if err != nil {
			return s.fail(c, err)
		}
		defer rc.Close()
		return c.Stream(http.StatusOK, "application/octet-stream", rc)
	}
}

func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.core.Files().Tasks())
}
