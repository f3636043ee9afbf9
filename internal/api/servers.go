package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/swicore/switcher/internal/config"
	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/server"
	"github.com/swicore/switcher/pkg/types"
)

// serverView is the list/detail wire form of a registered server.
type serverView struct {
	ID    string             `json:"id"`
	Name  string             `json:"name"`
	Type  types.ServerType   `json:"type"`
	State types.ServerState  `json:"state"`
	Dir   string             `json:"dir"`
	Build bool               `json:"buildPending"`
	Cfg   types.ServerConfig `json:"config"`
}

func viewOf(srv *server.Server) serverView {
	cfg := srv.Config()
	return serverView{
		ID:    srv.ID,
		Name:  cfg.Name,
		Type:  cfg.Type,
		State: srv.State(),
		Dir:   srv.Dir,
		Build: cfg.Installer != nil && cfg.Installer.RequireBuild,
		Cfg:   cfg,
	}
}

func (s *Server) listServers(c echo.Context) error {
	servers := s.core.Servers()
	out := make([]serverView, 0, len(servers))
	for _, srv := range servers {
		out = append(out, viewOf(srv))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getServer(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(srv))
}

type createServerRequest struct {
	Dir    string              `json:"dir"`
	Config *types.ServerConfig `json:"config"`
}

func (s *Server) createServer(c echo.Context) error {
	var req createServerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	srv, err := s.core.CreateServer(c.Request().Context(), c.Param("id"), req.Dir, req.Config)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(srv))
}

func (s *Server) deleteServer(c echo.Context) error {
	removeFiles, _ := strconv.ParseBool(c.QueryParam("files"))
	if err := s.core.DeleteServer(c.Request().Context(), c.Param("id"), removeFiles); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": true})
}

func (s *Server) importServer(c echo.Context) error {
	var req createServerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	srv, err := s.core.ImportServer(c.Request().Context(), c.Param("id"), req.Dir)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(srv))
}

func (s *Server) startServer(c echo.Context) error {
	id := c.Param("id")
	if err := s.core.Start(c.Request().Context(), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": true, "server_id": id})
}

func (s *Server) stopServer(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if err := srv.Stop(c.Request().Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": true, "server_id": srv.ID})
}

func (s *Server) restartServer(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if err := srv.Restart(c.Request().Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": true, "server_id": srv.ID})
}

func (s *Server) killServer(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if err := srv.Kill(c.Request().Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": true, "server_id": srv.ID})
}

type sendLineRequest struct {
	Line string `json:"line" form:"line"`
}

func (s *Server) sendLine(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	var req sendLineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := srv.SendCommand(req.Line); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": true, "server_id": srv.ID})
}

func (s *Server) getTermSize(c echo.Context) error {
	if _, err := s.core.Server(c.Param("id")); err != nil {
		return s.fail(c, err)
	}
	s.mu.Lock()
	size, ok := s.termSizes[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		size = termSize{Cols: 200, Rows: 50}
	}
	return c.JSON(http.StatusOK, size)
}

func (s *Server) setTermSize(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	var size termSize
	if err := c.Bind(&size); err != nil || size.Cols == 0 || size.Rows == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "cols and rows required")
	}
	if err := srv.SetTermSize(size.Cols, size.Rows); err != nil {
		return s.fail(c, err)
	}
	s.mu.Lock()
	s.termSizes[srv.ID] = size
	s.mu.Unlock()
	return c.JSON(http.StatusOK, size)
}

func (s *Server) latestLogs(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	maxLines := 100
	if v := c.QueryParam("max_lines"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxLines = n
		}
	}
	includePartial, _ := strconv.ParseBool(c.QueryParam("include_partial"))
	return c.JSON(http.StatusOK, map[string]any{
		"server": srv.ID,
		"lines":  srv.Logs(maxLines, includePartial),
	})
}

func (s *Server) getServerConfig(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, srv.Config())
}

func (s *Server) putServerConfig(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	next := srv.Config()
	if err := c.Bind(&next); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	next.Type = types.ParseServerType(string(next.Type))
	srv.UpdateConfig(func(sc *types.ServerConfig) { *sc = next })
	if err := s.core.SaveServerConfig(srv); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, srv.Config())
}

func (s *Server) reloadServerConfig(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	sc, err := config.LoadServerConfig(srv.Dir)
	if err != nil {
		return s.fail(c, errs.ErrNotExistsConfig.WithDetail("%v", err))
	}
	srv.UpdateConfig(func(cur *types.ServerConfig) { *cur = *sc })
	return c.JSON(http.StatusOK, srv.Config())
}

func (s *Server) getEula(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	accepted, exists, err := server.EulaValue(srv.Dir)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"accepted": accepted, "exists": exists})
}

func (s *Server) acceptEula(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if err := server.AcceptEula(srv.Dir); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"accepted": true, "exists": true})
}

type installRequest struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Build   string `json:"build"`
}

func (s *Server) installServer(c echo.Context) error {
	var req installRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	task, err := s.core.InstallJar(c.Request().Context(), c.Param("id"),
		types.ServerType(req.Type), req.Version, req.Build)
	if err != nil {
		return s.fail(c, err)
	}
	if task == nil {
		// Installer artifact requires a build step; the next start runs it.
		return c.JSON(http.StatusOK, map[string]any{"result": true, "buildPending": true})
	}
	return s.awaitTask(c, task)
}

// cancelPendingBuild clears the require_build flag so the next start launches
// the server directly (no_build bypass).
func (s *Server) cancelPendingBuild(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	srv.UpdateConfig(func(sc *types.ServerConfig) {
		if sc.Installer != nil {
			sc.Installer.RequireBuild = false
		}
	})
	if err := s.core.SaveServerConfig(srv); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": true})
}

func (s *Server) serverPerf(c echo.Context) error {
	srv, err := s.core.Server(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	stats, err := srv.Perf()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
