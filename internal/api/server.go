// Package api is the control plane: the authenticated REST surface over the
// core plus the websocket event fan-out.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/swicore/switcher/internal/core"
	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/files"
	"github.com/swicore/switcher/internal/logging"
	"github.com/swicore/switcher/pkg/types"
)

// awaitDeadline is how long a handler waits for a file task before returning
// PENDING with the task id.
const awaitDeadline = time.Second

// Server is the HTTP/WebSocket control plane.
type Server struct {
	core *core.Switcher
	echo *echo.Echo
	log  zerolog.Logger
	hub  *wsHub

	mu        sync.Mutex
	termSizes map[string]termSize
}

type termSize struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// New wires the route table. The metrics handler is mounted unauthenticated
// next to /health; everything else sits behind the session middleware.
func New(sw *core.Switcher, metricsHandler http.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		core:      sw,
		echo:      e,
		log:       logging.WithComponent("api"),
		hub:       newHub(sw.Bus()),
		termSizes: map[string]termSize{},
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(metricsHandler))
	}
	e.POST("/login", s.login)

	api := e.Group("")
	api.Use(s.sessionMiddleware)

	api.GET("/login", s.loginProbe)
	api.GET("/users", s.listUsers)
	api.POST("/user/add", s.addUser)
	api.DELETE("/user/remove", s.removeUser)

	api.GET("/ws", s.websocket)

	api.GET("/config/app", s.getAppConfig)
	api.PUT("/config/app", s.putAppConfig)
	api.GET("/config/server_global", s.getServerGlobalConfig)
	api.PUT("/config/server_global", s.putServerGlobalConfig)

	api.GET("/java/preset/list", s.listJavaPresets)
	api.POST("/java/preset", s.addJavaPreset)
	api.DELETE("/java/preset", s.removeJavaPreset)
	api.POST("/java/detect/rescan", s.rescanJava)

	api.GET("/servers", s.listServers)
	api.GET("/server/:id", s.getServer)
	api.POST("/server/:id", s.createServer)
	api.DELETE("/server/:id", s.deleteServer)
	api.POST("/server/:id/import", s.importServer)
	api.POST("/server/:id/start", s.startServer)
	api.POST("/server/:id/stop", s.stopServer)
	api.POST("/server/:id/restart", s.restartServer)
	api.POST("/server/:id/kill", s.killServer)
	api.POST("/server/:id/send_line", s.sendLine)
	api.GET("/server/:id/term/size", s.getTermSize)
	api.POST("/server/:id/term/size", s.setTermSize)
	api.GET("/server/:id/logs/latest", s.latestLogs)
	api.GET("/server/:id/config", s.getServerConfig)
	api.PUT("/server/:id/config", s.putServerConfig)
	api.POST("/server/:id/config/reload", s.reloadServerConfig)
	api.GET("/server/:id/eula", s.getEula)
	api.POST("/server/:id/eula", s.acceptEula)
	api.POST("/server/:id/install", s.installServer)
	api.DELETE("/server/:id/build", s.cancelPendingBuild)
	api.GET("/server/:id/perf", s.serverPerf)

	s.registerFileRoutes(api, "", s.rootResolver)
	s.registerFileRoutes(api, "/server/:id", s.serverResolver)
	api.GET("/file/tasks", s.listTasks)

	api.GET("/backups", s.listAllBackups)
	api.GET("/backup/:bid", s.getBackup)
	api.DELETE("/backup/:bid", s.deleteBackup)
	api.GET("/backup/:bid/files", s.backupFiles)
	api.GET("/backup/:bid/files/compare", s.backupFilesCompare)
	api.GET("/server/:id/backups", s.serverBackups)
	api.GET("/server/:id/backup", s.backupPreview)
	api.POST("/server/:id/backup", s.createBackup)
	api.POST("/server/:id/backup/:bid/restore", s.restoreBackup)
	api.GET("/server/:id/backup/:bid/verify", s.verifyBackup)
	api.GET("/server/:id/backup/:bid/file", s.backupFile)
	api.GET("/server/:id/backup/file/history", s.backupFileHistory)

	api.GET("/jardl/types", s.jardlTypes)
	api.GET("/jardl/:type/versions", s.jardlVersions)
	api.GET("/jardl/:type/version/:v/builds", s.jardlBuilds)
	api.GET("/jardl/:type/version/:v/build/:b", s.jardlBuild)
	api.POST("/jardl/cache/clear", s.jardlClearCache)

	return s
}

// Start blocks serving the configured bind, with TLS when both files are set.
func (s *Server) Start() error {
	cfg := s.core.Config().API
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.log.Info().Str("addr", addr).Bool("tls", cfg.TLSCert != "").Msg("control plane listening")
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		return s.echo.StartTLS(addr, cfg.TLSCert, cfg.TLSKey)
	}
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.echo }

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// fail maps a component error to its stable API code and HTTP status.
func (s *Server) fail(c echo.Context, err error) error {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Str("path", c.Path()).Err(err).Msg("request failed")
	}
	return c.JSON(status, errorResponse{Code: errs.Code(err), Error: err.Error()})
}

type taskResponse struct {
	Result types.TaskResult `json:"result"`
	TaskID int64            `json:"taskID"`
	Task   types.FileTask   `json:"task"`
	Error  string           `json:"error,omitempty"`
}

// awaitTask waits briefly for the task; past the deadline the client gets
// PENDING and observes the outcome via /file/tasks or the websocket.
func (s *Server) awaitTask(c echo.Context, task *files.Task) error {
	info := s.core.Files().Await(c.Request().Context(), task, awaitDeadline)
	resp := taskResponse{Result: info.Result, TaskID: info.ID, Task: info}
	if info.Result == types.ResultFailed {
		if err := task.Err(); err != nil {
			resp.Error = err.Error()
			return c.JSON(errs.HTTPStatus(err), resp)
		}
	}
	return c.JSON(http.StatusOK, resp)
}
