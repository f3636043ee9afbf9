package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/pkg/types"
)

// appConfigView is the mutable slice of the global config exposed over the
// API. Server registrations and filesystem roots stay daemon-side.
type appConfigView struct {
	MaxLogLines int               `json:"maxLogLines"`
	LogLevel    string            `json:"logLevel"`
	Backup      types.BackupConfig `json:"backup"`
	Java        types.JavaConfig   `json:"java"`
	API         types.APIConfig    `json:"api"`
}

func (s *Server) getAppConfig(c echo.Context) error {
	cfg := s.core.Config()
	return c.JSON(http.StatusOK, appConfigView{
		MaxLogLines: cfg.MaxLogLines,
		LogLevel:    cfg.LogLevel,
		Backup:      cfg.Backup,
		Java:        cfg.Java,
		API:         cfg.API,
	})
}

func (s *Server) putAppConfig(c echo.Context) error {
	cfg := s.core.Config()
	view := appConfigView{
		MaxLogLines: cfg.MaxLogLines,
		LogLevel:    cfg.LogLevel,
		Backup:      cfg.Backup,
		Java:        cfg.Java,
		API:         cfg.API,
	}
	if err := c.Bind(&view); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cfg.MaxLogLines = view.MaxLogLines
	cfg.LogLevel = view.LogLevel
	cfg.Backup = view.Backup
	cfg.Java = view.Java
	cfg.API = view.API
	if err := cfg.Save(); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) getServerGlobalConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.core.Config().ServerDefaults)
}

func (s *Server) putServerGlobalConfig(c echo.Context) error {
	cfg := s.core.Config()
	next := cfg.ServerDefaults
	if err := c.Bind(&next); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cfg.ServerDefaults = next
	if err := cfg.Save(); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, cfg.ServerDefaults)
}

func (s *Server) listJavaPresets(c echo.Context) error {
	return c.JSON(http.StatusOK, s.core.Javas().Presets())
}

type javaPresetRequest struct {
	Name       string `json:"name" form:"name"`
	Executable string `json:"executable" form:"executable"`
}

func (s *Server) addJavaPreset(c echo.Context) error {
	var req javaPresetRequest
	if err := c.Bind(&req); err != nil || req.Name == "" || req.Executable == "" {
		return s.fail(c, errs.ErrUnknownJava.WithDetail("name and executable required"))
	}
	if err := s.core.Javas().Register(c.Request().Context(), req.Name, req.Executable); err != nil {
		return s.fail(c, err)
	}
	preset, err := s.core.Javas().Preset(req.Name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, preset)
}

func (s *Server) removeJavaPreset(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return s.fail(c, errs.ErrUnknownJava.WithDetail("name required"))
	}
	if err := s.core.Javas().Remove(name); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": true})
}

// rescanJava re-runs auto-detection over the configured search paths. Manual
// presets survive a rescan.
func (s *Server) rescanJava(c echo.Context) error {
	s.core.Javas().Load(c.Request().Context(), s.core.Config().Java)
	return c.JSON(http.StatusOK, s.core.Javas().Presets())
}
