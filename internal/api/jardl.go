package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/swicore/switcher/pkg/types"
)

func (s *Server) jardlTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, s.core.Catalog().Types())
}

func (s *Server) jardlVersions(c echo.Context) error {
	versions, err := s.core.Catalog().Versions(c.Request().Context(), types.ServerType(c.Param("type")))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, versions)
}

func (s *Server) jardlBuilds(c echo.Context) error {
	builds, err := s.core.Catalog().Builds(c.Request().Context(),
		types.ServerType(c.Param("type")), c.Param("v"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, builds)
}

func (s *Server) jardlBuild(c echo.Context) error {
	build, err := s.core.Catalog().Build(c.Request().Context(),
		types.ServerType(c.Param("type")), c.Param("v"), c.Param("b"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, build)
}

func (s *Server) jardlClearCache(c echo.Context) error {
	s.core.Catalog().ClearCache()
	return c.JSON(http.StatusOK, map[string]any{"result": true})
}
