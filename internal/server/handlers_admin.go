package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "github.com/Abir7109/neon-trace-backend/internal/errors"
)

func (s *Server) handleAdminListDevices(c echo.Context) error {
	limit := intQueryParam(c, "limit", 100)
	platform := c.QueryParam("platform")

	devices, err := s.app.ListDevices(c.Request().Context(), limit, platform)
	if err != nil {
		return apperrors.InternalError("failed to list devices", err)
	}

	if err := c.JSON(http.StatusOK, map[string]any{"devices": devices, "count": len(devices)}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleAdminStats(c echo.Context) error {
	stats, err := s.app.Stats(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to compute stats", err)
	}

	if err := c.JSON(http.StatusOK, stats); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// intQueryParam parses a positive integer query parameter, falling back to
// def when absent or malformed.
func intQueryParam(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
