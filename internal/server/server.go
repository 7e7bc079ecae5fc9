// Package server exposes the HTTP surface: device CRUD, location logging,
// route computation, broadcast, and the admin/observability endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Abir7109/neon-trace-backend/internal/app"
	"github.com/Abir7109/neon-trace-backend/internal/config"
	apperrors "github.com/Abir7109/neon-trace-backend/internal/errors"
	"github.com/Abir7109/neon-trace-backend/internal/logging"
)

type Server struct {
	echo   *echo.Echo
	config *config.Config
	app    *app.Service
}

func NewServer(cfg *config.Config, appSvc *app.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(requestIDMiddleware())
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:   e,
		config: cfg,
		app:    appSvc,
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Server starting", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestIDMiddleware stamps every request context with a short correlation
// ID that the logging handler picks up.
func requestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), logging.NewRequestID())
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
