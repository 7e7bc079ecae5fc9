package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.POST("/devices", s.handleUpsertDevice)
	api.GET("/devices/:id", s.handleGetDevice)
	api.POST("/devices/:id/location", s.handleRecordLocation)
	api.GET("/devices/:id/locations", s.handleListLocations)

	api.POST("/route", s.handleRoute)
	api.POST("/broadcast", s.handleBroadcast)

	admin := api.Group("/admin")
	admin.GET("/devices", s.handleAdminListDevices)
	admin.GET("/stats", s.handleAdminStats)
}
