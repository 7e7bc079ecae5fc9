package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Abir7109/neon-trace-backend/internal/domain"
	apperrors "github.com/Abir7109/neon-trace-backend/internal/errors"
	"github.com/Abir7109/neon-trace-backend/internal/push"
	"github.com/Abir7109/neon-trace-backend/internal/routing"
)

type upsertDeviceRequest struct {
	ID        string `json:"id"`
	PushToken string `json:"push_token"`
	Platform  string `json:"platform"`
	Username  string `json:"username"`
}

func (s *Server) handleUpsertDevice(c echo.Context) error {
	var req upsertDeviceRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	device, err := s.app.UpsertDevice(c.Request().Context(), &domain.Device{
		ID:        req.ID,
		PushToken: req.PushToken,
		Platform:  req.Platform,
		Username:  req.Username,
	})
	if err != nil {
		return apperrors.InternalError("failed to save device", err)
	}

	if err := c.JSON(http.StatusOK, device); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetDevice(c echo.Context) error {
	id := c.Param("id")

	device, err := s.app.GetDevice(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrDeviceNotFound) {
			return apperrors.NotFoundError("device not found").WithField("device_id", id)
		}
		return apperrors.InternalError("failed to load device", err).WithField("device_id", id)
	}

	if err := c.JSON(http.StatusOK, device); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type recordLocationRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (s *Server) handleRecordLocation(c echo.Context) error {
	id := c.Param("id")

	var req recordLocationRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Lat == nil || req.Lng == nil {
		return apperrors.ValidationError("lat and lng are required")
	}

	point, err := routing.CoerceLatLng(map[string]any{"lat": *req.Lat, "lng": *req.Lng})
	if err != nil {
		return err
	}

	log, err := s.app.RecordLocation(c.Request().Context(), id, point)
	if err != nil {
		if errors.Is(err, domain.ErrDeviceNotFound) {
			return apperrors.NotFoundError("device not found").WithField("device_id", id)
		}
		return apperrors.InternalError("failed to record location", err).WithField("device_id", id)
	}

	if err := c.JSON(http.StatusOK, log); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListLocations(c echo.Context) error {
	id := c.Param("id")
	limit := intQueryParam(c, "limit", 50)

	logs, err := s.app.ListLocations(c.Request().Context(), id, limit)
	if err != nil {
		return apperrors.InternalError("failed to list locations", err).WithField("device_id", id)
	}

	if err := c.JSON(http.StatusOK, map[string]any{"locations": logs}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type routeRequest struct {
	Origin      any    `json:"origin"`
	Destination any    `json:"destination"`
	Profile     string `json:"profile"`
}

func (s *Server) handleRoute(c echo.Context) error {
	var req routeRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Origin == nil || req.Destination == nil {
		return apperrors.ValidationError("origin and destination are required")
	}

	route, err := s.app.Route(c.Request().Context(), req.Origin, req.Destination, req.Profile)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, route); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type broadcastRequest struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Title == "" && req.Body == "" {
		return apperrors.ValidationError("title or body is required")
	}

	result, err := s.app.Broadcast(c.Request().Context(), push.Notification{
		Title: req.Title,
		Body:  req.Body,
		Data:  req.Data,
	})
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, map[string]any{
		"ok":     true,
		"sent":   result.Sent,
		"failed": result.Failed,
		"total":  result.Total,
	}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
