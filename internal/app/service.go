// Package app is the application layer — the only component that references
// multiple domain components. It orchestrates all use cases.
package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Abir7109/neon-trace-backend/internal/domain"
	"github.com/Abir7109/neon-trace-backend/internal/push"
	"github.com/Abir7109/neon-trace-backend/internal/routing"
)

// Broadcaster is the dispatch engine seen from the application layer.
type Broadcaster interface {
	Broadcast(ctx context.Context, recipients []string, note push.Notification) (push.Result, error)
}

// RouteResolver is the route resolver seen from the application layer.
type RouteResolver interface {
	Resolve(ctx context.Context, origin, destination routing.LatLng, profile string) (*routing.Route, error)
}

// Stats is the admin summary over both record kinds.
type Stats struct {
	Devices     int64            `json:"devices"`
	WithToken   int64            `json:"devices_with_push_token"`
	ByPlatform  map[string]int64 `json:"devices_by_platform"`
	LocationLog int64            `json:"location_logs"`
}

type Service struct {
	devices    domain.DeviceRepository
	locations  domain.LocationRepository
	dispatcher Broadcaster
	resolver   RouteResolver
	clock      clockwork.Clock
}

func NewService(devices domain.DeviceRepository, locations domain.LocationRepository, dispatcher Broadcaster, resolver RouteResolver, clock clockwork.Clock) *Service {
	return &Service{
		devices:    devices,
		locations:  locations,
		dispatcher: dispatcher,
		resolver:   resolver,
		clock:      clock,
	}
}

// UpsertDevice creates or updates a device profile.
func (s *Service) UpsertDevice(ctx context.Context, device *domain.Device) (*domain.Device, error) {
	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	device.UpdatedAt = s.clock.Now()
	if err := s.devices.Upsert(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

// GetDevice retrieves a device by ID.
func (s *Service) GetDevice(ctx context.Context, id string) (*domain.Device, error) {
	return s.devices.Get(ctx, id)
}

// RecordLocation appends a location report and updates the device's last
// known position.
func (s *Service) RecordLocation(ctx context.Context, deviceID string, point routing.LatLng) (*domain.LocationLog, error) {
	device, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	log := &domain.LocationLog{
		ID:         uuid.New(),
		DeviceID:   deviceID,
		Lat:        point.Lat,
		Lng:        point.Lng,
		RecordedAt: s.clock.Now(),
	}
	if err := s.locations.Append(ctx, log); err != nil {
		return nil, err
	}

	device.LastLat = &log.Lat
	device.LastLng = &log.Lng
	device.UpdatedAt = log.RecordedAt
	if err := s.devices.Upsert(ctx, device); err != nil {
		return nil, err
	}

	return log, nil
}

// ListDevices lists device profiles for the admin surface.
func (s *Service) ListDevices(ctx context.Context, limit int, platform string) ([]*domain.Device, error) {
	return s.devices.List(ctx, limit, platform)
}

// ListLocations lists a device's recent location reports, newest first.
func (s *Service) ListLocations(ctx context.Context, deviceID string, limit int) ([]*domain.LocationLog, error) {
	return s.locations.ListByDevice(ctx, deviceID, limit)
}

// Broadcast fans a notification out to every device with a push token.
func (s *Service) Broadcast(ctx context.Context, note push.Notification) (push.Result, error) {
	devices, err := s.devices.List(ctx, 0, "")
	if err != nil {
		return push.Result{}, err
	}

	var recipients []string
	for _, d := range devices {
		if d.PushToken != "" {
			recipients = append(recipients, d.PushToken)
		}
	}

	slog.InfoContext(ctx, "Broadcasting notification", "recipients", len(recipients), "title", note.Title)
	return s.dispatcher.Broadcast(ctx, recipients, note)
}

// Route resolves the shortest route between two raw coordinate inputs.
func (s *Service) Route(ctx context.Context, rawOrigin, rawDestination any, profile string) (*routing.Route, error) {
	origin, err := routing.CoerceLatLng(rawOrigin)
	if err != nil {
		return nil, err
	}
	destination, err := routing.CoerceLatLng(rawDestination)
	if err != nil {
		return nil, err
	}

	return s.resolver.Resolve(ctx, origin, destination, profile)
}

// Stats summarizes the record store for the admin surface.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.devices.Count(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := s.locations.Count(ctx)
	if err != nil {
		return nil, err
	}

	devices, err := s.devices.List(ctx, 0, "")
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Devices:     total,
		ByPlatform:  make(map[string]int64),
		LocationLog: logs,
	}
	for _, d := range devices {
		if d.PushToken != "" {
			stats.WithToken++
		}
		if d.Platform != "" {
			stats.ByPlatform[d.Platform]++
		}
	}
	return stats, nil
}
