// Package domain holds the core records and repository contracts shared by
// the HTTP layer, the dispatch engine, and the persistence adapters.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDeviceNotFound is returned by repositories when no device matches.
var ErrDeviceNotFound = errors.New("device not found")

// Device is a registered client profile with its push delivery token and
// last reported position.
type Device struct {
	ID        string    `json:"id"`
	PushToken string    `json:"push_token,omitempty"`
	Platform  string    `json:"platform,omitempty"`
	Username  string    `json:"username,omitempty"`
	LastLat   *float64  `json:"last_lat,omitempty"`
	LastLng   *float64  `json:"last_lng,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LocationLog is one recorded position report for a device.
type LocationLog struct {
	ID         uuid.UUID `json:"id"`
	DeviceID   string    `json:"device_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
}

// DeviceRepository is the keyed record store for device profiles.
// A limit of 0 means no limit; an empty platform filter matches everything.
type DeviceRepository interface {
	Get(ctx context.Context, id string) (*Device, error)
	Upsert(ctx context.Context, device *Device) error
	List(ctx context.Context, limit int, platform string) ([]*Device, error)
	Count(ctx context.Context) (int64, error)
}

// LocationRepository is the append-only store for location reports.
type LocationRepository interface {
	Append(ctx context.Context, log *LocationLog) error
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]*LocationLog, error)
	Count(ctx context.Context) (int64, error)
}
