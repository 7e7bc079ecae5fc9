package app

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abir7109/neon-trace-backend/internal/domain"
	apperrors "github.com/Abir7109/neon-trace-backend/internal/errors"
	"github.com/Abir7109/neon-trace-backend/internal/push"
	"github.com/Abir7109/neon-trace-backend/internal/routing"
	"github.com/Abir7109/neon-trace-backend/internal/store"
)

type fakeBroadcaster struct {
	recipients []string
	note       push.Notification
	result     push.Result
	err        error
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, recipients []string, note push.Notification) (push.Result, error) {
	f.recipients = recipients
	f.note = note
	if f.err != nil {
		return push.Result{}, f.err
	}
	f.result.Total = len(recipients)
	return f.result, nil
}

type fakeResolver struct {
	origin, destination routing.LatLng
	profile             string
	route               *routing.Route
	err                 error
}

func (f *fakeResolver) Resolve(_ context.Context, origin, destination routing.LatLng, profile string) (*routing.Route, error) {
	f.origin = origin
	f.destination = destination
	f.profile = profile
	return f.route, f.err
}

func newTestService(b *fakeBroadcaster, r *fakeResolver) (*Service, *store.MemoryDeviceRepo, clockwork.Clock) {
	devices := store.NewMemoryDeviceRepo()
	locations := store.NewMemoryLocationRepo()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewService(devices, locations, b, r, clock), devices, clock
}

func TestUpsertDevice_AssignsID(t *testing.T) {
	svc, _, clock := newTestService(&fakeBroadcaster{}, &fakeResolver{})

	device, err := svc.UpsertDevice(context.Background(), &domain.Device{PushToken: "tok"})
	require.NoError(t, err)
	assert.NotEmpty(t, device.ID)
	assert.Equal(t, clock.Now(), device.UpdatedAt)
}

func TestRecordLocation_UpdatesDevicePosition(t *testing.T) {
	svc, devices, _ := newTestService(&fakeBroadcaster{}, &fakeResolver{})
	ctx := context.Background()

	_, err := svc.UpsertDevice(ctx, &domain.Device{ID: "d1"})
	require.NoError(t, err)

	log, err := svc.RecordLocation(ctx, "d1", routing.LatLng{Lat: 40.0, Lng: -73.0})
	require.NoError(t, err)
	assert.Equal(t, "d1", log.DeviceID)

	device, err := devices.Get(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, device.LastLat)
	assert.Equal(t, 40.0, *device.LastLat)
	assert.Equal(t, -73.0, *device.LastLng)

	logs, err := svc.ListLocations(ctx, "d1", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRecordLocation_UnknownDevice(t *testing.T) {
	svc, _, _ := newTestService(&fakeBroadcaster{}, &fakeResolver{})

	_, err := svc.RecordLocation(context.Background(), "ghost", routing.LatLng{})
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
}

func TestBroadcast_CollectsOnlyDevicesWithTokens(t *testing.T) {
	b := &fakeBroadcaster{result: push.Result{Sent: 2}}
	svc, _, _ := newTestService(b, &fakeResolver{})
	ctx := context.Background()

	_, err := svc.UpsertDevice(ctx, &domain.Device{ID: "a", PushToken: "tok-a"})
	require.NoError(t, err)
	_, err = svc.UpsertDevice(ctx, &domain.Device{ID: "b"})
	require.NoError(t, err)
	_, err = svc.UpsertDevice(ctx, &domain.Device{ID: "c", PushToken: "tok-c"})
	require.NoError(t, err)

	result, err := svc.Broadcast(ctx, push.Notification{Title: "hi"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"tok-a", "tok-c"}, b.recipients)
	assert.Equal(t, "hi", b.note.Title)
	assert.Equal(t, 2, result.Total)
}

func TestRoute_CoercesBeforeResolving(t *testing.T) {
	r := &fakeResolver{route: &routing.Route{Alternatives: 1}}
	svc, _, _ := newTestService(&fakeBroadcaster{}, r)

	_, err := svc.Route(context.Background(), []any{-95.0, 29.7}, map[string]any{"lat": 30.0, "lng": -96.0}, "foot-walking")
	require.NoError(t, err)

	assert.Equal(t, routing.LatLng{Lat: 29.7, Lng: -95.0}, r.origin)
	assert.Equal(t, routing.LatLng{Lat: 30.0, Lng: -96.0}, r.destination)
	assert.Equal(t, "foot-walking", r.profile)
}

func TestRoute_RejectsBadCoordinatesBeforeResolving(t *testing.T) {
	r := &fakeResolver{route: &routing.Route{}}
	svc, _, _ := newTestService(&fakeBroadcaster{}, r)

	_, err := svc.Route(context.Background(), []any{999.0, 999.0}, map[string]any{"lat": 0.0, "lng": 0.0}, "cycling-road")
	require.Error(t, err)

	var structured *apperrors.Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, apperrors.TypeValidation, structured.Type)
	assert.Empty(t, r.profile, "resolver must not be called for invalid input")
}

func TestStats(t *testing.T) {
	svc, _, _ := newTestService(&fakeBroadcaster{}, &fakeResolver{})
	ctx := context.Background()

	_, err := svc.UpsertDevice(ctx, &domain.Device{ID: "a", PushToken: "t", Platform: "android"})
	require.NoError(t, err)
	_, err = svc.UpsertDevice(ctx, &domain.Device{ID: "b", Platform: "android"})
	require.NoError(t, err)
	_, err = svc.UpsertDevice(ctx, &domain.Device{ID: "c", Platform: "ios"})
	require.NoError(t, err)

	_, err = svc.RecordLocation(ctx, "a", routing.LatLng{Lat: 1, Lng: 2})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Devices)
	assert.Equal(t, int64(1), stats.WithToken)
	assert.Equal(t, int64(2), stats.ByPlatform["android"])
	assert.Equal(t, int64(1), stats.ByPlatform["ios"])
	assert.Equal(t, int64(1), stats.LocationLog)
}
