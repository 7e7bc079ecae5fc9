package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abir7109/neon-trace-backend/internal/domain"
)

func TestMemoryDeviceRepo_UpsertAndGet(t *testing.T) {
	repo := NewMemoryDeviceRepo()
	ctx := context.Background()

	err := repo.Upsert(ctx, &domain.Device{ID: "d1", PushToken: "tok-1", Platform: "android"})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.PushToken)

	// Upsert replaces the record.
	err = repo.Upsert(ctx, &domain.Device{ID: "d1", PushToken: "tok-2", Platform: "ios"})
	require.NoError(t, err)

	got, err = repo.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.PushToken)
	assert.Equal(t, "ios", got.Platform)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryDeviceRepo_GetMissing(t *testing.T) {
	repo := NewMemoryDeviceRepo()

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
}

func TestMemoryDeviceRepo_ListWithLimitAndFilter(t *testing.T) {
	repo := NewMemoryDeviceRepo()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &domain.Device{ID: "a", Platform: "android"}))
	require.NoError(t, repo.Upsert(ctx, &domain.Device{ID: "b", Platform: "ios"}))
	require.NoError(t, repo.Upsert(ctx, &domain.Device{ID: "c", Platform: "android"}))

	all, err := repo.List(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID, "listing is ordered by ID")

	androids, err := repo.List(ctx, 0, "android")
	require.NoError(t, err)
	assert.Len(t, androids, 2)

	limited, err := repo.List(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryDeviceRepo_GetReturnsCopy(t *testing.T) {
	repo := NewMemoryDeviceRepo()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &domain.Device{ID: "d1", Username: "ada"}))

	got, err := repo.Get(ctx, "d1")
	require.NoError(t, err)
	got.Username = "mutated"

	again, err := repo.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "ada", again.Username)
}

func TestMemoryLocationRepo_AppendAndList(t *testing.T) {
	repo := NewMemoryLocationRepo()
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := repo.Append(ctx, &domain.LocationLog{
			ID:         uuid.New(),
			DeviceID:   "d1",
			Lat:        float64(i),
			Lng:        float64(-i),
			RecordedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	require.NoError(t, repo.Append(ctx, &domain.LocationLog{ID: uuid.New(), DeviceID: "other"}))

	logs, err := repo.ListByDevice(ctx, "d1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 5)
	assert.Equal(t, 4.0, logs[0].Lat, "newest first")

	limited, err := repo.ListByDevice(ctx, "d1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, 4.0, limited[0].Lat)
	assert.Equal(t, 3.0, limited[1].Lat)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}
