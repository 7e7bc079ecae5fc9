package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Abir7109/neon-trace-backend/internal/domain"
)

const (
	deviceKeyPrefix   = "device:"
	deviceIndexKey    = "devices"
	locationKeyPrefix = "locations:"
	locationCountKey  = "locations:count"

	// Location logs are capped per device; a broadcastable history, not an archive.
	locationHistoryLimit = 500
)

// NewRedisClient connects and verifies the Redis backend.
func NewRedisClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	client.AddHook(NewBreakerHook())

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func deviceKey(id string) string { return deviceKeyPrefix + id }

func locationKey(deviceID string) string { return locationKeyPrefix + deviceID }

// RedisDeviceRepo implements domain.DeviceRepository on a Redis hash per
// device plus a set index for listing.
type RedisDeviceRepo struct {
	rdb   *goredis.Client
	clock clockwork.Clock
}

func NewRedisDeviceRepo(rdb *goredis.Client, clock clockwork.Clock) *RedisDeviceRepo {
	return &RedisDeviceRepo{rdb: rdb, clock: clock}
}

func (r *RedisDeviceRepo) Get(ctx context.Context, id string) (*domain.Device, error) {
	raw, err := r.rdb.Get(ctx, deviceKey(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	var d domain.Device
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("failed to decode device record: %w", err)
	}
	return &d, nil
}

func (r *RedisDeviceRepo) Upsert(ctx context.Context, device *domain.Device) error {
	cp := *device
	cp.UpdatedAt = r.clock.Now()

	raw, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to encode device record: %w", err)
	}

	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, deviceKey(cp.ID), raw, 0)
	pipe.SAdd(ctx, deviceIndexKey, cp.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

func (r *RedisDeviceRepo) List(ctx context.Context, limit int, platform string) ([]*domain.Device, error) {
	ids, err := r.rdb.SMembers(ctx, deviceIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list device index: %w", err)
	}
	sort.Strings(ids)

	var out []*domain.Device
	for _, id := range ids {
		d, err := r.Get(ctx, id)
		if errors.Is(err, domain.ErrDeviceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if platform != "" && d.Platform != platform {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *RedisDeviceRepo) Count(ctx context.Context) (int64, error) {
	n, err := r.rdb.SCard(ctx, deviceIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return n, nil
}

// RedisLocationRepo implements domain.LocationRepository on a capped Redis
// list per device.
type RedisLocationRepo struct {
	rdb   *goredis.Client
	clock clockwork.Clock
}

func NewRedisLocationRepo(rdb *goredis.Client, clock clockwork.Clock) *RedisLocationRepo {
	return &RedisLocationRepo{rdb: rdb, clock: clock}
}

func (r *RedisLocationRepo) Append(ctx context.Context, log *domain.LocationLog) error {
	cp := *log
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.RecordedAt.IsZero() {
		cp.RecordedAt = r.clock.Now()
	}

	raw, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to encode location log: %w", err)
	}

	pipe := r.rdb.Pipeline()
	pipe.LPush(ctx, locationKey(cp.DeviceID), raw)
	pipe.LTrim(ctx, locationKey(cp.DeviceID), 0, locationHistoryLimit-1)
	pipe.Incr(ctx, locationCountKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append location log: %w", err)
	}
	return nil
}

func (r *RedisLocationRepo) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*domain.LocationLog, error) {
	end := int64(-1)
	if limit > 0 {
		end = int64(limit) - 1
	}

	raws, err := r.rdb.LRange(ctx, locationKey(deviceID), 0, end).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list location logs: %w", err)
	}

	out := make([]*domain.LocationLog, 0, len(raws))
	for _, raw := range raws {
		var l domain.LocationLog
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("failed to decode location log: %w", err)
		}
		out = append(out, &l)
	}
	return out, nil
}

func (r *RedisLocationRepo) Count(ctx context.Context) (int64, error) {
	n, err := r.rdb.Get(ctx, locationCountKey).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count location logs: %w", err)
	}
	return n, nil
}
