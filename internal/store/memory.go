// Package store provides the persistence adapters behind the domain
// repository interfaces: in-memory (default), PostgreSQL, and Redis.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Abir7109/neon-trace-backend/internal/domain"
)

// MemoryDeviceRepo is the in-process fallback device store.
type MemoryDeviceRepo struct {
	mu      sync.RWMutex
	devices map[string]*domain.Device
}

func NewMemoryDeviceRepo() *MemoryDeviceRepo {
	return &MemoryDeviceRepo{devices: make(map[string]*domain.Device)}
}

func (m *MemoryDeviceRepo) Get(_ context.Context, id string) (*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	if !ok {
		return nil, domain.ErrDeviceNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryDeviceRepo) Upsert(_ context.Context, device *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *device
	m.devices[device.ID] = &cp
	return nil
}

func (m *MemoryDeviceRepo) List(_ context.Context, limit int, platform string) ([]*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Device, 0, len(m.devices))
	for _, d := range m.devices {
		if platform != "" && d.Platform != platform {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}

	// Deterministic order for pagination and tests.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryDeviceRepo) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.devices)), nil
}

// MemoryLocationRepo is the in-process fallback location log.
type MemoryLocationRepo struct {
	mu   sync.RWMutex
	logs []*domain.LocationLog
}

func NewMemoryLocationRepo() *MemoryLocationRepo {
	return &MemoryLocationRepo{}
}

func (m *MemoryLocationRepo) Append(_ context.Context, log *domain.LocationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *log
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *MemoryLocationRepo) ListByDevice(_ context.Context, deviceID string, limit int) ([]*domain.LocationLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.LocationLog
	// Newest first.
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].DeviceID != deviceID {
			continue
		}
		cp := *m.logs[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryLocationRepo) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.logs)), nil
}
