package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	devices "purifier-cloud/internal/devices/domain"
)

// SnapshotRepository is an in-memory snapshot store used by unit tests.
type SnapshotRepository struct {
	mu   sync.RWMutex
	data map[string]*devices.Snapshot
}

// NewSnapshotRepository constructs an empty store.
func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{data: make(map[string]*devices.Snapshot)}
}

// Upsert inserts or replaces a snapshot.
func (r *SnapshotRepository) Upsert(_ context.Context, snap *devices.Snapshot) error {
	if snap == nil || snap.DeviceID == "" {
		return errors.New("memory snapshots: invalid snapshot")
	}
	clone := *snap
	r.mu.Lock()
	r.data[snap.DeviceID] = &clone
	r.mu.Unlock()
	return nil
}

// UpdateSetting patches power state and fan speed only.
func (r *SnapshotRepository) UpdateSetting(_ context.Context, deviceID, powerState string, fanSpeed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.data[deviceID]
	if snap == nil {
		r.data[deviceID] = &devices.Snapshot{DeviceID: deviceID, PowerState: powerState, FanSpeed: fanSpeed}
		return nil
	}
	snap.PowerState = powerState
	snap.FanSpeed = fanSpeed
	return nil
}

// UpdatePower patches the power state only.
func (r *SnapshotRepository) UpdatePower(_ context.Context, deviceID, powerState string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.data[deviceID]
	if snap == nil {
		r.data[deviceID] = &devices.Snapshot{DeviceID: deviceID, PowerState: powerState}
		return nil
	}
	snap.PowerState = powerState
	return nil
}

// Get fetches a snapshot by device id.
func (r *SnapshotRepository) Get(_ context.Context, deviceID string) (*devices.Snapshot, error) {
	r.mu.RLock()
	snap := r.data[deviceID]
	r.mu.RUnlock()
	if snap == nil {
		return nil, devices.ErrNotFound
	}
	clone := *snap
	return &clone, nil
}

// List returns all snapshots ordered by device id.
func (r *SnapshotRepository) List(_ context.Context) ([]devices.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []devices.Snapshot
	for _, snap := range r.data {
		result = append(result, *snap)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DeviceID < result[j].DeviceID })
	return result, nil
}
