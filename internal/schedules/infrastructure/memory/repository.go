package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	schedules "purifier-cloud/internal/schedules/domain"
)

// ScheduleRepository is an in-memory schedule store used by unit tests.
type ScheduleRepository struct {
	mu   sync.RWMutex
	data map[string]*schedules.Schedule
}

// NewScheduleRepository constructs an empty store.
func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{data: make(map[string]*schedules.Schedule)}
}

// Create inserts a schedule.
func (r *ScheduleRepository) Create(_ context.Context, sched *schedules.Schedule) error {
	if sched == nil || sched.ScheduleID == "" {
		return errors.New("memory schedules: invalid schedule")
	}
	clone := *sched
	r.mu.Lock()
	r.data[sched.ScheduleID] = &clone
	r.mu.Unlock()
	return nil
}

// GetByID fetches a schedule.
func (r *ScheduleRepository) GetByID(_ context.Context, id string) (*schedules.Schedule, error) {
	r.mu.RLock()
	sched := r.data[id]
	r.mu.RUnlock()
	if sched == nil {
		return nil, schedules.ErrNotFound
	}
	clone := *sched
	return &clone, nil
}

// Delete removes a schedule.
func (r *ScheduleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return schedules.ErrNotFound
	}
	delete(r.data, id)
	return nil
}

// List returns schedules, optionally filtered by device.
func (r *ScheduleRepository) List(_ context.Context, deviceID string) ([]schedules.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []schedules.Schedule
	for _, sched := range r.data {
		if deviceID != "" && sched.DeviceID != deviceID {
			continue
		}
		result = append(result, *sched)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduleID < result[j].ScheduleID })
	return result, nil
}

// ListActive returns active schedules.
func (r *ScheduleRepository) ListActive(_ context.Context) ([]schedules.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []schedules.Schedule
	for _, sched := range r.data {
		if sched.Active {
			result = append(result, *sched)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduleID < result[j].ScheduleID })
	return result, nil
}
