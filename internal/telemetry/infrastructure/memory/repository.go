package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	telemetry "purifier-cloud/internal/telemetry/domain"
)

// Repository is an in-memory telemetry store used by unit tests.
type Repository struct {
	mu   sync.RWMutex
	data []telemetry.Record
}

// NewRepository constructs an empty store.
func NewRepository() *Repository {
	return &Repository{}
}

// Insert appends one record.
func (r *Repository) Insert(_ context.Context, record *telemetry.Record) error {
	if record == nil || record.DeviceID == "" {
		return errors.New("memory telemetry: invalid record")
	}
	r.mu.Lock()
	r.data = append(r.data, *record)
	r.mu.Unlock()
	return nil
}

// ListByDevice returns history for a device, newest first.
func (r *Repository) ListByDevice(_ context.Context, deviceID string, from, to time.Time, limit int) ([]telemetry.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []telemetry.Record
	for _, record := range r.data {
		if record.DeviceID != deviceID {
			continue
		}
		if !from.IsZero() && record.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !record.Timestamp.Before(to) {
			continue
		}
		result = append(result, record)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
