package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	commands "purifier-cloud/internal/commands/domain"
)

// CommandRepository is an in-memory command ledger with the same transition
// semantics as the Postgres implementation. Used by unit tests.
type CommandRepository struct {
	mu   sync.RWMutex
	data map[string]*commands.Command
}

// NewCommandRepository constructs an empty ledger.
func NewCommandRepository() *CommandRepository {
	return &CommandRepository{data: make(map[string]*commands.Command)}
}

// Create inserts a command.
func (r *CommandRepository) Create(_ context.Context, cmd *commands.Command) error {
	if cmd == nil {
		return errors.New("memory ledger: nil command")
	}
	if cmd.CommandID == "" {
		return errors.New("memory ledger: empty command id")
	}
	clone := *cmd
	r.mu.Lock()
	r.data[cmd.CommandID] = &clone
	r.mu.Unlock()
	return nil
}

// GetByID fetches a command by id.
func (r *CommandRepository) GetByID(_ context.Context, id string) (*commands.Command, error) {
	r.mu.RLock()
	cmd := r.data[id]
	r.mu.RUnlock()
	if cmd == nil {
		return nil, commands.ErrNotFound
	}
	clone := *cmd
	return &clone, nil
}

// MarkSent applies the pending|sent -> sent transition.
func (r *CommandRepository) MarkSent(_ context.Context, id string, sentAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd := r.data[id]
	if cmd == nil || commands.Terminal(cmd.Status) {
		return false, nil
	}
	cmd.Status = commands.StatusSent
	cmd.SentAt = sentAt
	cmd.Attempt++
	return true, nil
}

// MarkAcked applies the pending|sent -> acked transition.
func (r *CommandRepository) MarkAcked(_ context.Context, id string, ackedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd := r.data[id]
	if cmd == nil || commands.Terminal(cmd.Status) {
		return false, nil
	}
	cmd.Status = commands.StatusAcked
	cmd.AckedAt = ackedAt
	cmd.Error = ""
	return true, nil
}

// MarkFailed applies the pending|sent -> failed transition.
func (r *CommandRepository) MarkFailed(_ context.Context, id string, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd := r.data[id]
	if cmd == nil || commands.Terminal(cmd.Status) {
		return false, nil
	}
	cmd.Status = commands.StatusFailed
	cmd.Error = reason
	return true, nil
}

// ListIncomplete returns non-terminal commands with attempts remaining,
// created before cutoff, oldest first.
func (r *CommandRepository) ListIncomplete(_ context.Context, cutoff time.Time) ([]commands.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []commands.Command
	for _, cmd := range r.data {
		if commands.Terminal(cmd.Status) || !cmd.CreatedAt.Before(cutoff) {
			continue
		}
		result = append(result, *cmd)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// ListByDevice lists history for a device, newest first.
func (r *CommandRepository) ListByDevice(_ context.Context, deviceID string, from, to time.Time, limit int) ([]commands.Command, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []commands.Command
	for _, cmd := range r.data {
		if cmd.DeviceID != deviceID {
			continue
		}
		if !from.IsZero() && cmd.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !cmd.CreatedAt.Before(to) {
			continue
		}
		result = append(result, *cmd)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
