package postgres

import (
	"context"
	"database/sql"
	"errors"

	schedules "purifier-cloud/internal/schedules/domain"
)

// Repository is the Postgres schedule store.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a schedule.
func (r *Repository) Create(ctx context.Context, sched *schedules.Schedule) error {
	if r == nil || r.db == nil {
		return errors.New("schedule repo: nil db")
	}
	if sched == nil {
		return errors.New("schedule repo: nil schedule")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO schedules (
	schedule_id, device_id, day, start_time, end_time, fan_speed, active, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sched.ScheduleID, sched.DeviceID, sched.Day, sched.StartTime, sched.EndTime,
		sched.FanSpeed, sched.Active, sched.CreatedAt)
	return err
}

// GetByID fetches a schedule.
func (r *Repository) GetByID(ctx context.Context, id string) (*schedules.Schedule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT schedule_id, device_id, day, start_time, end_time, fan_speed, active, created_at
FROM schedules
WHERE schedule_id = $1
LIMIT 1`, id)
	return scanSchedule(row)
}

// Delete removes a schedule. Returns ErrNotFound for unknown ids.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("schedule repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE schedule_id = $1`, id)
	if err != nil {
		return err
	}
	count, _ := result.RowsAffected()
	if count == 0 {
		return schedules.ErrNotFound
	}
	return nil
}

// List returns schedules, optionally filtered by device.
func (r *Repository) List(ctx context.Context, deviceID string) ([]schedules.Schedule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT schedule_id, device_id, day, start_time, end_time, fan_speed, active, created_at
FROM schedules
WHERE $1 = '' OR device_id = $1
ORDER BY day ASC, start_time ASC`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// ListActive returns every active schedule. This is the sole recovery
// source for window jobs after a restart.
func (r *Repository) ListActive(ctx context.Context) ([]schedules.Schedule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT schedule_id, device_id, day, start_time, end_time, fan_speed, active, created_at
FROM schedules
WHERE active
ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*schedules.Schedule, error) {
	var sched schedules.Schedule
	err := row.Scan(&sched.ScheduleID, &sched.DeviceID, &sched.Day, &sched.StartTime,
		&sched.EndTime, &sched.FanSpeed, &sched.Active, &sched.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schedules.ErrNotFound
		}
		return nil, err
	}
	return &sched, nil
}

func scanSchedules(rows *sql.Rows) ([]schedules.Schedule, error) {
	var result []schedules.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sched)
	}
	return result, rows.Err()
}
