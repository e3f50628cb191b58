package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	telemetry "purifier-cloud/internal/telemetry/domain"
)

// Repository is the Postgres telemetry history store.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends one telemetry record.
func (r *Repository) Insert(ctx context.Context, record *telemetry.Record) error {
	if r == nil || r.db == nil {
		return errors.New("telemetry repo: nil db")
	}
	if record == nil || record.DeviceID == "" {
		return errors.New("telemetry repo: invalid record")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO telemetry (
	device_id, temperature, humidity, pm1, pm25, pm10, voc,
	sound_level, wifi_rssi, fan_speed, power_state, ts
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.DeviceID, record.Temperature, record.Humidity, record.PM1,
		record.PM25, record.PM10, record.VOC, record.SoundLevel,
		record.WifiRSSI, record.FanSpeed, record.PowerState, record.Timestamp)
	return err
}

// ListByDevice returns history for a device, newest first, within an
// optional time range.
func (r *Repository) ListByDevice(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]telemetry.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("telemetry repo: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("telemetry repo: device id required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT device_id, temperature, humidity, pm1, pm25, pm10, voc,
	sound_level, wifi_rssi, fan_speed, power_state, ts
FROM telemetry
WHERE device_id = $1
	AND ($2::timestamptz IS NULL OR ts >= $2)
	AND ($3::timestamptz IS NULL OR ts < $3)
ORDER BY ts DESC
LIMIT $4`, deviceID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []telemetry.Record
	for rows.Next() {
		var record telemetry.Record
		if err := rows.Scan(&record.DeviceID, &record.Temperature, &record.Humidity,
			&record.PM1, &record.PM25, &record.PM10, &record.VOC, &record.SoundLevel,
			&record.WifiRSSI, &record.FanSpeed, &record.PowerState, &record.Timestamp); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
