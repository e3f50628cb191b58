package postgres

import (
	"context"
	"database/sql"
	"errors"

	devices "purifier-cloud/internal/devices/domain"
)

// SnapshotRepository is the Postgres device snapshot store.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository constructs a repository.
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Upsert inserts or replaces the snapshot for a device.
func (r *SnapshotRepository) Upsert(ctx context.Context, snap *devices.Snapshot) error {
	if r == nil || r.db == nil {
		return errors.New("snapshot repo: nil db")
	}
	if snap == nil || snap.DeviceID == "" {
		return errors.New("snapshot repo: invalid snapshot")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO device_snapshots (
	device_id, power_state, fan_speed, online, last_seen, wifi_ssid, firmware_version
) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (device_id) DO UPDATE SET
	power_state = EXCLUDED.power_state,
	fan_speed = EXCLUDED.fan_speed,
	online = EXCLUDED.online,
	last_seen = EXCLUDED.last_seen,
	wifi_ssid = EXCLUDED.wifi_ssid,
	firmware_version = EXCLUDED.firmware_version`,
		snap.DeviceID, snap.PowerState, snap.FanSpeed, snap.Online, snap.LastSeen,
		snap.WifiSSID, snap.FirmwareVersion)
	return err
}

// UpdateSetting patches only power state and fan speed, preserving liveness
// fields. Used when a successful ack projects a command's intended effect.
func (r *SnapshotRepository) UpdateSetting(ctx context.Context, deviceID, powerState string, fanSpeed int) error {
	if r == nil || r.db == nil {
		return errors.New("snapshot repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO device_snapshots (device_id, power_state, fan_speed, online, last_seen)
VALUES ($1, $2, $3, false, now())
ON CONFLICT (device_id) DO UPDATE SET
	power_state = EXCLUDED.power_state,
	fan_speed = EXCLUDED.fan_speed`,
		deviceID, powerState, fanSpeed)
	return err
}

// UpdatePower patches only the power state, preserving the fan speed a
// power_on restores to.
func (r *SnapshotRepository) UpdatePower(ctx context.Context, deviceID, powerState string) error {
	if r == nil || r.db == nil {
		return errors.New("snapshot repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO device_snapshots (device_id, power_state, fan_speed, online, last_seen)
VALUES ($1, $2, 0, false, now())
ON CONFLICT (device_id) DO UPDATE SET
	power_state = EXCLUDED.power_state`,
		deviceID, powerState)
	return err
}

// Get fetches the snapshot for a device.
func (r *SnapshotRepository) Get(ctx context.Context, deviceID string) (*devices.Snapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("snapshot repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT device_id, power_state, fan_speed, online, last_seen, wifi_ssid, firmware_version
FROM device_snapshots
WHERE device_id = $1
LIMIT 1`, deviceID)
	return scanSnapshot(row)
}

// List returns every known device snapshot.
func (r *SnapshotRepository) List(ctx context.Context) ([]devices.Snapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("snapshot repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT device_id, power_state, fan_speed, online, last_seen, wifi_ssid, firmware_version
FROM device_snapshots
ORDER BY device_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []devices.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *snap)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*devices.Snapshot, error) {
	var snap devices.Snapshot
	var wifiSSID, firmware sql.NullString
	err := row.Scan(&snap.DeviceID, &snap.PowerState, &snap.FanSpeed, &snap.Online,
		&snap.LastSeen, &wifiSSID, &firmware)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, devices.ErrNotFound
		}
		return nil, err
	}
	snap.WifiSSID = wifiSSID.String
	snap.FirmwareVersion = firmware.String
	return &snap, nil
}
