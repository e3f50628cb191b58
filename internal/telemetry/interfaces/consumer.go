package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	devices "purifier-cloud/internal/devices/domain"
	"purifier-cloud/internal/observability/metrics"
	telemetry "purifier-cloud/internal/telemetry/domain"
	"purifier-cloud/internal/transport"
)

// HistoryStore appends telemetry records.
type HistoryStore interface {
	Insert(ctx context.Context, record *telemetry.Record) error
}

// SnapshotStore upserts last-known device state.
type SnapshotStore interface {
	Upsert(ctx context.Context, snap *devices.Snapshot) error
}

// Consumer ingests device telemetry: snapshot upsert plus an append-only
// history record. Malformed messages are logged and dropped.
type Consumer struct {
	history   HistoryStore
	snapshots SnapshotStore
	logger    *log.Logger
	now       func() time.Time
}

// NewConsumer constructs a consumer.
func NewConsumer(history HistoryStore, snapshots SnapshotStore, logger *log.Logger) (*Consumer, error) {
	if history == nil {
		return nil, errors.New("telemetry consumer: nil history store")
	}
	if snapshots == nil {
		return nil, errors.New("telemetry consumer: nil snapshot store")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Consumer{history: history, snapshots: snapshots, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Start subscribes to every device's telemetry subject.
func (c *Consumer) Start(broker transport.Broker) (transport.Subscription, error) {
	return broker.Subscribe(transport.TelemetryWildcard(), c.Handle)
}

// Handle processes one telemetry message.
func (c *Consumer) Handle(ctx context.Context, subject string, data []byte) {
	deviceID := transport.DeviceIDFromSubject(subject)
	if deviceID == "" {
		metrics.IncTelemetry("invalid")
		c.logger.Printf("telemetry consumer: unexpected subject %s", subject)
		return
	}

	var msg transport.TelemetryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.IncTelemetry("invalid")
		c.logger.Printf("telemetry consumer: malformed telemetry from %s: %v", deviceID, err)
		return
	}
	if msg.Temperature == nil || msg.Humidity == nil || msg.PM25 == nil || msg.FanSpeed == nil {
		metrics.IncTelemetry("invalid")
		c.logger.Printf("telemetry consumer: telemetry from %s missing required fields", deviceID)
		return
	}

	now := c.now()
	record := telemetry.Record{
		DeviceID:    deviceID,
		Temperature: *msg.Temperature,
		Humidity:    *msg.Humidity,
		PM1:         floatOrZero(msg.PM1),
		PM25:        *msg.PM25,
		PM10:        floatOrZero(msg.PM10),
		VOC:         floatOrZero(msg.VOC),
		SoundLevel:  floatOrZero(msg.SoundLevel),
		WifiRSSI:    floatOrZero(msg.WifiRSSI),
		FanSpeed:    *msg.FanSpeed,
		PowerState:  normalizePower(msg.PowerState),
		Timestamp:   now,
	}
	if err := c.history.Insert(ctx, &record); err != nil {
		metrics.IncTelemetry("error")
		c.logger.Printf("telemetry consumer: insert for %s: %v", deviceID, err)
		return
	}

	snap := devices.Snapshot{
		DeviceID:        deviceID,
		PowerState:      record.PowerState,
		FanSpeed:        record.FanSpeed,
		Online:          true,
		LastSeen:        now,
		WifiSSID:        msg.WifiSSID,
		FirmwareVersion: msg.Firmware,
	}
	if err := c.snapshots.Upsert(ctx, &snap); err != nil {
		metrics.IncTelemetry("error")
		c.logger.Printf("telemetry consumer: snapshot upsert for %s: %v", deviceID, err)
		return
	}
	metrics.IncTelemetry("ok")
}

func floatOrZero(value *float64) float64 {
	if value == nil {
		return 0
	}
	return *value
}

func normalizePower(value string) string {
	if value == devices.PowerOn {
		return devices.PowerOn
	}
	return devices.PowerOff
}
