package interfaces

import (
	"context"
	"encoding/json"
	"log"
	"testing"
	"time"

	devices "purifier-cloud/internal/devices/domain"
	devicesmem "purifier-cloud/internal/devices/infrastructure/memory"
	telemetrymem "purifier-cloud/internal/telemetry/infrastructure/memory"
	"purifier-cloud/internal/transport"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

func newTestConsumer(t *testing.T) (*Consumer, *telemetrymem.Repository, *devicesmem.SnapshotRepository) {
	t.Helper()
	history := telemetrymem.NewRepository()
	snapshots := devicesmem.NewSnapshotRepository()
	consumer, err := NewConsumer(history, snapshots, log.New(testWriter{t}, "", 0))
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return consumer, history, snapshots
}

func float(v float64) *float64 { return &v }
func intp(v int) *int          { return &v }

func validMessage() transport.TelemetryMessage {
	return transport.TelemetryMessage{
		Temperature: float(21.5),
		Humidity:    float(44),
		PM1:         float(3),
		PM25:        float(8),
		PM10:        float(12),
		VOC:         float(110),
		SoundLevel:  float(31),
		WifiRSSI:    float(-52),
		FanSpeed:    intp(40),
		PowerState:  devices.PowerOn,
		WifiSSID:    "home-net",
		Firmware:    "1.2.3",
	}
}

func TestHandleInsertsHistoryAndUpsertsSnapshot(t *testing.T) {
	consumer, history, snapshots := newTestConsumer(t)
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	consumer.now = func() time.Time { return fixed }

	data, err := json.Marshal(validMessage())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	consumer.Handle(context.Background(), transport.TelemetrySubject("dev-1"), data)

	records, err := history.ListByDevice(context.Background(), "dev-1", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("ListByDevice: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d history records, want 1", len(records))
	}
	rec := records[0]
	if rec.PM25 != 8 || rec.FanSpeed != 40 || rec.PowerState != devices.PowerOn {
		t.Errorf("record = %+v", rec)
	}
	if !rec.Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %s, want %s", rec.Timestamp, fixed)
	}

	snap, err := snapshots.Get(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Online {
		t.Error("device not marked online")
	}
	if !snap.LastSeen.Equal(fixed) {
		t.Errorf("lastSeen = %s, want %s", snap.LastSeen, fixed)
	}
	if snap.WifiSSID != "home-net" || snap.FirmwareVersion != "1.2.3" {
		t.Errorf("snapshot metadata = %s/%s", snap.WifiSSID, snap.FirmwareVersion)
	}
}

func TestHandleDropsMalformedTelemetry(t *testing.T) {
	consumer, history, snapshots := newTestConsumer(t)

	missing := validMessage()
	missing.Temperature = nil
	data, err := json.Marshal(missing)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	consumer.Handle(context.Background(), transport.TelemetrySubject("dev-1"), data)
	consumer.Handle(context.Background(), transport.TelemetrySubject("dev-1"), []byte("{broken"))
	consumer.Handle(context.Background(), "devices.telemetry", []byte("{}"))

	records, err := history.ListByDevice(context.Background(), "dev-1", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("ListByDevice: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("malformed telemetry persisted %d records", len(records))
	}
	if _, err := snapshots.Get(context.Background(), "dev-1"); err == nil {
		t.Error("malformed telemetry created a snapshot")
	}
}

func TestHandleNormalizesPowerState(t *testing.T) {
	consumer, _, snapshots := newTestConsumer(t)

	msg := validMessage()
	msg.PowerState = "standby"
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	consumer.Handle(context.Background(), transport.TelemetrySubject("dev-1"), data)

	snap, err := snapshots.Get(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.PowerState != devices.PowerOff {
		t.Errorf("power state = %s, want OFF for unrecognized value", snap.PowerState)
	}
}
