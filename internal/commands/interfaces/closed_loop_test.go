package interfaces

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"purifier-cloud/internal/commands/application"
	commands "purifier-cloud/internal/commands/domain"
	commandsmem "purifier-cloud/internal/commands/infrastructure/memory"
	devices "purifier-cloud/internal/devices/domain"
	devicesmem "purifier-cloud/internal/devices/infrastructure/memory"
	"purifier-cloud/internal/scheduling"
	"purifier-cloud/internal/transport"
)

// fakeDevice subscribes to a device's command subject and answers every
// command with a canned ack. The in-process broker delivers synchronously,
// so the ack can land before the dispatcher's own markSent does; that is
// exactly the race the conditional transitions absorb.
func fakeDevice(t *testing.T, broker transport.Broker, deviceID, ackStatus, message string, received *atomic.Int32) {
	t.Helper()
	sub, err := broker.Subscribe(transport.CommandSubject(deviceID), func(ctx context.Context, _ string, data []byte) {
		received.Add(1)
		var msg transport.CommandMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Errorf("device received bad command: %v", err)
			return
		}
		ack, err := json.Marshal(transport.AckMessage{CommandID: msg.CommandID, Status: ackStatus, Message: message})
		if err != nil {
			t.Errorf("marshal ack: %v", err)
			return
		}
		if err := broker.Publish(ctx, transport.AckSubject(deviceID), ack); err != nil {
			t.Errorf("publish ack: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("device subscribe: %v", err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
}

func newClosedLoop(t *testing.T, delay time.Duration) (*application.Dispatcher, *commandsmem.CommandRepository, *devicesmem.SnapshotRepository, transport.Broker) {
	t.Helper()
	broker := transport.NewMemoryBroker()
	ledger := commandsmem.NewCommandRepository()
	snapshots := devicesmem.NewSnapshotRepository()
	logger := log.New(testWriter{t}, "", 0)
	timers := scheduling.NewTimerService()
	t.Cleanup(timers.Stop)

	dispatcher, err := application.NewDispatcher(ledger, broker, logger)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	supervisor, err := application.NewRetrySupervisor(ledger, dispatcher, timers, application.EngineConfig{RetryDelay: delay, MaxAttempts: 3}, logger)
	if err != nil {
		t.Fatalf("NewRetrySupervisor: %v", err)
	}
	dispatcher.AttachRetrySupervisor(supervisor)

	consumer, err := NewAckConsumer(ledger, snapshots, supervisor, logger)
	if err != nil {
		t.Fatalf("NewAckConsumer: %v", err)
	}
	if _, err := consumer.Start(broker); err != nil {
		t.Fatalf("consumer start: %v", err)
	}
	return dispatcher, ledger, snapshots, broker
}

func TestDispatchAckLoopUpdatesLedgerAndSnapshot(t *testing.T) {
	delay := 40 * time.Millisecond
	dispatcher, ledger, snapshots, broker := newClosedLoop(t, delay)
	var received atomic.Int32
	fakeDevice(t, broker, "dev1", transport.AckSuccess, "", &received)

	id, err := dispatcher.Dispatch(context.Background(), application.DispatchRequest{
		DeviceID: "dev1",
		Kind:     commands.KindSetFanSpeed,
		FanSpeed: 40,
		Origin:   commands.OriginManual,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	cmd, err := ledger.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if cmd.Status != commands.StatusAcked {
		t.Fatalf("status = %s, want %s", cmd.Status, commands.StatusAcked)
	}

	snap, err := snapshots.Get(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.FanSpeed != 40 || snap.PowerState != devices.PowerOn {
		t.Errorf("snapshot = %s/%d, want ON/40", snap.PowerState, snap.FanSpeed)
	}

	// The ack reached the ledger; no retry may republish later.
	time.Sleep(3 * delay)
	if got := received.Load(); got != 1 {
		t.Errorf("device received %d commands, want 1", got)
	}
}

func TestDeviceFailureAckEndsCommand(t *testing.T) {
	delay := 40 * time.Millisecond
	dispatcher, ledger, _, broker := newClosedLoop(t, delay)
	var received atomic.Int32
	fakeDevice(t, broker, "dev1", transport.AckFailed, "fan speed out of range", &received)

	id, err := dispatcher.Dispatch(context.Background(), application.DispatchRequest{
		DeviceID: "dev1",
		Kind:     commands.KindSetFanSpeed,
		FanSpeed: 99,
		Origin:   commands.OriginManual,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	cmd, err := ledger.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if cmd.Status != commands.StatusFailed {
		t.Fatalf("status = %s, want %s", cmd.Status, commands.StatusFailed)
	}
	if cmd.Error != "fan speed out of range" {
		t.Errorf("lastError = %q", cmd.Error)
	}

	time.Sleep(3 * delay)
	if got := received.Load(); got != 1 {
		t.Errorf("device received %d commands, want 1", got)
	}
}
