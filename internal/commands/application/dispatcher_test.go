package application

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	commands "purifier-cloud/internal/commands/domain"
	"purifier-cloud/internal/commands/infrastructure/memory"
	"purifier-cloud/internal/scheduling"
	"purifier-cloud/internal/transport"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

// countingBroker wraps a MemoryBroker and records every publish.
type countingBroker struct {
	*transport.MemoryBroker
	mu        sync.Mutex
	published []publishedMessage
}

type publishedMessage struct {
	subject string
	data    []byte
}

func newCountingBroker() *countingBroker {
	return &countingBroker{MemoryBroker: transport.NewMemoryBroker()}
}

func (b *countingBroker) Publish(ctx context.Context, subject string, data []byte) error {
	b.mu.Lock()
	b.published = append(b.published, publishedMessage{subject: subject, data: data})
	b.mu.Unlock()
	return b.MemoryBroker.Publish(ctx, subject, data)
}

func (b *countingBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

type failingBroker struct{}

func (failingBroker) Publish(context.Context, string, []byte) error {
	return errors.New("broker unreachable")
}
func (failingBroker) Subscribe(string, transport.Handler) (transport.Subscription, error) {
	return nil, errors.New("broker unreachable")
}
func (failingBroker) Close() error { return nil }

func newEngine(t *testing.T, broker transport.Broker, delay time.Duration) (*Dispatcher, *RetrySupervisor, *memory.CommandRepository) {
	t.Helper()
	ledger := memory.NewCommandRepository()
	logger := log.New(testWriter{t}, "", 0)
	timers := scheduling.NewTimerService()
	t.Cleanup(timers.Stop)

	dispatcher, err := NewDispatcher(ledger, broker, logger)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	supervisor, err := NewRetrySupervisor(ledger, dispatcher, timers, EngineConfig{RetryDelay: delay, MaxAttempts: 3}, logger)
	if err != nil {
		t.Fatalf("NewRetrySupervisor: %v", err)
	}
	dispatcher.AttachRetrySupervisor(supervisor)
	return dispatcher, supervisor, ledger
}

func TestDispatchPublishesAndMarksSent(t *testing.T) {
	broker := newCountingBroker()
	dispatcher, _, ledger := newEngine(t, broker, time.Minute)

	id, err := dispatcher.Dispatch(context.Background(), DispatchRequest{
		DeviceID: "dev-1",
		Kind:     commands.KindSetFanSpeed,
		FanSpeed: 40,
		Origin:   commands.OriginManual,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if id == "" {
		t.Fatal("empty tracking id")
	}

	cmd, err := ledger.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if cmd.Status != commands.StatusSent {
		t.Errorf("status = %s, want %s", cmd.Status, commands.StatusSent)
	}
	if cmd.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", cmd.Attempt)
	}
	if cmd.SentAt.IsZero() {
		t.Error("sentAt not set")
	}

	if broker.count() != 1 {
		t.Fatalf("published %d messages, want 1", broker.count())
	}
	msg := broker.published[0]
	if msg.subject != transport.CommandSubject("dev-1") {
		t.Errorf("subject = %s, want %s", msg.subject, transport.CommandSubject("dev-1"))
	}
	var wire transport.CommandMessage
	if err := json.Unmarshal(msg.data, &wire); err != nil {
		t.Fatalf("unmarshal wire message: %v", err)
	}
	if wire.CommandID != id {
		t.Errorf("wire command id = %s, want %s", wire.CommandID, id)
	}
	if wire.FanSpeed == nil || *wire.FanSpeed != 40 {
		t.Errorf("wire fan speed = %v, want 40", wire.FanSpeed)
	}
}

func TestDispatchRejectsInvalidRequest(t *testing.T) {
	broker := newCountingBroker()
	dispatcher, _, _ := newEngine(t, broker, time.Minute)

	_, err := dispatcher.Dispatch(context.Background(), DispatchRequest{
		DeviceID: "dev-1",
		Kind:     commands.KindSetFanSpeed,
		FanSpeed: 140,
		Origin:   commands.OriginManual,
	})
	if !commands.IsValidation(err) {
		t.Fatalf("got %v, want validation error", err)
	}
	if broker.count() != 0 {
		t.Errorf("published %d messages after rejected request, want 0", broker.count())
	}
}

func TestTransportFailureMarksFailed(t *testing.T) {
	dispatcher, _, ledger := newEngine(t, failingBroker{}, time.Minute)

	id, err := dispatcher.Dispatch(context.Background(), DispatchRequest{
		DeviceID: "dev-1",
		Kind:     commands.KindPowerOn,
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
		t.Errorf("status = %s, want %s", cmd.Status, commands.StatusFailed)
	}
	if cmd.Error == "" {
		t.Error("lastError not recorded for transport failure")
	}
}

func TestUnackedCommandFailsAfterMaxAttempts(t *testing.T) {
	broker := newCountingBroker()
	delay := 20 * time.Millisecond
	dispatcher, _, ledger := newEngine(t, broker, delay)

	id, err := dispatcher.Dispatch(context.Background(), DispatchRequest{
		DeviceID: "dev-1",
		Kind:     commands.KindPowerOn,
		Origin:   commands.OriginManual,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	cmd := waitStatus(t, ledger, id, commands.StatusFailed, 2*time.Second)
	if cmd.Attempt != cmd.MaxAttempts {
		t.Errorf("attempt = %d, want %d", cmd.Attempt, cmd.MaxAttempts)
	}
	if cmd.Error != "max retries reached" {
		t.Errorf("lastError = %q, want %q", cmd.Error, "max retries reached")
	}
	if broker.count() != cmd.MaxAttempts {
		t.Errorf("published %d messages, want %d", broker.count(), cmd.MaxAttempts)
	}

	// No timer may fire again once the record is failed.
	published := broker.count()
	time.Sleep(4 * delay)
	if broker.count() != published {
		t.Errorf("publishes continued after terminal state: %d -> %d", published, broker.count())
	}
}

func TestAckBeforeExhaustionStopsRetries(t *testing.T) {
	broker := newCountingBroker()
	delay := 30 * time.Millisecond
	dispatcher, supervisor, ledger := newEngine(t, broker, delay)

	id, err := dispatcher.Dispatch(context.Background(), DispatchRequest{
		DeviceID: "dev-1",
		Kind:     commands.KindPowerOn,
		Origin:   commands.OriginManual,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// The ack path: terminal transition plus cancelled tracking.
	if applied, err := ledger.MarkAcked(context.Background(), id, time.Now().UTC()); err != nil || !applied {
		t.Fatalf("MarkAcked applied=%t err=%v", applied, err)
	}
	supervisor.CancelTracking(id)

	time.Sleep(4 * delay)
	if broker.count() != 1 {
		t.Errorf("published %d messages after ack, want 1", broker.count())
	}
	cmd, err := ledger.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if cmd.Status != commands.StatusAcked {
		t.Errorf("status = %s, want %s", cmd.Status, commands.StatusAcked)
	}
}

func TestRecoverIncompleteResumesAndFails(t *testing.T) {
	broker := newCountingBroker()
	delay := 20 * time.Millisecond
	dispatcher, supervisor, ledger := newEngine(t, broker, delay)
	_ = dispatcher

	created := time.Now().UTC().Add(-time.Minute)
	resumable := &commands.Command{
		CommandID: "resume-1", DeviceID: "dev-1", Kind: commands.KindPowerOn,
		Origin: commands.OriginManual, Status: commands.StatusSent,
		Attempt: 1, MaxAttempts: 3, CreatedAt: created,
	}
	exhausted := &commands.Command{
		CommandID: "spent-1", DeviceID: "dev-1", Kind: commands.KindPowerOn,
		Origin: commands.OriginManual, Status: commands.StatusSent,
		Attempt: 3, MaxAttempts: 3, CreatedAt: created,
	}
	for _, cmd := range []*commands.Command{resumable, exhausted} {
		if err := ledger.Create(context.Background(), cmd); err != nil {
			t.Fatalf("seed %s: %v", cmd.CommandID, err)
		}
	}

	if err := supervisor.RecoverIncomplete(context.Background()); err != nil {
		t.Fatalf("RecoverIncomplete: %v", err)
	}

	spent, err := ledger.GetByID(context.Background(), "spent-1")
	if err != nil {
		t.Fatalf("GetByID spent-1: %v", err)
	}
	if spent.Status != commands.StatusFailed {
		t.Errorf("exhausted command status = %s, want %s", spent.Status, commands.StatusFailed)
	}

	// The resumable one gets re-checked and republished until exhaustion.
	resumed := waitStatus(t, ledger, "resume-1", commands.StatusFailed, 2*time.Second)
	if resumed.Attempt != resumed.MaxAttempts {
		t.Errorf("resumed attempt = %d, want %d", resumed.Attempt, resumed.MaxAttempts)
	}
	if broker.count() == 0 {
		t.Error("recovered command was never republished")
	}
}

func waitStatus(t *testing.T, ledger *memory.CommandRepository, id, status string, timeout time.Duration) *commands.Command {
	t.Helper()
	deadline := time.After(timeout)
	for {
		cmd, err := ledger.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID %s: %v", id, err)
		}
		if cmd.Status == status {
			return cmd
		}
		select {
		case <-deadline:
			t.Fatalf("command %s stuck in %s, want %s", id, cmd.Status, status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
