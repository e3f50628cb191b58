package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	commands "purifier-cloud/internal/commands/domain"
	"purifier-cloud/internal/observability/metrics"
	"purifier-cloud/internal/transport"
)

// Ledger is the command store surface the dispatch engine needs. The bool
// result of the transition methods reports whether the conditional update
// applied; false on a terminal record is the benign-race path.
type Ledger interface {
	Create(ctx context.Context, cmd *commands.Command) error
	GetByID(ctx context.Context, id string) (*commands.Command, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error)
	MarkAcked(ctx context.Context, id string, ackedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id string, reason string) (bool, error)
	ListIncomplete(ctx context.Context, cutoff time.Time) ([]commands.Command, error)
	ListByDevice(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]commands.Command, error)
}

// DispatchRequest describes one command to issue.
type DispatchRequest struct {
	DeviceID  string
	Kind      string
	FanSpeed  int
	Origin    string
	OriginRef string
}

// Dispatcher turns dispatch requests into ledger records and outbound
// messages. Exactly one publish per Dispatch call; every re-publish is
// owned by the RetrySupervisor.
type Dispatcher struct {
	ledger  Ledger
	broker  transport.Broker
	retries *RetrySupervisor
	logger  *log.Logger
	now     func() time.Time
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(ledger Ledger, broker transport.Broker, logger *log.Logger) (*Dispatcher, error) {
	if ledger == nil {
		return nil, errors.New("dispatcher: nil ledger")
	}
	if broker == nil {
		return nil, errors.New("dispatcher: nil broker")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{ledger: ledger, broker: broker, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// AttachRetrySupervisor wires the supervisor that arms a deferred re-check
// after every successful publish. Wired once at startup.
func (d *Dispatcher) AttachRetrySupervisor(s *RetrySupervisor) {
	d.retries = s
}

// Dispatch validates the request, records a pending command and publishes
// it. The tracking id is returned as soon as the ledger record exists;
// sent/acked status is eventually consistent from the caller's view.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	if d == nil {
		return "", errors.New("dispatcher: nil")
	}
	cmd, err := commands.New(req.DeviceID, req.Kind, req.FanSpeed, req.Origin, req.OriginRef, d.now())
	if err != nil {
		return "", err
	}
	if d.retries != nil {
		cmd.MaxAttempts = d.retries.MaxAttempts()
	}
	cmd.CommandID = uuid.NewString()

	if err := d.ledger.Create(ctx, cmd); err != nil {
		return "", err
	}
	metrics.IncCommandIssued()

	d.publish(ctx, cmd)
	return cmd.CommandID, nil
}

// Republish sends an already ledgered command again under the same
// tracking id. Only the RetrySupervisor calls this.
func (d *Dispatcher) Republish(ctx context.Context, cmd *commands.Command) {
	if d == nil || cmd == nil {
		return
	}
	d.publish(ctx, cmd)
}

// publish is the shared publish step: marshal, hand to the transport, then
// markSent on success or markFailed on a transport error. A transport
// error is final for this command; it never left the process.
func (d *Dispatcher) publish(ctx context.Context, cmd *commands.Command) {
	message := transport.CommandMessage{CommandID: cmd.CommandID, Kind: cmd.Kind}
	if cmd.Kind == commands.KindSetFanSpeed {
		speed := cmd.FanSpeed
		message.FanSpeed = &speed
	}
	data, err := json.Marshal(message)
	if err != nil {
		d.fail(ctx, cmd.CommandID, fmt.Sprintf("marshal command: %v", err))
		return
	}

	if err := d.broker.Publish(ctx, transport.CommandSubject(cmd.DeviceID), data); err != nil {
		d.fail(ctx, cmd.CommandID, fmt.Sprintf("transport publish: %v", err))
		return
	}

	applied, err := d.ledger.MarkSent(ctx, cmd.CommandID, d.now())
	if err != nil {
		d.logger.Printf("dispatcher: mark sent %s: %v", cmd.CommandID, err)
		return
	}
	if !applied {
		// An ack beat the publish confirmation; the record is already
		// terminal. Benign.
		d.logger.Printf("dispatcher: mark sent skipped, %s already terminal", cmd.CommandID)
		return
	}
	if d.retries != nil {
		d.retries.Track(cmd.CommandID)
	}
}

func (d *Dispatcher) fail(ctx context.Context, commandID, reason string) {
	applied, err := d.ledger.MarkFailed(ctx, commandID, reason)
	if err != nil {
		d.logger.Printf("dispatcher: mark failed %s: %v", commandID, err)
		return
	}
	if applied {
		metrics.IncCommandResult(commands.StatusFailed)
		d.logger.Printf("dispatcher: command %s failed: %s", commandID, reason)
	}
}

// GetCommand returns one ledger record.
func (d *Dispatcher) GetCommand(ctx context.Context, id string) (*commands.Command, error) {
	return d.ledger.GetByID(ctx, id)
}

// ListCommands returns command history for a device.
func (d *Dispatcher) ListCommands(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]commands.Command, error) {
	if deviceID == "" {
		return nil, commands.NewValidationError("device id required")
	}
	return d.ledger.ListByDevice(ctx, deviceID, from, to, limit)
}
