package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"purifier-cloud/internal/commands/application"
	commands "purifier-cloud/internal/commands/domain"
	devices "purifier-cloud/internal/devices/domain"
	"purifier-cloud/internal/observability/metrics"
	"purifier-cloud/internal/transport"
)

// SnapshotProjector applies a confirmed command's intended effect to the
// last-known device state.
type SnapshotProjector interface {
	UpdateSetting(ctx context.Context, deviceID, powerState string, fanSpeed int) error
	UpdatePower(ctx context.Context, deviceID, powerState string) error
}

// AckConsumer correlates inbound acknowledgments with ledger records.
// Everything abnormal on this path is logged and dropped: ingestion must
// keep flowing for all other devices.
type AckConsumer struct {
	ledger    application.Ledger
	snapshots SnapshotProjector
	retries   *application.RetrySupervisor
	logger    *log.Logger
}

// NewAckConsumer constructs a consumer.
func NewAckConsumer(ledger application.Ledger, snapshots SnapshotProjector, retries *application.RetrySupervisor, logger *log.Logger) (*AckConsumer, error) {
	if ledger == nil {
		return nil, errors.New("ack consumer: nil ledger")
	}
	if snapshots == nil {
		return nil, errors.New("ack consumer: nil snapshot projector")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &AckConsumer{ledger: ledger, snapshots: snapshots, retries: retries, logger: logger}, nil
}

// Start subscribes to every device's ack subject.
func (c *AckConsumer) Start(broker transport.Broker) (transport.Subscription, error) {
	return broker.Subscribe(transport.AckWildcard(), c.Handle)
}

// Handle processes one ack message.
func (c *AckConsumer) Handle(ctx context.Context, subject string, data []byte) {
	var ack transport.AckMessage
	if err := json.Unmarshal(data, &ack); err != nil {
		c.logger.Printf("ack consumer: malformed ack on %s: %v", subject, err)
		return
	}
	if ack.CommandID == "" {
		c.logger.Printf("ack consumer: ack without command id on %s", subject)
		return
	}

	cmd, err := c.ledger.GetByID(ctx, ack.CommandID)
	if err != nil {
		if errors.Is(err, commands.ErrNotFound) {
			// Duplicate ack after a timeout-triggered failure, or an ack for
			// a command issued before a restart. Expected, not fatal.
			metrics.IncUnmatchedAck()
			c.logger.Printf("ack consumer: no ledger record for %s", ack.CommandID)
			return
		}
		c.logger.Printf("ack consumer: read %s: %v", ack.CommandID, err)
		return
	}

	if ack.Status == transport.AckSuccess {
		c.ackSuccess(ctx, cmd)
		return
	}

	reason := ack.Message
	if reason == "" {
		reason = "device reported failure"
	}
	applied, err := c.ledger.MarkFailed(ctx, cmd.CommandID, reason)
	if err != nil {
		c.logger.Printf("ack consumer: mark failed %s: %v", cmd.CommandID, err)
		return
	}
	if !applied {
		c.logger.Printf("ack consumer: late failure ack for terminal %s", cmd.CommandID)
		return
	}
	if c.retries != nil {
		c.retries.CancelTracking(cmd.CommandID)
	}
	metrics.IncCommandResult(commands.StatusFailed)
	c.logger.Printf("ack consumer: command %s failed on device: %s", cmd.CommandID, reason)
}

func (c *AckConsumer) ackSuccess(ctx context.Context, cmd *commands.Command) {
	applied, err := c.ledger.MarkAcked(ctx, cmd.CommandID, time.Now().UTC())
	if err != nil {
		c.logger.Printf("ack consumer: mark acked %s: %v", cmd.CommandID, err)
		return
	}
	if !applied {
		// Duplicate or late ack on a terminal record. Acks are idempotent
		// per tracking id.
		c.logger.Printf("ack consumer: duplicate ack for %s", cmd.CommandID)
		return
	}
	if c.retries != nil {
		c.retries.CancelTracking(cmd.CommandID)
	}
	metrics.IncCommandResult(commands.StatusAcked)

	var projectErr error
	switch cmd.Kind {
	case commands.KindSetFanSpeed:
		projectErr = c.snapshots.UpdateSetting(ctx, cmd.DeviceID, devices.PowerOn, cmd.FanSpeed)
	case commands.KindPowerOn:
		projectErr = c.snapshots.UpdatePower(ctx, cmd.DeviceID, devices.PowerOn)
	case commands.KindPowerOff:
		projectErr = c.snapshots.UpdatePower(ctx, cmd.DeviceID, devices.PowerOff)
	}
	if projectErr != nil {
		c.logger.Printf("ack consumer: snapshot update %s: %v", cmd.DeviceID, projectErr)
	}
}
