package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	commandsapp "purifier-cloud/internal/commands/application"
	commands "purifier-cloud/internal/commands/domain"
	devices "purifier-cloud/internal/devices/domain"
	"purifier-cloud/internal/observability/metrics"
	"purifier-cloud/internal/scheduling"
)

// SnapshotReader reads last-known device state for capture. Best effort:
// an unknown device is not a failure.
type SnapshotReader interface {
	Get(ctx context.Context, deviceID string) (*devices.Snapshot, error)
}

// CommandDispatcher issues tracked device commands.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, req commandsapp.DispatchRequest) (string, error)
}

// CapturedState is the device setting an override restores to.
type CapturedState struct {
	PowerState string `json:"powerState"`
	FanSpeed   int    `json:"fanSpeed"`
}

// Result is returned to the caller that triggered an override.
type Result struct {
	CommandID     string        `json:"commandId"`
	PreviousState CapturedState `json:"previousState"`
	RestoreAt     time.Time     `json:"restoreAt"`
}

// session is the in-memory record of one active override. Sessions do
// not survive a restart; a lost restoration leaves the device in the
// override setting, which the next schedule fire or manual command
// corrects.
type session struct {
	sessionID string
	deviceID  string
	captured  CapturedState
	restoreAt time.Time
}

// Controller owns at most one override session per device. A new
// trigger for a device with an active session supersedes it: the old
// restoration timer is cancelled and the originally captured state is
// carried over, since the device's real prior state has not changed.
type Controller struct {
	snapshots  SnapshotReader
	dispatcher CommandDispatcher
	timers     *scheduling.TimerService
	logger     *log.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewController constructs an override controller.
func NewController(snapshots SnapshotReader, dispatcher CommandDispatcher, timers *scheduling.TimerService, logger *log.Logger) (*Controller, error) {
	if snapshots == nil {
		return nil, errors.New("override controller: nil snapshot reader")
	}
	if dispatcher == nil {
		return nil, errors.New("override controller: nil dispatcher")
	}
	if timers == nil {
		return nil, errors.New("override controller: nil timer service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		snapshots:  snapshots,
		dispatcher: dispatcher,
		timers:     timers,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		sessions:   make(map[string]*session),
	}, nil
}

// Trigger captures the device's current setting, issues the override
// command and arms the restoration timer. Validation failures reject
// the request before anything is captured or published.
func (c *Controller) Trigger(ctx context.Context, deviceID string, fanSpeed, durationSeconds int) (*Result, error) {
	if deviceID == "" {
		return nil, commands.NewValidationError("device id is required")
	}
	if fanSpeed < 0 || fanSpeed > 100 {
		return nil, commands.NewValidationError("fan speed must be between 0 and 100")
	}
	if durationSeconds < 0 {
		return nil, commands.NewValidationError("duration must not be negative")
	}

	captured := c.capture(ctx, deviceID)

	c.mu.Lock()
	if prev, ok := c.sessions[deviceID]; ok {
		// Last trigger wins. Keep the state captured before the first
		// override: the device's real prior setting has not changed.
		c.timers.Cancel(restoreKey(deviceID))
		captured = prev.captured
		c.logger.Printf("override: superseding session %s for %s", prev.sessionID, deviceID)
	}
	sess := &session{
		sessionID: uuid.NewString(),
		deviceID:  deviceID,
		captured:  captured,
		restoreAt: c.now().Add(time.Duration(durationSeconds) * time.Second),
	}
	c.sessions[deviceID] = sess
	metrics.SetOverrideSessions(len(c.sessions))
	c.mu.Unlock()

	commandID, err := c.dispatcher.Dispatch(ctx, commandsapp.DispatchRequest{
		DeviceID:  deviceID,
		Kind:      commands.KindSetFanSpeed,
		FanSpeed:  fanSpeed,
		Origin:    commands.OriginOverride,
		OriginRef: sess.sessionID,
	})
	if err != nil {
		c.discard(deviceID, sess.sessionID)
		return nil, err
	}

	c.timers.Arm(restoreKey(deviceID), time.Until(sess.restoreAt), func() {
		c.restore(deviceID, sess.sessionID)
	})
	c.logger.Printf("override: session %s on %s, restore at %s", sess.sessionID, deviceID, sess.restoreAt.Format(time.RFC3339))

	return &Result{
		CommandID:     commandID,
		PreviousState: sess.captured,
		RestoreAt:     sess.restoreAt,
	}, nil
}

// capture reads the snapshot; an unknown device falls back to off/0.
func (c *Controller) capture(ctx context.Context, deviceID string) CapturedState {
	snap, err := c.snapshots.Get(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, devices.ErrNotFound) {
			c.logger.Printf("override: snapshot read for %s: %v", deviceID, err)
		}
		return CapturedState{PowerState: devices.PowerOff, FanSpeed: 0}
	}
	return CapturedState{PowerState: snap.PowerState, FanSpeed: snap.FanSpeed}
}

// restore reverts the device to its captured setting and drops the
// session. A stray fire from a superseded session id is a no-op.
func (c *Controller) restore(deviceID, sessionID string) {
	c.mu.Lock()
	sess, ok := c.sessions[deviceID]
	if !ok || sess.sessionID != sessionID {
		c.mu.Unlock()
		return
	}
	delete(c.sessions, deviceID)
	metrics.SetOverrideSessions(len(c.sessions))
	c.mu.Unlock()

	req := commandsapp.DispatchRequest{
		DeviceID:  deviceID,
		Origin:    commands.OriginOverride,
		OriginRef: sess.sessionID,
	}
	if sess.captured.PowerState == devices.PowerOff {
		req.Kind = commands.KindPowerOff
	} else {
		req.Kind = commands.KindSetFanSpeed
		req.FanSpeed = sess.captured.FanSpeed
	}
	commandID, err := c.dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		c.logger.Printf("override: restore for %s: %v", deviceID, err)
		return
	}
	c.logger.Printf("override: restored %s via %s (%s)", deviceID, commandID, req.Kind)
}

// discard removes a session without restoring, used when the override
// command itself could not be issued.
func (c *Controller) discard(deviceID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess, ok := c.sessions[deviceID]; ok && sess.sessionID == sessionID {
		c.timers.Cancel(restoreKey(deviceID))
		delete(c.sessions, deviceID)
		metrics.SetOverrideSessions(len(c.sessions))
	}
}

// ActiveSessions reports the number of devices with an override pending
// restoration.
func (c *Controller) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func restoreKey(deviceID string) string {
	return "override." + deviceID
}
