package commands

import "time"

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusAcked   = "acked"
	StatusFailed  = "failed"
)

const (
	KindPowerOn     = "power_on"
	KindPowerOff    = "power_off"
	KindSetFanSpeed = "set_fan_speed"
)

const (
	OriginManual    = "manual"
	OriginScheduled = "scheduled"
	OriginOverride  = "override"
)

// DefaultMaxAttempts bounds publish attempts per command.
const DefaultMaxAttempts = 3

// Command is a ledger record of one issued device command.
type Command struct {
	CommandID   string
	DeviceID    string
	Kind        string
	FanSpeed    int
	Origin      string
	OriginRef   string
	Status      string
	Attempt     int
	MaxAttempts int
	CreatedAt   time.Time
	SentAt      time.Time
	AckedAt     time.Time
	Error       string
}

// New validates the kind/payload combination and returns a pending command.
// FanSpeed is only meaningful for set_fan_speed; the closed kind set and the
// 0-100 range are enforced here so no handler re-checks payload shape.
func New(deviceID, kind string, fanSpeed int, origin, originRef string, now time.Time) (*Command, error) {
	if deviceID == "" {
		return nil, NewValidationError("device id required")
	}
	switch kind {
	case KindPowerOn, KindPowerOff:
		fanSpeed = 0
	case KindSetFanSpeed:
		if fanSpeed < 0 || fanSpeed > 100 {
			return nil, NewValidationError("fan speed must be between 0 and 100")
		}
	default:
		return nil, NewValidationError("unknown command kind: " + kind)
	}
	switch origin {
	case OriginManual, OriginScheduled, OriginOverride:
	default:
		return nil, NewValidationError("unknown command origin: " + origin)
	}
	return &Command{
		DeviceID:    deviceID,
		Kind:        kind,
		FanSpeed:    fanSpeed,
		Origin:      origin,
		OriginRef:   originRef,
		Status:      StatusPending,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now.UTC(),
	}, nil
}

// Terminal reports whether the status admits no further transitions.
func Terminal(status string) bool {
	return status == StatusAcked || status == StatusFailed
}

// Retryable reports whether a command may still be republished.
func (c *Command) Retryable() bool {
	if c == nil || Terminal(c.Status) {
		return false
	}
	return c.Attempt < c.MaxAttempts
}
