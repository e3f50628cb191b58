package devices

import (
	"errors"
	"time"
)

const (
	PowerOn  = "ON"
	PowerOff = "OFF"
)

// ErrNotFound indicates an unknown device id.
var ErrNotFound = errors.New("device: not found")

// Snapshot is the last-known device state. It is a cache fed by telemetry
// and successful acknowledgments, never the source of truth for whether a
// command should be retried.
type Snapshot struct {
	DeviceID        string
	PowerState      string
	FanSpeed        int
	Online          bool
	LastSeen        time.Time
	WifiSSID        string
	FirmwareVersion string
}
