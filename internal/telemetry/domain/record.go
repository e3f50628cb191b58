package telemetry

import "time"

// Record is one device-reported sensor snapshot, kept append-only for
// history queries.
type Record struct {
	DeviceID    string
	Temperature float64
	Humidity    float64
	PM1         float64
	PM25        float64
	PM10        float64
	VOC         float64
	SoundLevel  float64
	WifiRSSI    float64
	FanSpeed    int
	PowerState  string
	Timestamp   time.Time
}
