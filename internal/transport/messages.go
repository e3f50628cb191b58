package transport

// CommandMessage is the controller-to-device wire format. The command id is
// embedded so the device can echo it back in its acknowledgment.
type CommandMessage struct {
	CommandID string `json:"commandId"`
	Kind      string `json:"kind"`
	FanSpeed  *int   `json:"fanSpeed,omitempty"`
}

const (
	AckSuccess = "success"
	AckFailed  = "failed"
)

// AckMessage is the device-to-controller response to one command id.
type AckMessage struct {
	CommandID string `json:"commandId"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// TelemetryMessage is the periodic device-reported state snapshot.
type TelemetryMessage struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	PM1         *float64 `json:"pm1"`
	PM25        *float64 `json:"pm25"`
	PM10        *float64 `json:"pm10"`
	VOC         *float64 `json:"voc"`
	SoundLevel  *float64 `json:"soundLevel"`
	WifiRSSI    *float64 `json:"wifiRssi"`
	FanSpeed    *int     `json:"fanSpeed"`
	PowerState  string   `json:"powerState"`
	WifiSSID    string   `json:"wifiSsid,omitempty"`
	Firmware    string   `json:"firmwareVersion,omitempty"`
}
