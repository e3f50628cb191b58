package transport

import "strings"

// Subject layout: devices.{deviceID}.{commands|telemetry|ack}.
const (
	subjectPrefix = "devices"

	SuffixCommands  = "commands"
	SuffixTelemetry = "telemetry"
	SuffixAck       = "ack"
)

// CommandSubject returns the controller-to-device command subject.
func CommandSubject(deviceID string) string {
	return subjectPrefix + "." + deviceID + "." + SuffixCommands
}

// TelemetrySubject returns the device telemetry subject.
func TelemetrySubject(deviceID string) string {
	return subjectPrefix + "." + deviceID + "." + SuffixTelemetry
}

// AckSubject returns the device acknowledgment subject.
func AckSubject(deviceID string) string {
	return subjectPrefix + "." + deviceID + "." + SuffixAck
}

// TelemetryWildcard matches telemetry from every device.
func TelemetryWildcard() string {
	return subjectPrefix + ".*." + SuffixTelemetry
}

// AckWildcard matches acknowledgments from every device.
func AckWildcard() string {
	return subjectPrefix + ".*." + SuffixAck
}

// DeviceIDFromSubject extracts the device id token, or "" if the subject
// does not follow the devices.{id}.{kind} layout.
func DeviceIDFromSubject(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != subjectPrefix {
		return ""
	}
	return parts[1]
}
