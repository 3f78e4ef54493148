package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the AquaSense MQTT namespace.
//
// Sensor nodes that cannot hold a WebSocket open publish their readings to
// the telemetry topics instead; the ingest bridge picks them up and feeds
// the persistence pipeline.
const (
	// TopicPrefix is the base for all AquaSense topics.
	TopicPrefix = "aquasense"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "aquasense/system"
)

// Topics provides builders for AquaSense MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	t := topics.DeviceTelemetry("pond-unit-3")
//	// Returns: "aquasense/telemetry/pond-unit-3"
type Topics struct{}

// DeviceTelemetry returns the topic a sensor node publishes readings to.
//
// Example: aquasense/telemetry/pond-unit-3
func (Topics) DeviceTelemetry(deviceID string) string {
	return fmt.Sprintf("%s/telemetry/%s", TopicPrefix, deviceID)
}

// DeviceStatus returns the topic for a node's online/offline status.
// Nodes set this as their Last Will so silent departures are visible.
//
// Example: aquasense/device/pond-unit-3/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefix, deviceID)
}

// SystemStatus returns the core's own status topic (LWT).
//
// Example: aquasense/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceTelemetry returns a pattern matching every node's telemetry.
//
// Pattern: aquasense/telemetry/+
func (Topics) AllDeviceTelemetry() string {
	return fmt.Sprintf("%s/telemetry/+", TopicPrefix)
}

// AllDeviceStatus returns a pattern matching every node's status.
//
// Pattern: aquasense/device/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/device/+/status", TopicPrefix)
}

// DeviceIDFromTelemetry extracts the device ID from a telemetry topic.
//
// Returns an error for topics outside the telemetry namespace.
func (Topics) DeviceIDFromTelemetry(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[1] != "telemetry" || parts[2] == "" {
		return "", fmt.Errorf("%w: %q is not a telemetry topic", ErrInvalidTopic, topic)
	}
	return parts[2], nil
}
