package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the automation service.
//
// Sensor readings arrive on graylogic/sensor/{sensor_id}/reading. Device
// commands produced by automation leave on graylogic/command/automation/{device_id}
// and the resulting device state is retained on graylogic/state/{device_id}.
const (
	// TopicPrefix is the root of every Gray Logic topic.
	TopicPrefix = "graylogic"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"

	// CommandSource is the protocol segment used for automation-issued commands.
	CommandSource = "automation"
)

// Topics provides builders for automation MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.SensorReading("lux-hall") // graylogic/sensor/lux-hall/reading
type Topics struct{}

// SensorReading returns the topic a sensor publishes its readings to.
func (Topics) SensorReading(sensorID string) string {
	return fmt.Sprintf("%s/sensor/%s/reading", TopicPrefix, sensorID)
}

// DeviceCommand returns the topic automation commands are published on.
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, CommandSource, deviceID)
}

// DeviceState returns the retained state topic for a device.
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// LinkEvent returns the topic link changes are announced on.
//
// Example: graylogic/automation/link/light-hall
func (Topics) LinkEvent(deviceID string) string {
	return fmt.Sprintf("%s/automation/link/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the system status topic (online/offline, LWT).
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllSensorReadings returns a pattern matching every sensor reading.
//
// Pattern: graylogic/sensor/+/reading
func (Topics) AllSensorReadings() string {
	return fmt.Sprintf("%s/sensor/+/reading", TopicPrefix)
}

// AllDeviceCommands returns a pattern matching every automation command.
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, CommandSource)
}

// SensorIDFromTopic extracts the sensor id from a reading topic.
// It returns false when the topic is not a sensor reading topic.
func SensorIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "sensor" || parts[3] != "reading" {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
