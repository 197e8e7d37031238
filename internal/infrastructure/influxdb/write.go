package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the automation service.
const (
	measurementSensorReading = "sensor_reading"
	measurementTransition    = "automation_transition"
)

// WriteSensorReading records a sensor reading. Non-blocking; points are
// batched and flushed asynchronously.
//
//	client.WriteSensorReading("lux-hall", "light", 212.5)
func (c *Client) WriteSensorReading(sensorID, sensorType string, value float64) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sensorReadingPoint(sensorID, sensorType, value, time.Now()))
}

// WriteTransition records a device on/off transition together with the
// reading that caused it and what issued it (automation, manual).
func (c *Client) WriteTransition(deviceID, sensorID string, on bool, reading float64, source string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(transitionPoint(deviceID, sensorID, on, reading, source, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func sensorReadingPoint(sensorID, sensorType string, value float64, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementSensorReading,
		map[string]string{
			"sensor_id":   sensorID,
			"sensor_type": sensorType,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)
}

func transitionPoint(deviceID, sensorID string, on bool, reading float64, source string, ts time.Time) *write.Point {
	tags := map[string]string{
		"device_id": deviceID,
		"source":    source,
	}
	if sensorID != "" {
		tags["sensor_id"] = sensorID
	}

	state := 0
	if on {
		state = 1
	}

	return write.NewPoint(
		measurementTransition,
		tags,
		map[string]interface{}{
			"on":      state,
			"reading": reading,
		},
		ts,
	)
}
