// Package influxdb provides InfluxDB connectivity for the automation service.
//
// It records two series:
//   - sensor_reading: every reading that reaches the evaluation engine
//   - automation_transition: every applied device on/off transition
//
// Writes are non-blocking and batched; asynchronous write errors are
// delivered to the callback registered with SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteSensorReading("lux-hall", "light", 212.5)
package influxdb
