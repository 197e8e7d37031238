// Package mqtt provides MQTT connectivity for the automation service.
//
// The service subscribes to sensor readings and publishes the device
// commands and retained device state produced by automation:
//
//	graylogic/sensor/{sensor_id}/reading         inbound readings
//	graylogic/command/automation/{device_id}     outbound commands
//	graylogic/state/{device_id}                  retained device state
//	graylogic/system/status                      online/offline (LWT)
//
// Connections auto-reconnect with backoff and restore subscriptions.
// Handlers are wrapped with panic recovery; handler errors are logged
// when a Logger is set.
package mqtt
