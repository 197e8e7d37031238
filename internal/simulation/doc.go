// Package simulation drives registered sensors with random-walk readings.
//
// It stands in for real hardware on development and demo sites: every tick
// each sensor's reading moves by a bounded random step and the new value
// is fed to the automation engine exactly as an MQTT reading would be.
package simulation
