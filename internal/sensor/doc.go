// Package sensor provides the sensor registry and inventory.
//
// A Sensor reports a single numeric reading (light level, temperature,
// power draw). Each sensor carries the set of device IDs linked to it;
// that set only ever holds IDs, and the automation engine resolves each
// one through the device registry when a reading arrives.
//
// Readings arrive over MQTT or the REST API. DecodeReading accepts either
// a bare JSON number or an object of the form {"value": 412.5}.
package sensor
