package sensor

import "errors"

// Domain errors for the sensor package.
var (
	// ErrSensorNotFound is returned when a sensor ID does not exist.
	ErrSensorNotFound = errors.New("sensor: not found")

	// ErrSensorExists is returned when creating a sensor with an ID that already exists.
	ErrSensorExists = errors.New("sensor: already exists")

	// ErrInvalidSensor is returned when sensor validation fails.
	ErrInvalidSensor = errors.New("sensor: invalid")

	// ErrInvalidSensorType is returned when a sensor type is missing or not recognised.
	ErrInvalidSensorType = errors.New("sensor: invalid type")

	// ErrInvalidReading is returned when a reading payload cannot be decoded.
	ErrInvalidReading = errors.New("sensor: invalid reading")
)
