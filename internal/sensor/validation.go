package sensor

import (
	"fmt"

	"github.com/nerrad567/gray-logic-automation/internal/device"
)

var validTypes map[Type]struct{}

func init() {
	validTypes = make(map[Type]struct{}, len(AllTypes()))
	for _, t := range AllTypes() {
		validTypes[t] = struct{}{}
	}
}

// ValidateSensor checks a sensor submitted to the inventory.
// IDs and names follow the same rules as devices so both can appear in
// MQTT topics and URLs.
func ValidateSensor(s *Sensor) error {
	if s == nil {
		return ErrInvalidSensor
	}
	if err := device.ValidateID(s.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSensor, err)
	}
	if err := device.ValidateName(s.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSensor, err)
	}
	if err := validateReading(s.Reading); err != nil {
		return err
	}
	return ValidateType(s.Type)
}

// ValidateType checks that a sensor type is one of the known types.
func ValidateType(t Type) error {
	if t == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidSensorType)
	}
	if _, ok := validTypes[t]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidSensorType, t)
	}
	return nil
}
