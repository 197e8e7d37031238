package automation

import (
	"fmt"
	"math"

	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
)

// Validate checks that the thresholds are finite and that an explicit off
// threshold does not sit below the on threshold, which would toggle the
// device on every reading between the two.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.On, t.Off} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: threshold must be a finite number", ErrValidation)
		}
	}
	if t.OffUsed && t.Off < t.On {
		return fmt.Errorf("%w: off threshold %g is below on threshold %g", ErrValidation, t.Off, t.On)
	}
	return nil
}

// validateLink checks a row before it is written to the link store.
func validateLink(l AutomationLink) error {
	if l.DeviceID == "" || l.SensorID == "" {
		return fmt.Errorf("%w: device and sensor ids are required", ErrValidation)
	}
	if l.DeviceType != device.TypeUnknown {
		if err := device.ValidateType(l.DeviceType); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	if err := sensor.ValidateType(l.SensorType); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return l.Thresholds().Validate()
}
