package sensor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// readingPayload is the JSON body published on a sensor reading topic.
type readingPayload struct {
	Value *float64 `json:"value"`
}

// DecodeReading parses a reading payload.
// Both {"value": 412.5} and a bare number are accepted.
func DecodeReading(payload []byte) (float64, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrInvalidReading)
	}

	var value float64
	if payload[0] == '{' {
		var p readingPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidReading, err)
		}
		if p.Value == nil {
			return 0, fmt.Errorf("%w: missing value", ErrInvalidReading)
		}
		value = *p.Value
	} else if err := json.Unmarshal(payload, &value); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}

	if err := validateReading(value); err != nil {
		return 0, err
	}
	return value, nil
}

func validateReading(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: not a finite number", ErrInvalidReading)
	}
	return nil
}
