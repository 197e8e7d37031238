package sensor

import (
	"sort"
	"time"
)

// Sensor is a source of numeric readings that can drive linked devices.
type Sensor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type Type   `json:"type"`

	// Reading is the most recent value reported by the sensor.
	Reading   float64    `json:"reading"`
	ReadingAt *time.Time `json:"reading_at,omitempty"`

	// DeviceIDs holds the IDs of linked devices, sorted and unique.
	// Devices are always resolved through the device registry; the sensor
	// never holds device values.
	DeviceIDs []string `json:"device_ids"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of the Sensor.
func (s *Sensor) DeepCopy() *Sensor {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.DeviceIDs != nil {
		cpy.DeviceIDs = make([]string, len(s.DeviceIDs))
		copy(cpy.DeviceIDs, s.DeviceIDs)
	}
	if s.ReadingAt != nil {
		t := *s.ReadingAt
		cpy.ReadingAt = &t
	}
	return &cpy
}

// HasDevice reports whether deviceID is in the linked set.
func (s *Sensor) HasDevice(deviceID string) bool {
	i := sort.SearchStrings(s.DeviceIDs, deviceID)
	return i < len(s.DeviceIDs) && s.DeviceIDs[i] == deviceID
}

// AddDevice inserts deviceID into the linked set.
// It returns false if the ID was already present.
func (s *Sensor) AddDevice(deviceID string) bool {
	i := sort.SearchStrings(s.DeviceIDs, deviceID)
	if i < len(s.DeviceIDs) && s.DeviceIDs[i] == deviceID {
		return false
	}
	s.DeviceIDs = append(s.DeviceIDs, "")
	copy(s.DeviceIDs[i+1:], s.DeviceIDs[i:])
	s.DeviceIDs[i] = deviceID
	return true
}

// RemoveDevice deletes deviceID from the linked set.
// It returns false if the ID was not present.
func (s *Sensor) RemoveDevice(deviceID string) bool {
	i := sort.SearchStrings(s.DeviceIDs, deviceID)
	if i >= len(s.DeviceIDs) || s.DeviceIDs[i] != deviceID {
		return false
	}
	s.DeviceIDs = append(s.DeviceIDs[:i], s.DeviceIDs[i+1:]...)
	return true
}

// normaliseDeviceIDs sorts the linked set and drops duplicates and empty IDs.
func (s *Sensor) normaliseDeviceIDs() {
	if len(s.DeviceIDs) == 0 {
		s.DeviceIDs = []string{}
		return
	}
	sort.Strings(s.DeviceIDs)
	out := s.DeviceIDs[:0]
	for i, id := range s.DeviceIDs {
		if id == "" || (i > 0 && id == s.DeviceIDs[i-1]) {
			continue
		}
		out = append(out, id)
	}
	s.DeviceIDs = out
}

// Type classifies what a sensor measures.
type Type string

// Sensor types.
const (
	TypeLight       Type = "light"
	TypeTemperature Type = "temperature"
	TypeHumidity    Type = "humidity"
	TypeMotion      Type = "motion"
	TypePower       Type = "power"
)

// AllTypes returns every known sensor type.
func AllTypes() []Type {
	return []Type{TypeLight, TypeTemperature, TypeHumidity, TypeMotion, TypePower}
}

// ParseType converts a string to a sensor Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if err := ValidateType(t); err != nil {
		return "", err
	}
	return t, nil
}
