package device

import "time"

// Device is a controllable entity that can be driven by a linked sensor.
// This matches the devices table in migrations/20260301_100000_inventory.up.sql,
// except for the automation fields, which are rebuilt from the link store
// on startup rather than read from the inventory.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Type Type   `json:"type"`

	// Current power state
	On bool `json:"on"`

	// Automation link. AutomationSensorID is empty when the device is unlinked.
	AutomationEnabled  bool    `json:"automation_enabled"`
	AutomationSensorID string  `json:"automation_sensor_id,omitempty"`
	AutoOnThreshold    float64 `json:"auto_on_threshold"`
	AutoOffThreshold   float64 `json:"auto_off_threshold"`
	OffThresholdUsed   bool    `json:"off_threshold_used"`

	// Placeholder is set for devices synthesized during link restore because
	// the inventory no longer knows about them.
	Placeholder bool `json:"placeholder,omitempty"`

	// Timestamps
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

// DeepCopy returns an independent copy of the Device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.RemovedAt != nil {
		t := *d.RemovedAt
		cpy.RemovedAt = &t
	}
	return &cpy
}

// Linked reports whether the device currently points at a sensor.
func (d *Device) Linked() bool {
	return d.AutomationSensorID != ""
}

// ClearLink resets every automation field to the unlinked state.
// Thresholds are kept so a later link can reuse them.
func (d *Device) ClearLink() {
	d.AutomationEnabled = false
	d.AutomationSensorID = ""
}

// Type classifies what kind of appliance a device is.
type Type string

// Device types.
const (
	TypeLight      Type = "light"
	TypeThermostat Type = "thermostat"
	TypeAppliance  Type = "appliance"

	// TypeUnknown is only used for placeholder devices.
	TypeUnknown Type = "unknown"
)

// AllTypes returns the device types accepted for new devices.
func AllTypes() []Type {
	return []Type{TypeLight, TypeThermostat, TypeAppliance}
}

// ParseType converts a string to a device Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if err := ValidateType(t); err != nil {
		return "", err
	}
	return t, nil
}
