package automation

import (
	"time"

	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
)

// AutomationLink is the durable record of one device driven by one sensor.
// There is at most one row per device ID.
type AutomationLink struct {
	DeviceID   string      `json:"device_id"`
	SensorID   string      `json:"sensor_id"`
	DeviceType device.Type `json:"device_type"`
	SensorType sensor.Type `json:"sensor_type"`

	AutoOn           float64 `json:"auto_on"`
	AutoOff          float64 `json:"auto_off"`
	OffThresholdUsed bool    `json:"off_threshold_used"`

	// Enabled is false while automation is paused. The row is kept so the
	// link can be resumed without re-linking.
	Enabled bool `json:"enabled"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Thresholds returns the trip points carried by the row.
func (l AutomationLink) Thresholds() Thresholds {
	return Thresholds{On: l.AutoOn, Off: l.AutoOff, OffUsed: l.OffThresholdUsed}
}

// Thresholds are the trip points that drive a linked device.
//
// A device turns on when the reading drops below On. It turns off when the
// reading reaches Off if OffUsed is set, otherwise when it reaches On again.
// Off above On gives a dead band; OffUsed=false is the zero-width case.
type Thresholds struct {
	On      float64 `json:"on"`
	Off     float64 `json:"off"`
	OffUsed bool    `json:"off_used"`
}

// Mirrored returns thresholds with the same value for both trip points.
func Mirrored(v float64) Thresholds {
	return Thresholds{On: v, Off: v}
}

// OffAt returns the reading at or above which a device turns off.
func (t Thresholds) OffAt() float64 {
	if t.OffUsed {
		return t.Off
	}
	return t.On
}

func thresholdsOf(d *device.Device) Thresholds {
	return Thresholds{On: d.AutoOnThreshold, Off: d.AutoOffThreshold, OffUsed: d.OffThresholdUsed}
}

func applyThresholds(d *device.Device, t Thresholds) {
	d.AutoOnThreshold = t.On
	d.AutoOffThreshold = t.Off
	d.OffThresholdUsed = t.OffUsed
}

// Transition is one applied on/off change of a device.
type Transition struct {
	DeviceID string    `json:"device_id"`
	SensorID string    `json:"sensor_id,omitempty"`
	On       bool      `json:"on"`
	Reading  float64   `json:"reading"`
	Source   string    `json:"source"`
	At       time.Time `json:"at"`
}

// LinkResult describes the outcome of a successful Link call.
type LinkResult struct {
	DeviceID string `json:"device_id"`
	SensorID string `json:"sensor_id"`

	// Changed is false when the device was already linked to the sensor
	// with the same thresholds and nothing was written.
	Changed bool `json:"changed"`

	// PreviousSensorID is set when the link replaced an older one.
	PreviousSensorID string `json:"previous_sensor_id,omitempty"`

	// Transitions holds what the immediate evaluation applied.
	Transitions []Transition `json:"transitions"`
}

// LinkState is a snapshot of one device's in-memory link.
type LinkState struct {
	DeviceID   string      `json:"device_id"`
	DeviceName string      `json:"device_name"`
	SensorID   string      `json:"sensor_id"`
	Enabled    bool        `json:"enabled"`
	On         bool        `json:"on"`
	Thresholds Thresholds  `json:"thresholds"`
	DeviceType device.Type `json:"device_type"`
}

// RestoreReport summarises one RestoreLinks pass.
type RestoreReport struct {
	// Rows is the number of rows read from the link store.
	Rows int `json:"rows"`

	// Restored lists device IDs whose links were reconnected.
	Restored []string `json:"restored"`

	// Skipped lists device IDs whose rows name an unknown sensor.
	Skipped []string `json:"skipped"`

	// Placeholders lists device IDs synthesised for rows naming an unknown device.
	Placeholders []string `json:"placeholders"`

	// Repaired lists devices that were enabled without a durable row and
	// have been disabled.
	Repaired []string `json:"repaired"`

	// Pruned counts stale device IDs removed from sensor sets.
	Pruned int `json:"pruned"`
}
