package automation

import (
	"context"
	"fmt"
	"sort"

	"github.com/nerrad567/gray-logic-automation/internal/device"
)

// RestoreLinks rebuilds in-memory link state from the link store. It is
// called once at startup, after the registries are loaded from inventory.
//
// For each row:
//   - an unknown sensor means the row is skipped and left in the store
//   - an unknown device is replaced by a placeholder so the link survives
//   - otherwise the device fields and the sensor's device set are set from the row
//
// Afterwards any device that is linked in memory without a row is
// disabled, and sensor sets are pruned to exactly the restored links.
// Running it twice over the same rows gives the same state.
//
// Only a failure to read the store is returned; per-row problems are
// logged and counted in the report.
func (m *Manager) RestoreLinks(ctx context.Context) (RestoreReport, error) {
	var rows []AutomationLink
	err := withRetry(ctx, m.retries, func() error {
		var loadErr error
		rows, loadErr = m.store.LoadAll(ctx)
		return loadErr
	})
	if err != nil {
		return RestoreReport{}, fmt.Errorf("%w: loading links: %w", ErrPersistence, err)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].DeviceID < rows[j].DeviceID })

	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()

	report := RestoreReport{
		Rows:         len(rows),
		Restored:     []string{},
		Skipped:      []string{},
		Placeholders: []string{},
		Repaired:     []string{},
	}
	restored := make(map[string]string, len(rows))

	for _, row := range rows {
		if m.restoreRow(row, &report) {
			restored[row.DeviceID] = row.SensorID
		}
	}

	m.repairDevices(restored, &report)
	m.pruneSensorSets(restored, &report)

	m.logger.Info("automation links restored",
		"rows", report.Rows,
		"restored", len(report.Restored),
		"skipped", len(report.Skipped),
		"placeholders", len(report.Placeholders),
		"repaired", len(report.Repaired),
		"pruned", report.Pruned,
	)
	return report, nil
}

// restoreRow applies one row and reports whether the link is now live.
func (m *Manager) restoreRow(row AutomationLink, report *RestoreReport) bool {
	devices, sensors := m.engine.devices, m.engine.sensors

	if row.DeviceID == "" || row.SensorID == "" {
		m.logger.Warn("link row without ids, skipping", "device_id", row.DeviceID, "sensor_id", row.SensorID)
		report.Skipped = append(report.Skipped, row.DeviceID)
		return false
	}
	if !sensors.Has(row.SensorID) {
		m.logger.Warn("link row names an unknown sensor, skipping",
			"device_id", row.DeviceID, "sensor_id", row.SensorID)
		report.Skipped = append(report.Skipped, row.DeviceID)
		return false
	}
	if err := row.Thresholds().Validate(); err != nil {
		m.logger.Warn("link row has invalid thresholds, restoring anyway",
			"device_id", row.DeviceID, "error", err)
	}

	if !devices.Has(row.DeviceID) {
		if err := devices.Put(placeholderFor(row)); err != nil {
			m.logger.Error("creating placeholder device", "device_id", row.DeviceID, "error", err)
			report.Skipped = append(report.Skipped, row.DeviceID)
			return false
		}
		m.logger.Warn("link row names an unknown device, created placeholder",
			"device_id", row.DeviceID, "sensor_id", row.SensorID,
			"error", fmt.Errorf("%w: device %s missing from inventory", ErrConsistency, row.DeviceID))
		report.Placeholders = append(report.Placeholders, row.DeviceID)
	}

	err := devices.Update(row.DeviceID, func(d *device.Device) error {
		d.AutomationSensorID = row.SensorID
		d.AutomationEnabled = row.Enabled
		applyThresholds(d, row.Thresholds())
		return nil
	})
	if err != nil {
		m.logger.Error("restoring device link", "device_id", row.DeviceID, "error", err)
		report.Skipped = append(report.Skipped, row.DeviceID)
		return false
	}

	if err := sensors.LinkDevice(row.SensorID, row.DeviceID); err != nil {
		m.logger.Error("restoring sensor link", "sensor_id", row.SensorID, "error", err)
	}
	report.Restored = append(report.Restored, row.DeviceID)
	return true
}

// repairDevices disables devices linked in memory that have no live row.
func (m *Manager) repairDevices(restored map[string]string, report *RestoreReport) {
	for _, d := range m.engine.devices.Values() {
		if !d.Linked() && !d.AutomationEnabled {
			continue
		}
		if sensorID, ok := restored[d.ID]; ok && sensorID == d.AutomationSensorID {
			continue
		}

		m.logger.Warn("disabling automation without a durable link",
			"device_id", d.ID,
			"sensor_id", d.AutomationSensorID,
			"error", fmt.Errorf("%w: device %s has no link row", ErrConsistency, d.ID))

		err := m.engine.devices.Update(d.ID, func(dd *device.Device) error {
			dd.ClearLink()
			return nil
		})
		if err != nil {
			m.logger.Error("repairing device", "device_id", d.ID, "error", err)
			continue
		}
		report.Repaired = append(report.Repaired, d.ID)
	}
}

// pruneSensorSets drops device IDs whose restored link points elsewhere.
func (m *Manager) pruneSensorSets(restored map[string]string, report *RestoreReport) {
	for _, s := range m.engine.sensors.Values() {
		for _, deviceID := range s.DeviceIDs {
			if restored[deviceID] == s.ID {
				continue
			}
			if err := m.engine.sensors.UnlinkDevice(s.ID, deviceID); err != nil {
				m.logger.Error("pruning sensor link", "sensor_id", s.ID, "device_id", deviceID, "error", err)
				continue
			}
			m.logger.Debug("pruned stale sensor link", "sensor_id", s.ID, "device_id", deviceID)
			report.Pruned++
		}
	}
}

// placeholderFor synthesises a stand-in device for a row whose device is
// no longer in the inventory.
func placeholderFor(row AutomationLink) *device.Device {
	typ := row.DeviceType
	if device.ValidateType(typ) != nil {
		typ = device.TypeUnknown
	}
	return &device.Device{
		ID:          row.DeviceID,
		Name:        row.DeviceID,
		Type:        typ,
		Placeholder: true,
	}
}
