package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
)

// Manager creates, replaces and removes automation links, keeping the
// device registry, the sensor registry and the link store consistent.
//
// Every mutation runs under the engine's lock, including the link store
// write, so that a failed write can be rolled back before any reading is
// evaluated against the half-applied state.
type Manager struct {
	engine  *Engine
	store   LinkStore
	retries int
	logger  Logger
}

// NewManager creates a link manager.
//
// Parameters:
//   - engine: Evaluation engine whose registries and lock are shared
//   - store: Durable link table
//   - retries: Extra link store attempts before a write is reported as failed
//   - logger: Logger instance (nil for none)
func NewManager(engine *Engine, store LinkStore, retries int, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	if retries < 0 {
		retries = 0
	}
	return &Manager{engine: engine, store: store, retries: retries, logger: logger}
}

// Link connects a device to a sensor using the device's current thresholds.
func (m *Manager) Link(ctx context.Context, deviceID, sensorID string) (LinkResult, error) {
	return m.link(ctx, deviceID, sensorID, nil)
}

// LinkWithThresholds connects a device to a sensor and sets its thresholds
// in the same step.
func (m *Manager) LinkWithThresholds(ctx context.Context, deviceID, sensorID string, th Thresholds) (LinkResult, error) {
	return m.link(ctx, deviceID, sensorID, &th)
}

func (m *Manager) link(ctx context.Context, deviceID, sensorID string, th *Thresholds) (LinkResult, error) { //nolint:gocognit,gocyclo // ordered link steps with rollback
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()

	devices, sensors := m.engine.devices, m.engine.sensors

	dev, err := devices.Get(deviceID)
	if err != nil {
		return LinkResult{}, wrapNotFound(err)
	}
	sen, err := sensors.Get(sensorID)
	if err != nil {
		return LinkResult{}, wrapNotFound(err)
	}

	target := thresholdsOf(dev)
	if th != nil {
		target = *th
	}
	row := AutomationLink{
		DeviceID:         deviceID,
		SensorID:         sensorID,
		DeviceType:       dev.Type,
		SensorType:       sen.Type,
		AutoOn:           target.On,
		AutoOff:          target.Off,
		OffThresholdUsed: target.OffUsed,
		Enabled:          true,
		UpdatedAt:        m.engine.now().UTC(),
	}
	if err := validateLink(row); err != nil {
		return LinkResult{}, err
	}

	result := LinkResult{DeviceID: deviceID, SensorID: sensorID}
	if dev.AutomationSensorID == sensorID && dev.AutomationEnabled &&
		thresholdsOf(dev) == target && sen.HasDevice(deviceID) {
		return result, nil
	}

	prevSensor := dev.AutomationSensorID
	if prevSensor != sensorID {
		result.PreviousSensorID = prevSensor
	}
	hadDevice := sen.HasDevice(deviceID)

	// (a) leave the previous sensor
	if prevSensor != "" && prevSensor != sensorID {
		if err := sensors.UnlinkDevice(prevSensor, deviceID); err != nil {
			m.logger.Warn("previous sensor unavailable while relinking",
				"device_id", deviceID, "sensor_id", prevSensor, "error", err)
		}
	}

	// (b) join the new sensor
	if err := sensors.LinkDevice(sensorID, deviceID); err != nil {
		m.restoreSensorSets(deviceID, sensorID, prevSensor, hadDevice)
		return LinkResult{}, wrapNotFound(err)
	}

	// (c) point the device at it
	err = devices.Update(deviceID, func(d *device.Device) error {
		d.AutomationSensorID = sensorID
		d.AutomationEnabled = true
		applyThresholds(d, target)
		return nil
	})
	if err != nil {
		m.restoreSensorSets(deviceID, sensorID, prevSensor, hadDevice)
		return LinkResult{}, wrapNotFound(err)
	}

	// (d) persist
	if err := m.upsert(ctx, row); err != nil {
		m.restoreDevice(dev)
		m.restoreSensorSets(deviceID, sensorID, prevSensor, hadDevice)
		m.logger.Error("link rolled back", "device_id", deviceID, "sensor_id", sensorID, "error", err)
		return LinkResult{}, err
	}

	m.logger.Info("device linked",
		"device_id", deviceID,
		"sensor_id", sensorID,
		"previous_sensor_id", prevSensor,
		"auto_on", target.On,
		"auto_off", target.OffAt(),
	)
	m.engine.emitLink(deviceID, &row)

	// (e) evaluate against the current reading
	result.Changed = true
	result.Transitions = m.engine.reevaluateLocked(ctx, sensorID)
	return result, nil
}

// restoreSensorSets undoes steps (a) and (b) of a failed link.
func (m *Manager) restoreSensorSets(deviceID, sensorID, prevSensor string, hadDevice bool) {
	sensors := m.engine.sensors
	if !hadDevice {
		_ = sensors.UnlinkDevice(sensorID, deviceID) //nolint:errcheck // sensor may be gone; nothing left to undo
	}
	if prevSensor != "" && prevSensor != sensorID {
		_ = sensors.LinkDevice(prevSensor, deviceID) //nolint:errcheck // sensor may be gone; nothing left to undo
	}
}

// restoreDevice puts back the link fields of a device snapshot.
func (m *Manager) restoreDevice(snapshot *device.Device) {
	err := m.engine.devices.Update(snapshot.ID, func(d *device.Device) error {
		d.AutomationSensorID = snapshot.AutomationSensorID
		d.AutomationEnabled = snapshot.AutomationEnabled
		applyThresholds(d, thresholdsOf(snapshot))
		return nil
	})
	if err != nil {
		m.logger.Error("rolling back device", "device_id", snapshot.ID, "error", err)
	}
}

// Unlink removes a device's link.
//
// Every step is attempted even if an earlier one fails: the device is
// disabled, its ID is removed from every sensor, and the durable row is
// deleted. Failures are joined into the returned error; the disabled state
// is never reverted.
func (m *Manager) Unlink(ctx context.Context, deviceID string) error {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()
	return m.unlinkLocked(ctx, deviceID)
}

func (m *Manager) unlinkLocked(ctx context.Context, deviceID string) error {
	var errs []error

	err := m.engine.devices.Update(deviceID, func(d *device.Device) error {
		d.ClearLink()
		return nil
	})
	if err != nil {
		errs = append(errs, wrapNotFound(err))
	}

	affected := m.engine.sensors.PurgeDevice(deviceID)

	if err := withRetry(ctx, m.retries, func() error { return m.store.Remove(ctx, deviceID) }); err != nil {
		errs = append(errs, fmt.Errorf("%w: removing link for %s: %w", ErrPersistence, deviceID, err))
	}

	m.logger.Info("device unlinked", "device_id", deviceID, "sensors", affected, "errors", len(errs))
	m.engine.emitLink(deviceID, nil)
	return errors.Join(errs...)
}

// SetThresholds updates a device's trip points. If the device is linked the
// durable row is updated too; a failed write restores the old thresholds.
func (m *Manager) SetThresholds(ctx context.Context, deviceID string, th Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}

	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()

	dev, err := m.engine.devices.Get(deviceID)
	if err != nil {
		return wrapNotFound(err)
	}

	err = m.engine.devices.Update(deviceID, func(d *device.Device) error {
		applyThresholds(d, th)
		return nil
	})
	if err != nil {
		return wrapNotFound(err)
	}

	if !dev.Linked() {
		return nil
	}

	sen, err := m.engine.sensors.Get(dev.AutomationSensorID)
	if err != nil {
		m.restoreDevice(dev)
		return fmt.Errorf("%w: device %s links to missing sensor %s", ErrConsistency, deviceID, dev.AutomationSensorID)
	}

	updated := *dev
	applyThresholds(&updated, th)
	row := m.rowFor(&updated, sen)
	if err := m.upsert(ctx, row); err != nil {
		m.restoreDevice(dev)
		return err
	}

	m.logger.Info("thresholds updated", "device_id", deviceID, "auto_on", th.On, "auto_off", th.OffAt())
	m.engine.emitLink(deviceID, &row)
	if dev.AutomationEnabled {
		m.engine.reevaluateLocked(ctx, sen.ID)
	}
	return nil
}

// SetEnabled pauses or resumes automation for a linked device. The link
// and its durable row are kept either way.
func (m *Manager) SetEnabled(ctx context.Context, deviceID string, enabled bool) error {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()

	dev, err := m.engine.devices.Get(deviceID)
	if err != nil {
		return wrapNotFound(err)
	}
	if !dev.Linked() {
		return fmt.Errorf("%w: %s", ErrNotLinked, deviceID)
	}
	if dev.AutomationEnabled == enabled {
		return nil
	}

	sen, err := m.engine.sensors.Get(dev.AutomationSensorID)
	if err != nil {
		return fmt.Errorf("%w: device %s links to missing sensor %s", ErrConsistency, deviceID, dev.AutomationSensorID)
	}

	err = m.engine.devices.Update(deviceID, func(d *device.Device) error {
		d.AutomationEnabled = enabled
		return nil
	})
	if err != nil {
		return wrapNotFound(err)
	}

	row := m.rowFor(dev, sen)
	row.Enabled = enabled
	if err := m.upsert(ctx, row); err != nil {
		m.restoreDevice(dev)
		return err
	}

	m.logger.Info("automation toggled", "device_id", deviceID, "enabled", enabled)
	m.engine.emitLink(deviceID, &row)
	if enabled {
		m.engine.reevaluateLocked(ctx, sen.ID)
	}
	return nil
}

// RemoveDevice unlinks a device and removes it from the registry.
func (m *Manager) RemoveDevice(ctx context.Context, deviceID string) error {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()

	if !m.engine.devices.Has(deviceID) {
		return fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}

	err := m.unlinkLocked(ctx, deviceID)
	if rmErr := m.engine.devices.Remove(deviceID); rmErr != nil {
		err = errors.Join(err, wrapNotFound(rmErr))
	}
	return err
}

// RemoveSensor unlinks every device driven by a sensor and removes the
// sensor from the registry.
func (m *Manager) RemoveSensor(ctx context.Context, sensorID string) error {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()

	sen, err := m.engine.sensors.Get(sensorID)
	if err != nil {
		return wrapNotFound(err)
	}

	linked := make(map[string]struct{}, len(sen.DeviceIDs))
	for _, id := range sen.DeviceIDs {
		linked[id] = struct{}{}
	}
	for _, d := range m.engine.devices.Values() {
		if d.AutomationSensorID == sensorID {
			linked[d.ID] = struct{}{}
		}
	}

	var errs []error
	for id := range linked {
		if err := m.unlinkLocked(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.engine.sensors.Remove(sensorID); err != nil {
		errs = append(errs, wrapNotFound(err))
	}
	return errors.Join(errs...)
}

// Links returns a snapshot of every linked device, ordered by device ID.
func (m *Manager) Links() []LinkState {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()

	var links []LinkState
	for _, d := range m.engine.devices.Values() {
		if !d.Linked() {
			continue
		}
		links = append(links, LinkState{
			DeviceID:   d.ID,
			DeviceName: d.Name,
			SensorID:   d.AutomationSensorID,
			Enabled:    d.AutomationEnabled,
			On:         d.On,
			Thresholds: thresholdsOf(&d),
			DeviceType: d.Type,
		})
	}
	return links
}

func (m *Manager) rowFor(d *device.Device, s *sensor.Sensor) AutomationLink {
	return AutomationLink{
		DeviceID:         d.ID,
		SensorID:         s.ID,
		DeviceType:       d.Type,
		SensorType:       s.Type,
		AutoOn:           d.AutoOnThreshold,
		AutoOff:          d.AutoOffThreshold,
		OffThresholdUsed: d.OffThresholdUsed,
		Enabled:          d.AutomationEnabled,
		UpdatedAt:        m.engine.now().UTC(),
	}
}

// upsert writes a row with the configured retry budget.
func (m *Manager) upsert(ctx context.Context, row AutomationLink) error {
	err := withRetry(ctx, m.retries, func() error { return m.store.Upsert(ctx, row) })
	if err != nil {
		return fmt.Errorf("%w: upserting link for %s: %w", ErrPersistence, row.DeviceID, err)
	}
	return nil
}

// wrapNotFound tags registry lookup failures with ErrNotFound.
func wrapNotFound(err error) error {
	if errors.Is(err, device.ErrDeviceNotFound) || errors.Is(err, sensor.ErrSensorNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
