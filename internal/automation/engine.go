package automation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
)

// Logger defines the logging interface used by the engine and manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTClient is the interface for publishing device commands and state.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// Telemetry receives readings and transitions for time-series storage.
type Telemetry interface {
	WriteSensorReading(sensorID, sensorType string, value float64)
	WriteTransition(deviceID, sensorID string, on bool, reading float64, source string)
}

// HistoryRecorder persists applied transitions.
type HistoryRecorder interface {
	RecordTransition(ctx context.Context, entry device.TransitionEntry) error
}

// WebSocket channels the engine broadcasts on.
const (
	ChannelTransition = "automation.transition"
	ChannelLink       = "automation.link"
	ChannelReading    = "sensor.reading"
)

// Sinks are the optional outputs notified of readings and transitions.
// Any of them may be nil. Sink failures are logged and never reach the
// caller of Evaluate.
type Sinks struct {
	MQTT      MQTTClient
	Hub       WSHub
	Telemetry Telemetry
	History   HistoryRecorder
}

// Engine evaluates sensor readings against the thresholds of linked devices.
//
// One mutex serialises evaluation with every link mutation made through the
// Manager, so a reading never sees a half-applied link or unlink. Devices
// are always resolved through the device registry by ID.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	devices *device.Registry
	sensors *sensor.Registry
	sinks   Sinks
	logger  Logger
	now     func() time.Time
}

// NewEngine creates an evaluation engine over the given registries.
//
// Parameters:
//   - devices: Registry holding live devices
//   - sensors: Registry holding live sensors and their linked device IDs
//   - sinks: Optional outputs for readings and transitions
//   - logger: Logger instance (nil for none)
func NewEngine(devices *device.Registry, sensors *sensor.Registry, sinks Sinks, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		devices: devices,
		sensors: sensors,
		sinks:   sinks,
		logger:  logger,
		now:     time.Now,
	}
}

// Evaluate records a new reading for the sensor and applies the threshold
// policy to every enabled device linked to it.
//
// It returns the transitions that were applied. Problems with individual
// devices are logged and skipped; an unknown sensor yields no transitions.
func (e *Engine) Evaluate(ctx context.Context, sensorID string, reading float64) []Transition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(ctx, sensorID, reading)
}

// evaluateLocked is Evaluate for callers already holding e.mu.
func (e *Engine) evaluateLocked(ctx context.Context, sensorID string, reading float64) []Transition {
	s, err := e.sensors.SetReading(sensorID, reading)
	if err != nil {
		e.logger.Warn("reading ignored", "sensor_id", sensorID, "reading", reading, "error", err)
		return nil
	}
	e.emitReading(s)
	return e.applyAllLocked(ctx, s, reading)
}

// reevaluateLocked applies the policy at the sensor's current reading
// without recording it again. Callers hold e.mu.
func (e *Engine) reevaluateLocked(ctx context.Context, sensorID string) []Transition {
	s, err := e.sensors.Get(sensorID)
	if err != nil {
		e.logger.Warn("re-evaluation skipped", "sensor_id", sensorID, "error", err)
		return nil
	}
	return e.applyAllLocked(ctx, s, s.Reading)
}

func (e *Engine) applyAllLocked(ctx context.Context, s *sensor.Sensor, reading float64) []Transition {
	var applied []Transition
	for _, deviceID := range s.DeviceIDs {
		tr, ok := e.applyLocked(deviceID, s.ID, reading)
		if !ok {
			continue
		}
		applied = append(applied, tr)
		e.emitTransition(ctx, tr)
	}
	return applied
}

var (
	errDisabled  = errors.New("automation disabled")
	errUnchanged = errors.New("state unchanged")
	errStaleLink = errors.New("device linked to another sensor")
)

// applyLocked evaluates one device. It reports false when nothing changed.
func (e *Engine) applyLocked(deviceID, sensorID string, reading float64) (Transition, bool) {
	var tr Transition
	err := e.devices.Update(deviceID, func(d *device.Device) error {
		if !d.AutomationEnabled {
			return errDisabled
		}
		if d.AutomationSensorID != sensorID {
			return errStaleLink
		}
		next, changed := Decide(reading, d.On, thresholdsOf(d))
		if !changed {
			return errUnchanged
		}
		d.On = next
		tr = Transition{
			DeviceID: d.ID,
			SensorID: sensorID,
			On:       next,
			Reading:  reading,
			Source:   device.SourceAutomation,
			At:       e.now().UTC(),
		}
		return nil
	})

	switch {
	case err == nil:
		e.logger.Info("automation transition",
			"device_id", deviceID,
			"sensor_id", sensorID,
			"on", tr.On,
			"reading", reading,
		)
		return tr, true
	case errors.Is(err, errDisabled), errors.Is(err, errUnchanged):
		e.logger.Debug("no transition", "device_id", deviceID, "sensor_id", sensorID, "reason", err.Error())
	case errors.Is(err, errStaleLink):
		e.logger.Warn("sensor lists a device linked elsewhere", "device_id", deviceID, "sensor_id", sensorID)
	case errors.Is(err, device.ErrDeviceNotFound):
		e.logger.Warn("linked device missing, skipping", "device_id", deviceID, "sensor_id", sensorID)
	default:
		e.logger.Error("evaluating device", "device_id", deviceID, "sensor_id", sensorID, "error", err)
	}
	return Transition{}, false
}

// SetPower switches a device by hand. It returns the transition and
// whether the state changed. Automation stays linked; the next reading
// may switch the device back.
func (e *Engine) SetPower(ctx context.Context, deviceID string, on bool) (Transition, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var tr Transition
	err := e.devices.Update(deviceID, func(d *device.Device) error {
		if d.On == on {
			return errUnchanged
		}
		d.On = on
		tr = Transition{DeviceID: d.ID, On: on, Source: device.SourceManual, At: e.now().UTC()}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return Transition{}, false, nil
	}
	if err != nil {
		return Transition{}, false, wrapNotFound(err)
	}

	e.emitTransition(ctx, tr)
	return tr, true, nil
}

// commandPayload is the JSON body published on a device command topic.
type commandPayload struct {
	ID         string         `json:"id"`
	DeviceID   string         `json:"device_id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters"`
	Source     string         `json:"source"`
}

// statePayload is the retained JSON body published on a device state topic.
type statePayload struct {
	DeviceID  string    `json:"device_id"`
	On        bool      `json:"on"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *Engine) emitTransition(ctx context.Context, tr Transition) {
	if e.sinks.MQTT != nil {
		e.publishTransition(tr)
	}
	if e.sinks.Hub != nil {
		e.sinks.Hub.Broadcast(ChannelTransition, tr)
	}
	if e.sinks.Telemetry != nil {
		e.sinks.Telemetry.WriteTransition(tr.DeviceID, tr.SensorID, tr.On, tr.Reading, tr.Source)
	}
	if e.sinks.History != nil {
		entry := device.TransitionEntry{
			DeviceID:  tr.DeviceID,
			SensorID:  tr.SensorID,
			On:        tr.On,
			Reading:   tr.Reading,
			Source:    tr.Source,
			CreatedAt: tr.At,
		}
		if err := e.sinks.History.RecordTransition(ctx, entry); err != nil {
			e.logger.Warn("recording transition history", "device_id", tr.DeviceID, "error", err)
		}
	}
}

func (e *Engine) publishTransition(tr Transition) {
	command := "turn_off"
	if tr.On {
		command = "turn_on"
	}
	source := tr.Source
	if tr.SensorID != "" {
		source += ":" + tr.SensorID
	}

	cmd := commandPayload{
		ID:         device.GenerateID(),
		DeviceID:   tr.DeviceID,
		Command:    command,
		Parameters: map[string]any{"on": tr.On, "reading": tr.Reading},
		Source:     source,
	}
	if payload, err := json.Marshal(cmd); err == nil {
		topic := mqtt.Topics{}.DeviceCommand(tr.DeviceID)
		if pubErr := e.sinks.MQTT.Publish(topic, payload, 1, false); pubErr != nil {
			e.logger.Warn("publishing device command", "topic", topic, "error", pubErr)
		}
	}

	state := statePayload{DeviceID: tr.DeviceID, On: tr.On, Source: tr.Source, Timestamp: tr.At}
	if payload, err := json.Marshal(state); err == nil {
		topic := mqtt.Topics{}.DeviceState(tr.DeviceID)
		if pubErr := e.sinks.MQTT.Publish(topic, payload, 1, true); pubErr != nil {
			e.logger.Warn("publishing device state", "topic", topic, "error", pubErr)
		}
	}
}

func (e *Engine) emitReading(s *sensor.Sensor) {
	if e.sinks.Telemetry != nil {
		e.sinks.Telemetry.WriteSensorReading(s.ID, string(s.Type), s.Reading)
	}
	if e.sinks.Hub != nil {
		e.sinks.Hub.Broadcast(ChannelReading, map[string]any{
			"sensor_id": s.ID,
			"reading":   s.Reading,
		})
	}
}

// emitLink announces a link change. A nil link clears the retained topic.
func (e *Engine) emitLink(deviceID string, link *AutomationLink) {
	if e.sinks.Hub != nil {
		event := map[string]any{"device_id": deviceID, "linked": link != nil}
		if link != nil {
			event["link"] = link
		}
		e.sinks.Hub.Broadcast(ChannelLink, event)
	}
	if e.sinks.MQTT == nil {
		return
	}

	var payload []byte
	if link != nil {
		data, err := json.Marshal(link)
		if err != nil {
			return
		}
		payload = data
	}
	topic := mqtt.Topics{}.LinkEvent(deviceID)
	if err := e.sinks.MQTT.Publish(topic, payload, 1, true); err != nil {
		e.logger.Warn("publishing link event", "topic", topic, "error", err)
	}
}
