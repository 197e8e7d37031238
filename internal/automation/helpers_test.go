package automation

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// mockMQTT captures all published messages.
type mockMQTT struct {
	mu       sync.Mutex
	messages []mqttMessage
	err      error
}

type mqttMessage struct {
	Topic    string
	Payload  map[string]any
	QoS      byte
	Retained bool
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	var parsed map[string]any
	_ = json.Unmarshal(payload, &parsed) //nolint:errcheck // empty payloads clear retained topics

	m.messages = append(m.messages, mqttMessage{Topic: topic, Payload: parsed, QoS: qos, Retained: retained})
	return nil
}

func (m *mockMQTT) byTopic(topic string) []mqttMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []mqttMessage
	for _, msg := range m.messages {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// mockWSHub captures all broadcasts.
type mockWSHub struct {
	mu         sync.Mutex
	broadcasts []wsBroadcast
}

type wsBroadcast struct {
	Channel string
	Payload any
}

func (m *mockWSHub) Broadcast(channel string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, wsBroadcast{Channel: channel, Payload: payload})
}

func (m *mockWSHub) onChannel(channel string) []wsBroadcast {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []wsBroadcast
	for _, b := range m.broadcasts {
		if b.Channel == channel {
			out = append(out, b)
		}
	}
	return out
}

// mockTelemetry counts telemetry writes.
type mockTelemetry struct {
	mu          sync.Mutex
	readings    int
	transitions int
}

func (m *mockTelemetry) WriteSensorReading(string, string, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings++
}

func (m *mockTelemetry) WriteTransition(string, string, bool, float64, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions++
}

// mockHistory records transition history entries.
type mockHistory struct {
	mu      sync.Mutex
	entries []device.TransitionEntry
	err     error
}

func (m *mockHistory) RecordTransition(_ context.Context, entry device.TransitionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

// memStore is an in-memory LinkStore with failure injection.
type memStore struct {
	mu         sync.Mutex
	rows       map[string]AutomationLink
	upserts    int
	removes    int
	failUpsert int // number of upcoming Upsert calls that fail
	failRemove int
	loadErr    error
}

var errStoreDown = errors.New("store unavailable")

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]AutomationLink)}
}

func (s *memStore) LoadAll(_ context.Context) ([]AutomationLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return sortedLinks(s.rows), nil
}

func (s *memStore) Upsert(_ context.Context, link AutomationLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.failUpsert > 0 {
		s.failUpsert--
		return errStoreDown
	}
	s.rows[link.DeviceID] = link
	return nil
}

func (s *memStore) Remove(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes++
	if s.failRemove > 0 {
		s.failRemove--
		return errStoreDown
	}
	delete(s.rows, deviceID)
	return nil
}

func (s *memStore) row(deviceID string) (AutomationLink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[deviceID]
	return l, ok
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// ─── Fixture ────────────────────────────────────────────────────────────────

type fixture struct {
	devices   *device.Registry
	sensors   *sensor.Registry
	store     *memStore
	mqtt      *mockMQTT
	hub       *mockWSHub
	telemetry *mockTelemetry
	history   *mockHistory
	engine    *Engine
	manager   *Manager
}

// newFixture wires an engine and manager over fresh registries and an
// in-memory store with one retry.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		devices:   device.NewRegistry(),
		sensors:   sensor.NewRegistry(),
		store:     newMemStore(),
		mqtt:      &mockMQTT{},
		hub:       &mockWSHub{},
		telemetry: &mockTelemetry{},
		history:   &mockHistory{},
	}
	f.engine = NewEngine(f.devices, f.sensors, Sinks{
		MQTT:      f.mqtt,
		Hub:       f.hub,
		Telemetry: f.telemetry,
		History:   f.history,
	}, nil)
	f.manager = NewManager(f.engine, f.store, 1, nil)
	return f
}

func (f *fixture) addDevice(t *testing.T, id string, typ device.Type) {
	t.Helper()
	if err := f.devices.Put(&device.Device{ID: id, Name: id, Type: typ}); err != nil {
		t.Fatalf("Put(device %s) error = %v", id, err)
	}
}

func (f *fixture) addSensor(t *testing.T, id string, reading float64) {
	t.Helper()
	if err := f.sensors.Put(&sensor.Sensor{ID: id, Name: id, Type: sensor.TypeLight, Reading: reading}); err != nil {
		t.Fatalf("Put(sensor %s) error = %v", id, err)
	}
}

func (f *fixture) device(t *testing.T, id string) *device.Device {
	t.Helper()
	d, err := f.devices.Get(id)
	if err != nil {
		t.Fatalf("Get(device %s) error = %v", id, err)
	}
	return d
}

func (f *fixture) sensor(t *testing.T, id string) *sensor.Sensor {
	t.Helper()
	s, err := f.sensors.Get(id)
	if err != nil {
		t.Fatalf("Get(sensor %s) error = %v", id, err)
	}
	return s
}

// link links deviceID to sensorID with mirrored thresholds and fails the test on error.
func (f *fixture) link(t *testing.T, deviceID, sensorID string, on float64) LinkResult {
	t.Helper()
	res, err := f.manager.LinkWithThresholds(context.Background(), deviceID, sensorID, Mirrored(on))
	if err != nil {
		t.Fatalf("LinkWithThresholds(%s, %s) error = %v", deviceID, sensorID, err)
	}
	return res
}

// sensorsHolding returns the IDs of every sensor whose set contains deviceID.
func (f *fixture) sensorsHolding(deviceID string) []string {
	var ids []string
	for _, s := range f.sensors.Values() {
		if s.HasDevice(deviceID) {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// assertLinked checks the full linked-state contract for a device.
func (f *fixture) assertLinked(t *testing.T, deviceID, sensorID string) {
	t.Helper()

	d := f.device(t, deviceID)
	if !d.AutomationEnabled || d.AutomationSensorID != sensorID {
		t.Errorf("device %s: enabled=%v sensor=%q, want enabled on %q",
			deviceID, d.AutomationEnabled, d.AutomationSensorID, sensorID)
	}
	if holding := f.sensorsHolding(deviceID); len(holding) != 1 || holding[0] != sensorID {
		t.Errorf("sensors holding %s = %v, want [%s]", deviceID, holding, sensorID)
	}
	row, ok := f.store.row(deviceID)
	if !ok || row.SensorID != sensorID {
		t.Errorf("store row for %s = %+v (present=%v), want sensor %s", deviceID, row, ok, sensorID)
	}
}

// assertUnlinked checks the full unlinked-state contract for a device.
func (f *fixture) assertUnlinked(t *testing.T, deviceID string) {
	t.Helper()

	if d, err := f.devices.Get(deviceID); err == nil {
		if d.AutomationEnabled || d.AutomationSensorID != "" {
			t.Errorf("device %s still linked: enabled=%v sensor=%q", deviceID, d.AutomationEnabled, d.AutomationSensorID)
		}
	}
	if holding := f.sensorsHolding(deviceID); len(holding) != 0 {
		t.Errorf("sensors still holding %s: %v", deviceID, holding)
	}
	if _, ok := f.store.row(deviceID); ok {
		t.Errorf("store still has a row for %s", deviceID)
	}
}

// assertSameLink compares two rows, treating UpdatedAt as an instant.
func assertSameLink(t *testing.T, got, want AutomationLink) {
	t.Helper()

	if !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, want.UpdatedAt)
	}
	got.UpdatedAt = want.UpdatedAt
	if got != want {
		t.Errorf("link = %+v, want %+v", got, want)
	}
}
