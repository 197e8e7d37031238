package automation

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
)

func storedRow(deviceID, sensorID string, on float64, enabled bool) AutomationLink {
	return AutomationLink{
		DeviceID:   deviceID,
		SensorID:   sensorID,
		DeviceType: device.TypeLight,
		SensorType: sensor.TypeLight,
		AutoOn:     on,
		AutoOff:    on,
		Enabled:    enabled,
	}
}

func TestRestoreLinks(t *testing.T) {
	f := newFixture(t)
	f.addDevice(t, "L1", device.TypeLight)
	f.addDevice(t, "L2", device.TypeLight)
	f.addSensor(t, "S1", 900)
	f.store.rows["L1"] = storedRow("L1", "S1", 800, true)
	f.store.rows["L2"] = storedRow("L2", "S1", 600, false)

	report, err := f.manager.RestoreLinks(context.Background())
	if err != nil {
		t.Fatalf("RestoreLinks() error = %v", err)
	}

	if report.Rows != 2 || !reflect.DeepEqual(report.Restored, []string{"L1", "L2"}) {
		t.Errorf("report = %+v", report)
	}
	f.assertLinked(t, "L1", "S1")
	if d := f.device(t, "L1"); d.AutoOnThreshold != 800 {
		t.Errorf("L1 AutoOnThreshold = %g, want 800", d.AutoOnThreshold)
	}

	d2 := f.device(t, "L2")
	if d2.AutomationEnabled || d2.AutomationSensorID != "S1" || d2.AutoOnThreshold != 600 {
		t.Errorf("paused L2 = %+v, want disabled on S1 at 600", d2)
	}
	if !f.sensor(t, "S1").HasDevice("L2") {
		t.Error("S1 should list paused L2")
	}
	if f.store.upserts != 0 || f.store.removes != 0 {
		t.Errorf("restore wrote to the store: upserts=%d removes=%d", f.store.upserts, f.store.removes)
	}
}

func TestRestoreLinks_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDevice(t, "L1", device.TypeLight)
	f.addSensor(t, "S1", 900)
	f.addSensor(t, "S2", 900)
	f.store.rows["L1"] = storedRow("L1", "S1", 800, true)

	first, err := f.manager.RestoreLinks(ctx)
	if err != nil {
		t.Fatalf("first RestoreLinks() error = %v", err)
	}
	devicesAfter, sensorsAfter := f.devices.Values(), f.sensors.Values()

	second, err := f.manager.RestoreLinks(ctx)
	if err != nil {
		t.Fatalf("second RestoreLinks() error = %v", err)
	}

	if !reflect.DeepEqual(first.Restored, second.Restored) || second.Pruned != 0 || len(second.Repaired) != 0 {
		t.Errorf("reports differ: first=%+v second=%+v", first, second)
	}
	for i, d := range f.devices.Values() {
		want := devicesAfter[i]
		if d.ID != want.ID || d.AutomationSensorID != want.AutomationSensorID ||
			d.AutomationEnabled != want.AutomationEnabled || d.AutoOnThreshold != want.AutoOnThreshold {
			t.Errorf("device %s changed between restores", d.ID)
		}
	}
	for i, s := range f.sensors.Values() {
		if !reflect.DeepEqual(s.DeviceIDs, sensorsAfter[i].DeviceIDs) {
			t.Errorf("sensor %s set changed: %v -> %v", s.ID, sensorsAfter[i].DeviceIDs, s.DeviceIDs)
		}
	}
}

func TestRestoreLinks_PlaceholderForUnknownDevice(t *testing.T) {
	f := newFixture(t)
	f.addSensor(t, "S1", 900)
	f.store.rows["gone"] = storedRow("gone", "S1", 800, true)

	report, err := f.manager.RestoreLinks(context.Background())
	if err != nil {
		t.Fatalf("RestoreLinks() error = %v", err)
	}

	if !reflect.DeepEqual(report.Placeholders, []string{"gone"}) {
		t.Errorf("Placeholders = %v, want [gone]", report.Placeholders)
	}
	d := f.device(t, "gone")
	if !d.Placeholder || d.Type != device.TypeLight {
		t.Errorf("placeholder = %+v, want placeholder light", d)
	}
	f.assertLinked(t, "gone", "S1")
}

func TestRestoreLinks_PlaceholderUnknownType(t *testing.T) {
	row := storedRow("gone", "S1", 800, true)
	row.DeviceType = device.Type("toaster")

	if p := placeholderFor(row); p.Type != device.TypeUnknown || !p.Placeholder || p.Name != "gone" {
		t.Errorf("placeholderFor() = %+v, want unknown placeholder named gone", p)
	}
}

func TestRestoreLinks_SkipsUnknownSensor(t *testing.T) {
	f := newFixture(t)
	f.addDevice(t, "L1", device.TypeLight)
	f.store.rows["L1"] = storedRow("L1", "missing", 800, true)

	report, err := f.manager.RestoreLinks(context.Background())
	if err != nil {
		t.Fatalf("RestoreLinks() error = %v", err)
	}

	if !reflect.DeepEqual(report.Skipped, []string{"L1"}) || len(report.Restored) != 0 {
		t.Errorf("report = %+v, want L1 skipped", report)
	}
	if d := f.device(t, "L1"); d.Linked() || d.AutomationEnabled {
		t.Errorf("L1 = %+v, want unlinked", d)
	}
	if _, ok := f.store.row("L1"); !ok {
		t.Error("row for an unknown sensor must stay in the store")
	}
}

func TestRestoreLinks_RepairsDeviceWithoutRow(t *testing.T) {
	f := newFixture(t)
	f.addSensor(t, "S1", 900)
	if err := f.devices.Put(&device.Device{
		ID:                 "L1",
		Name:               "L1",
		Type:               device.TypeLight,
		AutomationEnabled:  true,
		AutomationSensorID: "S1",
		AutoOnThreshold:    800,
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := f.sensors.LinkDevice("S1", "L1"); err != nil {
		t.Fatalf("LinkDevice() error = %v", err)
	}

	report, err := f.manager.RestoreLinks(context.Background())
	if err != nil {
		t.Fatalf("RestoreLinks() error = %v", err)
	}

	if !reflect.DeepEqual(report.Repaired, []string{"L1"}) {
		t.Errorf("Repaired = %v, want [L1]", report.Repaired)
	}
	if report.Pruned != 1 {
		t.Errorf("Pruned = %d, want 1", report.Pruned)
	}
	f.assertUnlinked(t, "L1")
	if d := f.device(t, "L1"); d.AutoOnThreshold != 800 {
		t.Errorf("repair should keep thresholds, got %g", d.AutoOnThreshold)
	}
}

func TestRestoreLinks_PrunesStaleSensorSets(t *testing.T) {
	f := newFixture(t)
	f.addDevice(t, "L1", device.TypeLight)
	f.addSensor(t, "S1", 900)
	f.addSensor(t, "S2", 900)
	f.store.rows["L1"] = storedRow("L1", "S2", 800, true)

	// Inventory left L1 and an unknown ID in S1.
	if err := f.sensors.Put(&sensor.Sensor{
		ID:        "S1",
		Name:      "S1",
		Type:      sensor.TypeLight,
		DeviceIDs: []string{"L1", "ghost"},
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	report, err := f.manager.RestoreLinks(context.Background())
	if err != nil {
		t.Fatalf("RestoreLinks() error = %v", err)
	}

	if report.Pruned != 2 {
		t.Errorf("Pruned = %d, want 2", report.Pruned)
	}
	if ids := f.sensor(t, "S1").DeviceIDs; len(ids) != 0 {
		t.Errorf("S1 set = %v, want empty", ids)
	}
	f.assertLinked(t, "L1", "S2")
}

func TestRestoreLinks_LoadFailure(t *testing.T) {
	f := newFixture(t)
	f.addDevice(t, "L1", device.TypeLight)
	f.store.loadErr = errStoreDown

	_, err := f.manager.RestoreLinks(context.Background())
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, errStoreDown) {
		t.Errorf("error = %v, want ErrPersistence wrapping the store error", err)
	}
}

func TestRestoreLinks_ThenEvaluate(t *testing.T) {
	f := newFixture(t)
	f.addDevice(t, "L1", device.TypeLight)
	f.addSensor(t, "S1", 900)
	f.store.rows["L1"] = storedRow("L1", "S1", 800, true)

	if _, err := f.manager.RestoreLinks(context.Background()); err != nil {
		t.Fatalf("RestoreLinks() error = %v", err)
	}

	if got := f.engine.Evaluate(context.Background(), "S1", 200); len(got) != 1 || !got[0].On {
		t.Errorf("Evaluate() after restore = %+v, want L1 on", got)
	}
}
