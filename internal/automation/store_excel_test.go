package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
)

func newExcelStore(t *testing.T) *ExcelLinkStore {
	t.Helper()
	return NewExcelLinkStore(filepath.Join(t.TempDir(), "links.xlsx"), nil)
}

// writeWorkbook writes a hand-made link sheet to path.
func writeWorkbook(t *testing.T, path string, rows [][]any) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ExcelSheetName); err != nil {
		t.Fatalf("SetSheetName() error = %v", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName() error = %v", err)
		}
		if err := f.SetSheetRow(ExcelSheetName, cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
}

func TestExcelLinkStore_MissingWorkbookIsEmpty(t *testing.T) {
	store := newExcelStore(t)

	got, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("LoadAll() = %+v, want empty", got)
	}
	if err := store.Remove(context.Background(), "L1"); err != nil {
		t.Errorf("Remove() on missing workbook error = %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("Remove() of an absent row should not create the workbook")
	}
}

func TestExcelLinkStore_RoundTrip(t *testing.T) {
	store := newExcelStore(t)
	ctx := context.Background()

	want := AutomationLink{
		DeviceID:         "L1",
		SensorID:         "S1",
		DeviceType:       device.TypeLight,
		SensorType:       sensor.TypeLight,
		AutoOn:           312.0625,
		AutoOff:          480.1,
		OffThresholdUsed: true,
		Enabled:          false,
		UpdatedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.Upsert(ctx, want); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.Upsert(ctx, storedRow("A0", "S2", 10, true)); err != nil {
		t.Fatalf("Upsert(A0) error = %v", err)
	}

	got, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(got) != 2 || got[0].DeviceID != "A0" {
		t.Fatalf("LoadAll() = %+v, want A0 then L1", got)
	}
	assertSameLink(t, got[1], want)

	if err := store.Remove(ctx, "A0"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	got, err = store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(got) != 1 || got[0].DeviceID != "L1" {
		t.Errorf("after Remove LoadAll() = %+v, want only L1", got)
	}

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(store.Path()), ".automation-links-*"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temporary workbooks left behind: %v", leftovers)
	}
}

func TestExcelLinkStore_HandEditedSheet(t *testing.T) {
	store := newExcelStore(t)

	writeWorkbook(t, store.Path(), [][]any{
		{"Sensor_ID", "Device_ID", "auto_on", "enabled"},
		{"S1", "L1", 800, "yes"},
		{"S1", "", 700, "1"},        // no device id
		{"S2", "L2", "bright", "1"}, // not a number
		{},
		{"S3", "L3", 250.5, "no"},
	})

	got, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadAll() = %+v, want L1 and L3", got)
	}

	l1, l3 := got[0], got[1]
	if l1.DeviceID != "L1" || l1.SensorID != "S1" || l1.AutoOn != 800 || l1.AutoOff != 800 || !l1.Enabled {
		t.Errorf("L1 = %+v", l1)
	}
	if l3.DeviceID != "L3" || l3.AutoOn != 250.5 || l3.Enabled || l3.OffThresholdUsed {
		t.Errorf("L3 = %+v", l3)
	}
}

func TestExcelLinkStore_WritesKeepUnparsedRowsAndSheets(t *testing.T) {
	store := newExcelStore(t)
	ctx := context.Background()

	writeWorkbook(t, store.Path(), [][]any{
		{"device_id", "sensor_id", "auto_on", "comment"},
		{"L1", "S1", 800, "hallway"},
		{"L2", "S2", "800 lux", "fix me"},
	})
	f, err := excelize.OpenFile(store.Path())
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if _, err := f.NewSheet("notes"); err != nil {
		t.Fatalf("NewSheet() error = %v", err)
	}
	if err := f.SetCellValue("notes", "A1", "keep me"); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	if err := f.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	f.Close()

	if err := store.Upsert(ctx, storedRow("L3", "S3", 250, true)); err != nil {
		t.Fatalf("Upsert(L3) error = %v", err)
	}
	if err := store.Upsert(ctx, storedRow("L1", "S1", 900, false)); err != nil {
		t.Fatalf("Upsert(L1) error = %v", err)
	}

	got, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(got) != 2 || got[0].DeviceID != "L1" || got[1].DeviceID != "L3" {
		t.Fatalf("LoadAll() = %+v, want L1 and L3", got)
	}
	if got[0].AutoOn != 900 || got[0].Enabled {
		t.Errorf("L1 not replaced: %+v", got[0])
	}

	f, err = excelize.OpenFile(store.Path())
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()

	if v, err := f.GetCellValue("notes", "A1"); err != nil || v != "keep me" {
		t.Errorf("notes!A1 = %q, %v; want the extra sheet kept", v, err)
	}
	rows, err := f.GetRows(ExcelSheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %v, want header, L1, L2 and L3", rows)
	}
	if rows[1][0] != "L1" || rows[1][3] != "hallway" {
		t.Errorf("L1 row = %v, want it updated in place with its comment", rows[1])
	}
	if rows[2][0] != "L2" || rows[2][2] != "800 lux" || rows[2][3] != "fix me" {
		t.Errorf("unparsed row = %v, want it untouched", rows[2])
	}

	if err := store.Remove(ctx, "L1"); err != nil {
		t.Fatalf("Remove(L1) error = %v", err)
	}
	rows = excelRows(t, store.Path())
	if len(rows) != 3 || rows[1][0] != "L2" || rows[2][0] != "L3" {
		t.Errorf("after Remove rows = %v, want header, L2 and L3", rows)
	}
}

// excelRows returns the link sheet as formatted cell text.
func excelRows(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(ExcelSheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	return rows
}

func TestExcelLinkStore_MissingRequiredColumn(t *testing.T) {
	store := newExcelStore(t)
	writeWorkbook(t, store.Path(), [][]any{
		{"device_id", "sensor_id"},
		{"L1", "S1"},
	})

	if _, err := store.LoadAll(context.Background()); err == nil {
		t.Error("LoadAll() error = nil, want missing column error")
	}
}

func TestExcelLinkStore_CancelledContext(t *testing.T) {
	store := newExcelStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Upsert(ctx, storedRow("L1", "S1", 800, true)); err == nil {
		t.Error("Upsert() with cancelled context should fail")
	}
}

func TestExcelLinkStore_ManagerRestore(t *testing.T) {
	store := newExcelStore(t)
	ctx := context.Background()

	f := newFixture(t)
	f.manager = NewManager(f.engine, store, 0, nil)
	f.addDevice(t, "L1", device.TypeLight)
	f.addSensor(t, "S1", 900)
	if _, err := f.manager.LinkWithThresholds(ctx, "L1", "S1", Thresholds{On: 300, Off: 500, OffUsed: true}); err != nil {
		t.Fatalf("LinkWithThresholds() error = %v", err)
	}

	g := newFixture(t)
	g.manager = NewManager(g.engine, NewExcelLinkStore(store.Path(), nil), 0, nil)
	g.addSensor(t, "S1", 900)

	report, err := g.manager.RestoreLinks(ctx)
	if err != nil {
		t.Fatalf("RestoreLinks() error = %v", err)
	}
	if len(report.Placeholders) != 1 {
		t.Errorf("Placeholders = %v, want [L1]", report.Placeholders)
	}
	d := g.device(t, "L1")
	if thresholdsOf(d) != (Thresholds{On: 300, Off: 500, OffUsed: true}) {
		t.Errorf("restored thresholds = %+v", thresholdsOf(d))
	}
}
