package device_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-automation/migrations"
)

// openMigratedDB opens an in-memory database with the embedded migrations applied.
func openMigratedDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestIntegration_InventoryAndHistory(t *testing.T) {
	db := openMigratedDB(t)
	ctx := context.Background()

	repo := device.NewSQLiteRepository(db.DB)
	history := device.NewSQLiteHistoryRepository(db.DB)

	if err := repo.Create(ctx, &device.Device{ID: "L1", Name: "Porch", Type: device.TypeLight}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	reg := device.NewRegistry()
	if err := reg.Load(ctx, repo); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	err := reg.Update("L1", func(d *device.Device) error {
		d.On = true
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := history.RecordTransition(ctx, device.TransitionEntry{DeviceID: "L1", SensorID: "S1", On: true, Reading: 120}); err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}

	entries, err := history.GetHistory(ctx, "L1", 5)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 || !entries[0].On {
		t.Errorf("history = %+v", entries)
	}

	if err := repo.Delete(ctx, "L1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, "L1"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrDeviceNotFound", err)
	}
}
