package device

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupHistoryTestDB creates an in-memory SQLite database with the transition_history table.
func setupHistoryTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE transition_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			sensor_id TEXT,
			is_on INTEGER NOT NULL,
			reading REAL NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT 'automation',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_transition_history_device ON transition_history(device_id, created_at DESC);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestRecordTransition(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupHistoryTestDB(t))
	ctx := context.Background()

	err := repo.RecordTransition(ctx, TransitionEntry{
		DeviceID: "L1",
		SensorID: "S1",
		On:       true,
		Reading:  200,
	})
	if err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "L1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	entry := entries[0]
	if entry.SensorID != "S1" || !entry.On || entry.Reading != 200 {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Source != SourceAutomation {
		t.Errorf("Source = %q, want %q", entry.Source, SourceAutomation)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want non-zero")
	}
}

func TestRecordTransition_ManualWithoutSensor(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupHistoryTestDB(t))
	ctx := context.Background()

	err := repo.RecordTransition(ctx, TransitionEntry{DeviceID: "L1", On: false, Source: SourceManual})
	if err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}

	entries, _ := repo.GetHistory(ctx, "L1", 0)
	if len(entries) != 1 || entries[0].SensorID != "" || entries[0].Source != SourceManual {
		t.Errorf("entries = %+v", entries)
	}
}

func TestRecordTransition_RequiresDevice(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupHistoryTestDB(t))

	if err := repo.RecordTransition(context.Background(), TransitionEntry{}); err == nil {
		t.Error("RecordTransition() without device id should fail")
	}
}

func TestGetHistory_OrderAndLimit(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupHistoryTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	for i, at := range []time.Time{now.Add(-2 * time.Hour), now.Add(-time.Hour), now} {
		err := repo.RecordTransition(ctx, TransitionEntry{DeviceID: "L1", On: i%2 == 0, CreatedAt: at})
		if err != nil {
			t.Fatalf("RecordTransition() error = %v", err)
		}
	}
	if err := repo.RecordTransition(ctx, TransitionEntry{DeviceID: "L2", CreatedAt: now}); err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "L1", 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}
	if !entries[0].CreatedAt.Equal(now) {
		t.Errorf("entry[0] CreatedAt = %s, want %s", entries[0].CreatedAt, now)
	}
	if !entries[1].CreatedAt.Equal(now.Add(-time.Hour)) {
		t.Errorf("entry[1] CreatedAt = %s, want %s", entries[1].CreatedAt, now.Add(-time.Hour))
	}
}

func TestPruneHistory(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupHistoryTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	old := TransitionEntry{DeviceID: "L1", On: true, CreatedAt: now.Add(-40 * 24 * time.Hour)}
	recent := TransitionEntry{DeviceID: "L1", On: false, CreatedAt: now.Add(-12 * time.Hour)}
	for _, e := range []TransitionEntry{old, recent} {
		if err := repo.RecordTransition(ctx, e); err != nil {
			t.Fatalf("RecordTransition() error = %v", err)
		}
	}

	deleted, err := repo.PruneHistory(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	entries, _ := repo.GetHistory(ctx, "L1", 10)
	if len(entries) != 1 || !entries[0].CreatedAt.Equal(recent.CreatedAt) {
		t.Errorf("remaining entries = %+v", entries)
	}

	if _, err := repo.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) should fail")
	}
}
