package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nerrad567/gray-logic-automation/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-automation/migrations"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	entry := &AuditLog{
		Action:     ActionLink,
		EntityType: EntityDevice,
		EntityID:   "L1",
		Details:    map[string]any{"sensor_id": "S1", "auto_on": 300.0},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if entry.ID == "" || entry.Source != "api" || entry.CreatedAt.IsZero() {
		t.Errorf("defaults not filled: %+v", entry)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if result.Total != 1 || len(result.Logs) != 1 {
		t.Fatalf("total = %d, logs = %d, want 1", result.Total, len(result.Logs))
	}
	got := result.Logs[0]
	if got.EntityID != "L1" || got.Action != ActionLink {
		t.Errorf("log = %+v", got)
	}
	if got.Details["sensor_id"] != "S1" || got.Details["auto_on"] != 300.0 {
		t.Errorf("details = %v", got.Details)
	}
}

func TestCreate_RequiresActionAndEntity(t *testing.T) {
	repo := setupRepo(t)

	if err := repo.Create(context.Background(), &AuditLog{EntityType: EntityDevice}); err == nil {
		t.Error("missing action should fail")
	}
	if err := repo.Create(context.Background(), &AuditLog{Action: ActionCreate}); err == nil {
		t.Error("missing entity type should fail")
	}
}

func TestList_FiltersAndPaging(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []AuditLog{
		{Action: ActionCreate, EntityType: EntityDevice, EntityID: "L1"},
		{Action: ActionCreate, EntityType: EntitySensor, EntityID: "S1"},
		{Action: ActionLink, EntityType: EntityDevice, EntityID: "L1"},
		{Action: ActionPause, EntityType: EntityDevice, EntityID: "L1"},
		{Action: ActionUnlink, EntityType: EntityDevice, EntityID: "L2"},
	}
	for i := range entries {
		entries[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create(%d) error: %v", i, err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
		wantLen   int
	}{
		{"all newest first", Filter{}, 5, ActionUnlink, 5},
		{"by action", Filter{Action: ActionCreate}, 2, ActionCreate, 2},
		{"by entity type", Filter{EntityType: EntitySensor}, 1, ActionCreate, 1},
		{"by entity id", Filter{EntityType: EntityDevice, EntityID: "L1"}, 3, ActionPause, 3},
		{"paged", Filter{Limit: 2, Offset: 1}, 5, ActionPause, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if result.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", result.Total, tt.wantTotal)
			}
			if len(result.Logs) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(result.Logs), tt.wantLen)
			}
			if result.Logs[0].Action != tt.wantFirst {
				t.Errorf("first action = %q, want %q", result.Logs[0].Action, tt.wantFirst)
			}
		})
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := setupRepo(t)

	result, err := repo.List(context.Background(), Filter{Limit: 10000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if result.Limit != maxListLimit || result.Offset != 0 {
		t.Errorf("limit/offset = %d/%d, want %d/0", result.Limit, result.Offset, maxListLimit)
	}
	if result.Logs == nil {
		t.Error("Logs should be an empty slice, not nil")
	}
}

func TestCreate_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(sqlmock.ErrCancelled)

	repo := NewSQLiteRepository(db)
	if err := repo.Create(context.Background(), &AuditLog{Action: ActionDelete, EntityType: EntityDevice}); err == nil {
		t.Error("Create() should surface the database error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
