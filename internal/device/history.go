package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Transition source values.
const (
	SourceAutomation = "automation"
	SourceManual     = "manual"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// TransitionEntry is one recorded on/off change of a device.
type TransitionEntry struct {
	ID       int64   `json:"id"`
	DeviceID string  `json:"device_id"`
	SensorID string  `json:"sensor_id,omitempty"`
	On       bool    `json:"on"`
	Reading  float64 `json:"reading"`

	// Source identifies what caused the change (automation, manual).
	Source string `json:"source"`

	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores and retrieves device transition history.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// RecordTransition records one applied transition.
	RecordTransition(ctx context.Context, entry TransitionEntry) error

	// GetHistory returns recent transitions for the device, newest first.
	// The limit is clamped to the implementation's bounds.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]TransitionEntry, error)

	// PruneHistory deletes entries older than the given duration and
	// returns how many were removed.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteHistoryRepository implements HistoryRepository using the
// transition_history table.
type SQLiteHistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteHistoryRepository creates a new SQLite transition history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db, now: time.Now}
}

// RecordTransition inserts a new history row.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - entry: Transition to persist; Source defaults to automation and
//     CreatedAt to now when unset
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHistoryRepository) RecordTransition(ctx context.Context, entry TransitionEntry) error {
	if entry.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if entry.Source == "" {
		entry.Source = SourceAutomation
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}

	var sensorID sql.NullString
	if entry.SensorID != "" {
		sensorID = sql.NullString{String: entry.SensorID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transition_history (device_id, sensor_id, is_on, reading, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.DeviceID,
		sensorID,
		boolToInt(entry.On),
		entry.Reading,
		entry.Source,
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting transition history: %w", err)
	}

	return nil
}

// GetHistory returns recent transitions for a device, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []TransitionEntry: History entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, deviceID string, limit int) ([]TransitionEntry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, sensor_id, is_on, reading, source, created_at
		 FROM transition_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transition history: %w", err)
	}
	defer rows.Close()

	entries := make([]TransitionEntry, 0, limit)
	for rows.Next() {
		var entry TransitionEntry
		var sensorID sql.NullString
		var isOn int
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &sensorID, &isOn, &entry.Reading, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning transition history: %w", err)
		}
		entry.SensorID = sensorID.String
		entry.On = isOn != 0

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transition history: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes history entries older than the given duration.
func (r *SQLiteHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM transition_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting transition history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
