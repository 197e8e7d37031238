package automation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
)

// linkColumns is the SELECT column list for automation_links queries.
const linkColumns = `device_id, sensor_id, device_type, sensor_type, auto_on, auto_off,
			off_threshold_used, enabled, updated_at`

// SQLiteLinkStore implements LinkStore on the automation_links table.
type SQLiteLinkStore struct {
	db *sql.DB
}

// NewSQLiteLinkStore creates a link store backed by an open SQLite database.
func NewSQLiteLinkStore(db *sql.DB) *SQLiteLinkStore {
	return &SQLiteLinkStore{db: db}
}

// LoadAll returns every row ordered by device ID.
func (s *SQLiteLinkStore) LoadAll(ctx context.Context) ([]AutomationLink, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+linkColumns+` FROM automation_links ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("querying automation links: %w", err)
	}
	defer rows.Close()

	var links []AutomationLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning automation link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating automation links: %w", err)
	}

	return links, nil
}

// Upsert inserts or replaces the row for link.DeviceID.
func (s *SQLiteLinkStore) Upsert(ctx context.Context, link AutomationLink) error {
	if link.UpdatedAt.IsZero() {
		link.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_links (`+linkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			sensor_id = excluded.sensor_id,
			device_type = excluded.device_type,
			sensor_type = excluded.sensor_type,
			auto_on = excluded.auto_on,
			auto_off = excluded.auto_off,
			off_threshold_used = excluded.off_threshold_used,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		link.DeviceID,
		link.SensorID,
		string(link.DeviceType),
		string(link.SensorType),
		link.AutoOn,
		link.AutoOff,
		boolToInt(link.OffThresholdUsed),
		boolToInt(link.Enabled),
		link.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting automation link: %w", err)
	}
	return nil
}

// Remove deletes the row for deviceID. A missing row is not an error.
func (s *SQLiteLinkStore) Remove(ctx context.Context, deviceID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM automation_links WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("deleting automation link: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(scanner rowScanner) (AutomationLink, error) {
	var l AutomationLink
	var deviceType, sensorType, updatedAt string
	var offUsed, enabled int

	err := scanner.Scan(
		&l.DeviceID,
		&l.SensorID,
		&deviceType,
		&sensorType,
		&l.AutoOn,
		&l.AutoOff,
		&offUsed,
		&enabled,
		&updatedAt,
	)
	if err != nil {
		return AutomationLink{}, err
	}

	l.DeviceType = device.Type(deviceType)
	l.SensorType = sensor.Type(sensorType)
	l.OffThresholdUsed = offUsed != 0
	l.Enabled = enabled != 0
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // stored by us in RFC3339

	return l, nil
}

// boolToInt converts a boolean to 0/1 for SQLite and spreadsheet storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
