package sensor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for sensor inventory persistence.
// Linked device sets are not stored; they are rebuilt from the link store.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Sensor, error)
	List(ctx context.Context) ([]Sensor, error)
	Create(ctx context.Context, sensor *Sensor) error
	UpdateReading(ctx context.Context, id string, reading float64) error
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed sensor repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectSensor = "SELECT id, name, type, reading, created_at, updated_at FROM sensors"

// GetByID retrieves a sensor by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Sensor, error) {
	s, err := scanSensor(r.db.QueryRowContext(ctx, selectSensor+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSensorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying sensor: %w", err)
	}
	return s, nil
}

// List retrieves all sensors ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Sensor, error) {
	rows, err := r.db.QueryContext(ctx, selectSensor+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	var sensors []Sensor
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sensor: %w", err)
		}
		sensors = append(sensors, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensors: %w", err)
	}

	return sensors, nil
}

// Create inserts a new sensor.
// Returns ErrSensorExists if a sensor with the same ID already exists.
func (r *SQLiteRepository) Create(ctx context.Context, sensor *Sensor) error {
	if sensor == nil {
		return ErrInvalidSensor
	}

	now := time.Now().UTC()
	if sensor.CreatedAt.IsZero() {
		sensor.CreatedAt = now
	}
	sensor.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sensors (id, name, type, reading, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sensor.ID,
		sensor.Name,
		string(sensor.Type),
		sensor.Reading,
		sensor.CreatedAt.Format(time.RFC3339),
		sensor.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrSensorExists
		}
		return fmt.Errorf("inserting sensor: %w", err)
	}

	return nil
}

// UpdateReading stores the latest reading so a restart resumes from it.
func (r *SQLiteRepository) UpdateReading(ctx context.Context, id string, reading float64) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE sensors SET reading = ?, updated_at = ? WHERE id = ?",
		reading,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating sensor reading: %w", err)
	}

	return requireAffected(result)
}

// Delete removes a sensor by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sensors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting sensor: %w", err)
	}

	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSensorNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSensor(scanner rowScanner) (*Sensor, error) {
	var s Sensor
	var sensorType, createdAt, updatedAt string

	if err := scanner.Scan(&s.ID, &s.Name, &sensorType, &s.Reading, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	s.Type = Type(sensorType)
	s.DeviceIDs = []string{}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // stored by us in RFC3339
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // stored by us in RFC3339

	return &s, nil
}
