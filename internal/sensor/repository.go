package sensor

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the interface for reading persistence.
type Repository interface {
	// Create inserts a new reading.
	Create(ctx context.Context, r *Reading) error

	// ListByDevice retrieves readings for a device, newest first, with
	// pagination. sensorType filters when non-empty. Returns the page
	// and the total count matching the filter.
	ListByDevice(ctx context.Context, deviceID, sensorType string, offset, limit int) ([]Reading, int, error)

	// Latest retrieves the most recent reading of each sensor type for
	// a device.
	Latest(ctx context.Context, deviceID string) ([]Reading, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const readingColumns = `id, device_id, sensor_type, value, raw_value, unit,
	recorded_at, created_at`

// Create inserts a new reading.
func (r *SQLiteRepository) Create(ctx context.Context, reading *Reading) error {
	if err := reading.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO sensor_readings (id, device_id, sensor_type, value, raw_value, unit, recorded_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		reading.ID,
		reading.DeviceID,
		reading.SensorType,
		reading.Value,
		reading.RawValue,
		reading.Unit,
		reading.RecordedAt.UTC().Format(time.RFC3339),
		reading.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// ListByDevice retrieves readings for a device, newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID, sensorType string, offset, limit int) ([]Reading, int, error) {
	where := " WHERE device_id = ?"
	args := []any{deviceID}
	if sensorType != "" {
		where += " AND sensor_type = ?"
		args = append(args, sensorType)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sensor_readings"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting readings: %w", err)
	}

	query := `SELECT ` + readingColumns + ` FROM sensor_readings` + where + ` ORDER BY recorded_at DESC`
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	readings, err := scanReadings(rows)
	if err != nil {
		return nil, 0, err
	}
	return readings, total, nil
}

// Latest retrieves the most recent reading of each sensor type for a device.
func (r *SQLiteRepository) Latest(ctx context.Context, deviceID string) ([]Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM sensor_readings
		WHERE device_id = ?
		  AND recorded_at = (
			SELECT MAX(recorded_at) FROM sensor_readings AS inner_r
			WHERE inner_r.device_id = sensor_readings.device_id
			  AND inner_r.sensor_type = sensor_readings.sensor_type
		  )
		ORDER BY sensor_type`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying latest readings: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	return scanReadings(rows)
}

func scanReadings(rows *sql.Rows) ([]Reading, error) {
	var readings []Reading
	for rows.Next() {
		var (
			reading    Reading
			recordedAt string
			createdAt  string
		)
		if err := rows.Scan(
			&reading.ID,
			&reading.DeviceID,
			&reading.SensorType,
			&reading.Value,
			&reading.RawValue,
			&reading.Unit,
			&recordedAt,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning reading row: %w", err)
		}
		reading.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt) //nolint:errcheck // Format is controlled
		reading.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)   //nolint:errcheck // Format is controlled
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}
