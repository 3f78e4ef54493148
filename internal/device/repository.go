package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByDeviceID retrieves a device by its external identity.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByDeviceID(ctx context.Context, deviceID string) (*Device, error)

	// List retrieves devices with pagination. A zero limit returns all
	// devices; status filters when non-empty. Returns the page and the
	// total count matching the filter.
	List(ctx context.Context, opts ListOptions) ([]Device, int, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the device_id is already registered.
	Create(ctx context.Context, dev *Device) error

	// Update modifies the mutable fields (name, status) of an existing
	// device. Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, dev *Device) error

	// Delete removes a device by its external identity.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, deviceID string) error

	// UpdateLastSeen stamps the device's last contact time.
	UpdateLastSeen(ctx context.Context, deviceID string, seen time.Time) error
}

// ListOptions controls pagination and filtering for List.
type ListOptions struct {
	Offset int
	Limit  int
	Status Status // empty = all
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, device_id, name, status, key_hash, key_salt,
	last_seen_at, created_at, updated_at`

// GetByDeviceID retrieves a device by its external identity.
func (r *SQLiteRepository) GetByDeviceID(ctx context.Context, deviceID string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_id = ?`

	dev, err := scanDevice(r.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by device_id: %w", err)
	}
	return dev, nil
}

// List retrieves devices with pagination and optional status filter.
func (r *SQLiteRepository) List(ctx context.Context, opts ListOptions) ([]Device, int, error) {
	where := ""
	args := []any{}
	if opts.Status != "" {
		where = " WHERE status = ?"
		args = append(args, string(opts.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting devices: %w", err)
	}

	query := `SELECT ` + deviceColumns + ` FROM devices` + where + ` ORDER BY name`
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	var devices []Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *dev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, total, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, dev *Device) error {
	if err := dev.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO devices (id, device_id, name, status, key_hash, key_salt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		dev.ID,
		dev.DeviceID,
		dev.Name,
		string(dev.Status),
		dev.KeyHash,
		dev.KeySalt,
		dev.CreatedAt.UTC().Format(time.RFC3339),
		dev.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update modifies name and status of an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, dev *Device) error {
	if err := dev.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE devices
		SET name = ?, status = ?, updated_at = ?
		WHERE device_id = ?`

	res, err := r.db.ExecContext(ctx, query,
		dev.Name,
		string(dev.Status),
		time.Now().UTC().Format(time.RFC3339),
		dev.DeviceID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device by its external identity.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE device_id = ?", deviceID)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// UpdateLastSeen stamps the device's last contact time.
func (r *SQLiteRepository) UpdateLastSeen(ctx context.Context, deviceID string, seen time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE devices SET last_seen_at = ? WHERE device_id = ?",
		seen.UTC().Format(time.RFC3339),
		deviceID,
	)
	if err != nil {
		return fmt.Errorf("updating last seen: %w", err)
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanDevice.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans one device row.
func scanDevice(row rowScanner) (*Device, error) {
	var (
		dev        Device
		status     string
		lastSeen   sql.NullString
		createdAt  string
		updatedAt  string
	)

	if err := row.Scan(
		&dev.ID,
		&dev.DeviceID,
		&dev.Name,
		&status,
		&dev.KeyHash,
		&dev.KeySalt,
		&lastSeen,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	dev.Status = Status(status)
	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			dev.LastSeenAt = &t
		}
	}
	// Timestamps are written by us in RFC3339; parse errors leave zero times.
	dev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	dev.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
	return &dev, nil
}
