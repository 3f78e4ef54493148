package sensor

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the readings table.
// The foreign key to devices is omitted so repository tests stand alone.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE sensor_readings (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			sensor_type TEXT NOT NULL,
			value REAL NOT NULL,
			raw_value REAL NOT NULL,
			unit TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_readings_device_type ON sensor_readings(device_id, sensor_type);
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

func storeTestReading(t *testing.T, repo *SQLiteRepository, deviceID, sensorType string, value float64, recordedAt time.Time) *Reading {
	t.Helper()

	reading := &Reading{
		ID:         uuid.New(),
		DeviceID:   deviceID,
		SensorType: sensorType,
		Value:      value,
		RawValue:   value / 2,
		Unit:       "pH",
		RecordedAt: recordedAt,
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), reading); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return reading
}

func TestCreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		storeTestReading(t, repo, "pond-unit-1", "ph", 7.0+float64(i), base.Add(time.Duration(i)*time.Minute))
	}

	readings, total, err := repo.ListByDevice(ctx, "pond-unit-1", "", 0, 0)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(readings) != 3 {
		t.Fatalf("len(readings) = %d, want 3", len(readings))
	}

	// Newest first.
	if readings[0].Value != 9.0 {
		t.Errorf("readings[0].Value = %v, want 9.0", readings[0].Value)
	}
	if !readings[0].RecordedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("readings[0].RecordedAt = %v, want %v", readings[0].RecordedAt, base.Add(2*time.Minute))
	}
}

func TestCreateInvalid(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	reading := &Reading{
		ID:         uuid.New(),
		SensorType: "ph",
		RecordedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), reading); err == nil {
		t.Error("Create() with missing device_id should fail")
	}
}

func TestListByDeviceFilter(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	storeTestReading(t, repo, "pond-unit-1", "ph", 7.1, base)
	storeTestReading(t, repo, "pond-unit-1", "tds", 450, base.Add(time.Minute))
	storeTestReading(t, repo, "pond-unit-2", "ph", 6.8, base)

	readings, total, err := repo.ListByDevice(ctx, "pond-unit-1", "ph", 0, 0)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(readings) != 1 || readings[0].SensorType != "ph" {
		t.Fatalf("unexpected readings: %+v", readings)
	}
	if readings[0].DeviceID != "pond-unit-1" {
		t.Errorf("DeviceID = %q, want %q", readings[0].DeviceID, "pond-unit-1")
	}
}

func TestListByDevicePagination(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		storeTestReading(t, repo, "pond-unit-1", "ph", float64(i), base.Add(time.Duration(i)*time.Minute))
	}

	page, total, err := repo.ListByDevice(ctx, "pond-unit-1", "", 2, 2)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("len(page) = %d, want 2", len(page))
	}
	// Newest first, so offset 2 starts at the third-newest reading.
	if page[0].Value != 2.0 {
		t.Errorf("page[0].Value = %v, want 2.0", page[0].Value)
	}
}

func TestListByDeviceEmpty(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	readings, total, err := repo.ListByDevice(context.Background(), "absent", "", 0, 50)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if total != 0 || len(readings) != 0 {
		t.Errorf("expected no readings, got total=%d len=%d", total, len(readings))
	}
}

func TestLatest(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		storeTestReading(t, repo, "pond-unit-1", "ph", 7.0+float64(i), base.Add(time.Duration(i)*time.Minute))
		storeTestReading(t, repo, "pond-unit-1", "tds", 400+float64(i), base.Add(time.Duration(i)*time.Minute))
	}
	storeTestReading(t, repo, "pond-unit-2", "ph", 5.5, base.Add(time.Hour))

	latest, err := repo.Latest(ctx, "pond-unit-1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("len(latest) = %d, want 2", len(latest))
	}

	// Ordered by sensor type, each the most recent of its type.
	want := map[string]float64{"ph": 9.0, "tds": 402}
	for _, reading := range latest {
		if reading.Value != want[reading.SensorType] {
			t.Errorf("latest %s value = %v, want %v", reading.SensorType, reading.Value, want[reading.SensorType])
		}
	}
	if latest[0].SensorType != "ph" || latest[1].SensorType != "tds" {
		t.Errorf("unexpected type order: %s, %s", latest[0].SensorType, latest[1].SensorType)
	}
}

func TestLatestForUnknownDevice(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	latest, err := repo.Latest(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if len(latest) != 0 {
		t.Errorf("len(latest) = %d, want 0", len(latest))
	}
}
