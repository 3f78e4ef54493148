package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tirtalab/aquasense-core/internal/calibration"
	"github.com/tirtalab/aquasense-core/internal/device"
	"github.com/tirtalab/aquasense-core/internal/infrastructure/influxdb"
	"github.com/tirtalab/aquasense-core/internal/infrastructure/logging"
)

// Service records calibrated readings. It validates the source device,
// runs the raw value through the calibration engine and persists the
// result. SQLite is the system of record; the InfluxDB mirror is best
// effort and never fails a reading.
type Service struct {
	readings Repository
	devices  device.Repository
	engine   *calibration.Engine
	influx   *influxdb.Client // nil when InfluxDB is disabled
	logger   *logging.Logger
}

// NewService creates a sensor service. influx may be nil when the
// time-series mirror is disabled.
func NewService(
	readings Repository,
	devices device.Repository,
	engine *calibration.Engine,
	influx *influxdb.Client,
	logger *logging.Logger,
) *Service {
	return &Service{
		readings: readings,
		devices:  devices,
		engine:   engine,
		influx:   influx,
		logger:   logger.With("component", "sensor"),
	}
}

// Record calibrates and persists a sample for the given device.
// The device must exist and be active.
func (s *Service) Record(ctx context.Context, deviceID string, sample Sample) (*Reading, error) {
	dev, err := s.devices.GetByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
		}
		return nil, fmt.Errorf("looking up device: %w", err)
	}
	if dev.Status != device.StatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnknownDevice, deviceID, dev.Status)
	}

	calibrated, err := s.engine.Calibrate(sample.SensorType, sample.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}

	now := time.Now().UTC()
	recordedAt := now
	if sample.RecordedAt != nil {
		recordedAt = sample.RecordedAt.UTC()
	}

	reading := &Reading{
		ID:         uuid.New(),
		DeviceID:   deviceID,
		SensorType: sample.SensorType,
		Value:      calibrated.Value,
		RawValue:   sample.Raw,
		Unit:       calibrated.Unit,
		RecordedAt: recordedAt,
		CreatedAt:  now,
	}

	if err := s.readings.Create(ctx, reading); err != nil {
		return nil, err
	}

	if err := s.devices.UpdateLastSeen(ctx, deviceID, now); err != nil {
		s.logger.Warn("failed to update device last seen",
			"device_id", deviceID,
			"error", err,
		)
	}

	if s.influx != nil {
		s.influx.WriteReadingAt(deviceID, sample.SensorType, calibrated.Value, sample.Raw, recordedAt)
	}

	s.logger.Debug("reading recorded",
		"device_id", deviceID,
		"sensor_type", sample.SensorType,
		"value", calibrated.Value,
		"unit", calibrated.Unit,
	)
	return reading, nil
}

// ListByDevice returns readings for a device, newest first.
func (s *Service) ListByDevice(ctx context.Context, deviceID, sensorType string, offset, limit int) ([]Reading, int, error) {
	return s.readings.ListByDevice(ctx, deviceID, sensorType, offset, limit)
}

// Latest returns the most recent reading of each sensor type for a device.
func (s *Service) Latest(ctx context.Context, deviceID string) ([]Reading, error) {
	return s.readings.Latest(ctx, deviceID)
}
