package sensor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reading is a single calibrated measurement from a device.
type Reading struct {
	ID         uuid.UUID `json:"id"`
	DeviceID   string    `json:"device_id"`
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	RawValue   float64   `json:"raw_value"`
	Unit       string    `json:"unit"`
	RecordedAt time.Time `json:"recorded_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the reading's required fields.
func (r *Reading) Validate() error {
	if r.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidReading)
	}
	if r.SensorType == "" {
		return fmt.Errorf("%w: sensor_type is required", ErrInvalidReading)
	}
	if r.RecordedAt.IsZero() {
		return fmt.Errorf("%w: recorded_at is required", ErrInvalidReading)
	}
	return nil
}

// Sample is a raw measurement before calibration, as received from a
// device over MQTT or the API.
type Sample struct {
	SensorType string     `json:"sensor_type"`
	Raw        float64    `json:"raw"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}
