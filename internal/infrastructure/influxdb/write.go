package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReading writes one calibrated sensor reading to InfluxDB.
//
// This is the primary method for recording water-quality telemetry.
// The write is non-blocking; points are batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the sensor node (e.g., "pond-unit-3")
//   - sensorType: The quantity measured ("ph", "tds", "turbidity")
//   - value: Calibrated value in the sensor type's physical unit
//   - raw: Raw ADC value the calibration was derived from
//
// Example:
//
//	client.WriteReading("pond-unit-3", "ph", 7.2, 2105)
func (c *Client) WriteReading(deviceID, sensorType string, value float64, raw float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"device_id":   deviceID,
			"sensor_type": sensorType,
		},
		map[string]interface{}{
			"value": value,
			"raw":   raw,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteReadingAt writes a reading with an explicit timestamp, for nodes that
// buffer readings during connectivity gaps and upload them late.
func (c *Client) WriteReadingAt(deviceID, sensorType string, value float64, raw float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"device_id":   deviceID,
			"sensor_type": sensorType,
		},
		map[string]interface{}{
			"value": value,
			"raw":   raw,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceStatus records an online/offline transition for a device.
//
// Parameters:
//   - deviceID: Device identifier
//   - online: Whether the device is reachable
func (c *Client) WriteDeviceStatus(deviceID string, online bool) {
	if !c.IsConnected() {
		return
	}

	status := 0.0
	if online {
		status = 1.0
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"online": status,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
