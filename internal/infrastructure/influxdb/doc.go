// Package influxdb provides time-series persistence for AquaSense Core.
//
// This package wraps the InfluxDB v2 client with:
//   - Connection management and health checks
//   - Non-blocking batched writes via the async write API
//   - Helpers for the sensor_readings and device_status measurements
//
// Calibrated sensor readings flow here from the ingest pipeline; the
// real-time broker never writes time series itself.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading("pond-unit-3", "ph", 7.2, 2105)
//
// Thread Safety: all methods are safe for concurrent use; writes are
// batched internally by the client library.
package influxdb
