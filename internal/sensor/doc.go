// Package sensor persists calibrated water-quality readings.
//
// Readings arrive two ways: over the MQTT ingest bridge
// (aquasense/telemetry/{device_id}) and through the REST API. Both paths
// run through Service, which validates the source device, calibrates the
// raw measurement, stores the result in SQLite and mirrors it to InfluxDB
// for time-series queries.
//
// # Architecture
//
//	MQTT / REST
//	     |
//	     v
//	  Service ──> calibration.Engine
//	     |
//	     +──> SQLiteRepository (system of record)
//	     +──> influxdb.Client  (best effort mirror)
//
// InfluxDB writes are asynchronous and never fail a reading; SQLite is the
// system of record.
package sensor
