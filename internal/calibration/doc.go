// Package calibration converts raw sensor output from ESP32-class nodes into
// physical water-quality units.
//
// The nodes report either a raw 12-bit ADC count (0-4095 against a 3.3 V
// reference) or an already-converted voltage; the engine accepts both and
// applies the per-sensor-type linear calibration, clamping the result to the
// sensor's plausible range.
//
// Supported sensor types:
//   - ph: pH 0-14, slope around the neutral point (pH 7 at ~1.65 V)
//   - tds: total dissolved solids in ppm, 0-2000
//   - turbidity: NTU, 0-3000 (higher voltage means clearer water)
//
// The engine is pure: no I/O, no clock, safe for concurrent use. It is
// consumed by the persistence pipeline in internal/sensor, never by the
// real-time broker.
package calibration
