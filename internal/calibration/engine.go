package calibration

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ESP32 ADC characteristics. All supported sensor boards share the same
// reference voltage and resolution.
const (
	// MaxVoltage is the ESP32 ADC reference voltage.
	MaxVoltage = 3.3

	// ADCResolution is the maximum 12-bit ADC count (2^12 - 1).
	ADCResolution = 4095
)

// Errors returned by the engine.
var (
	// ErrUnknownSensorType is returned for sensor types without calibration
	// parameters.
	ErrUnknownSensorType = errors.New("calibration: unknown sensor type")

	// ErrRawOutOfRange is returned when the raw value is outside both the
	// voltage range (0-3.3) and the ADC range (0-4095).
	ErrRawOutOfRange = errors.New("calibration: raw value out of range")
)

// Params holds the linear calibration for one sensor type.
//
// Value = Slope*voltage + Intercept, clamped to [Min, Max]. For pH the
// intercept is expressed through the neutral point instead (see calibrate).
type Params struct {
	Slope      float64
	Intercept  float64
	Min        float64
	Max        float64
	Unit       string
	NeutralADC float64 // pH only: ADC count at the neutral point
}

// Reading is a calibrated measurement.
type Reading struct {
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
	Raw     float64 `json:"raw_value"`
	ADC     int     `json:"adc_value"`
	Voltage float64 `json:"voltage"`
}

// Engine applies per-sensor-type calibration. The zero value is not usable;
// create one with NewEngine.
type Engine struct {
	params map[string]Params
}

// NewEngine creates an engine with the default calibration parameters used
// by the production sensor boards.
func NewEngine() *Engine {
	return &Engine{
		params: map[string]Params{
			"ph": {
				Slope:      3.5, // pH per volt
				Min:        0.0,
				Max:        14.0,
				Unit:       "pH",
				NeutralADC: 2048, // ~1.65 V at pH 7
			},
			"tds": {
				Slope:     500.0, // ppm per volt
				Intercept: 0.0,
				Min:       0.0,
				Max:       2000.0,
				Unit:      "ppm",
			},
			"turbidity": {
				Slope:     -1000.0, // higher voltage = clearer water
				Intercept: 3000.0,
				Min:       0.0,
				Max:       3000.0,
				Unit:      "NTU",
			},
		},
	}
}

// SupportedTypes returns the sensor types the engine can calibrate.
func (e *Engine) SupportedTypes() []string {
	types := make([]string, 0, len(e.params))
	for t := range e.params {
		types = append(types, t)
	}
	return types
}

// Supports reports whether the sensor type has calibration parameters.
func (e *Engine) Supports(sensorType string) bool {
	_, ok := e.params[strings.ToLower(sensorType)]
	return ok
}

// Calibrate converts a raw sensor value into a physical reading.
//
// The raw value is interpreted as a voltage when it fits the 0-3.3 V range,
// otherwise as an ADC count; values outside both ranges are rejected.
//
// Parameters:
//   - sensorType: "ph", "tds" or "turbidity" (case-insensitive)
//   - raw: raw ADC count (0-4095) or voltage (0-3.3)
//
// Returns:
//   - Reading: the calibrated value, clamped to the sensor's valid range
//   - error: ErrUnknownSensorType or ErrRawOutOfRange
func (e *Engine) Calibrate(sensorType string, raw float64) (Reading, error) {
	sensorType = strings.ToLower(sensorType)
	p, ok := e.params[sensorType]
	if !ok {
		return Reading{}, fmt.Errorf("%w: %q", ErrUnknownSensorType, sensorType)
	}

	voltage, adc, err := normaliseRaw(raw)
	if err != nil {
		return Reading{}, err
	}

	var value float64
	if sensorType == "ph" {
		// pH = slope * (voltage - neutral_voltage) + 7.0
		neutralVoltage := (p.NeutralADC / ADCResolution) * MaxVoltage
		value = p.Slope*(voltage-neutralVoltage) + 7.0
	} else {
		value = p.Slope*voltage + p.Intercept
	}

	value = clamp(value, p.Min, p.Max)

	return Reading{
		Value:   round(value, 2),
		Unit:    p.Unit,
		Raw:     raw,
		ADC:     adc,
		Voltage: round(voltage, 4),
	}, nil
}

// normaliseRaw resolves a raw input into (voltage, adc count).
func normaliseRaw(raw float64) (voltage float64, adc int, err error) {
	switch {
	case raw < 0:
		return 0, 0, fmt.Errorf("%w: %v", ErrRawOutOfRange, raw)
	case raw <= MaxVoltage:
		voltage = raw
		adc = int((voltage / MaxVoltage) * ADCResolution)
	case raw <= ADCResolution:
		adc = int(raw)
		voltage = (raw / ADCResolution) * MaxVoltage
	default:
		return 0, 0, fmt.Errorf("%w: %v", ErrRawOutOfRange, raw)
	}
	return voltage, adc, nil
}

func clamp(v, min, max float64) float64 {
	return math.Max(min, math.Min(max, v))
}

// round rounds to the given number of decimal places.
func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
