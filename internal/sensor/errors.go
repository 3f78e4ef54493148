package sensor

import "errors"

var (
	// ErrReadingNotFound is returned when no reading matches the query.
	ErrReadingNotFound = errors.New("reading not found")

	// ErrInvalidReading is returned when a reading fails validation.
	ErrInvalidReading = errors.New("invalid reading")

	// ErrUnknownDevice is returned when a reading references a device
	// that is not registered.
	ErrUnknownDevice = errors.New("unknown device")
)
