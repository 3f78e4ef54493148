package device

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/tirtalab/aquasense-core/internal/infrastructure/logging"
)

// Directory answers credential checks for producer connections. It is
// backed by the device repository; any store failure propagates so the
// caller refuses the connection rather than guessing.
type Directory struct {
	repo   Repository
	logger *logging.Logger
}

// NewDirectory creates a directory over the given repository.
func NewDirectory(repo Repository, logger *logging.Logger) *Directory {
	return &Directory{
		repo:   repo,
		logger: logger.With("component", "device-directory"),
	}
}

// Authorize verifies a presented key and salt against the stored device
// record. Only active devices may authenticate. It returns (false, nil)
// for bad credentials and a non-nil error only when the store could not
// be consulted.
func (d *Directory) Authorize(ctx context.Context, deviceID, key, salt string) (bool, error) {
	dev, err := d.repo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			d.logger.Debug("auth rejected: unknown device", "device_id", deviceID)
			return false, nil
		}
		return false, fmt.Errorf("looking up device %s: %w", deviceID, err)
	}

	if dev.Status != StatusActive {
		d.logger.Debug("auth rejected: device not active",
			"device_id", deviceID,
			"status", dev.Status,
		)
		return false, nil
	}

	saltOK := subtle.ConstantTimeCompare([]byte(salt), []byte(dev.KeySalt)) == 1
	hashOK := subtle.ConstantTimeCompare([]byte(HashKey(key, salt)), []byte(dev.KeyHash)) == 1
	if !saltOK || !hashOK {
		d.logger.Debug("auth rejected: credential mismatch", "device_id", deviceID)
		return false, nil
	}
	return true, nil
}
