package device

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a device record.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusRetired  Status = "retired"
)

// Valid reports whether the status is a recognised value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusRetired:
		return true
	}
	return false
}

// Device represents one provisioned sensor node.
type Device struct {
	// ID is the internal record identifier (UUID).
	ID string `json:"id"`

	// DeviceID is the stable external identity the node presents when
	// connecting. Unique across the installation.
	DeviceID string `json:"device_id"`

	Name   string `json:"name"`
	Status Status `json:"status"`

	// KeyHash is hex(sha256(key + salt)). The clear key is never stored.
	KeyHash string `json:"-"`
	KeySalt string `json:"-"`

	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate checks the record's fields.
func (d *Device) Validate() error {
	if strings.TrimSpace(d.DeviceID) == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidDevice)
	}
	if strings.ContainsAny(d.DeviceID, " \t\n/") {
		return fmt.Errorf("%w: device_id must not contain whitespace or '/'", ErrInvalidDevice)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDevice, d.Status)
	}
	return nil
}

// Provision creates a new device record together with its one-time clear
// key. The key is returned to the caller for hand-over to the installer and
// only its salted hash is kept on the record.
func Provision(deviceID, name string) (*Device, string, error) {
	key, err := randomHex(16)
	if err != nil {
		return nil, "", fmt.Errorf("generating device key: %w", err)
	}
	salt, err := randomHex(8)
	if err != nil {
		return nil, "", fmt.Errorf("generating device salt: %w", err)
	}

	now := time.Now().UTC()
	dev := &Device{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Name:      name,
		Status:    StatusActive,
		KeyHash:   HashKey(key, salt),
		KeySalt:   salt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := dev.Validate(); err != nil {
		return nil, "", err
	}
	return dev, key, nil
}

// HashKey returns hex(sha256(key + salt)).
func HashKey(key, salt string) string {
	sum := sha256.Sum256([]byte(key + salt))
	return hex.EncodeToString(sum[:])
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
