package api

import (
	"context"
	"fmt"

	"github.com/tirtalab/aquasense-core/internal/auth"
	"github.com/tirtalab/aquasense-core/internal/broker"
	"github.com/tirtalab/aquasense-core/internal/device"
)

// BrokerDirectory adapts the two credential schemes to the broker's
// Directory interface: producers present their provisioned key and salt,
// observers present a bearer JWT.
type BrokerDirectory struct {
	devices   *device.Directory
	jwtSecret string
}

// NewBrokerDirectory creates the composite directory used by the broker
// lifecycle.
func NewBrokerDirectory(devices *device.Directory, jwtSecret string) *BrokerDirectory {
	return &BrokerDirectory{
		devices:   devices,
		jwtSecret: jwtSecret,
	}
}

// Authorize checks the credential appropriate to the role. Store failures
// propagate so the broker refuses the connection.
func (d *BrokerDirectory) Authorize(ctx context.Context, deviceID string, role broker.Role, cred broker.Credential) (bool, error) {
	switch role {
	case broker.RoleProducer:
		if cred.Key == "" || cred.Salt == "" {
			return false, nil
		}
		return d.devices.Authorize(ctx, deviceID, cred.Key, cred.Salt)

	case broker.RoleObserver:
		if cred.Token == "" {
			return false, nil
		}
		if _, err := auth.ParseToken(cred.Token, d.jwtSecret); err != nil {
			return false, nil
		}
		return true, nil

	default:
		return false, fmt.Errorf("unknown role %q", role)
	}
}
