package broker

import (
	"context"
	"encoding/json"
)

// Registry is the session registry: the sole writer of device-room state in
// the shared session store. The lifecycle manager and message router never
// touch the store directly.
//
// Every operation may fail with ErrStoreUnavailable when the backing store is
// unreachable. Callers fail closed.
type Registry interface {
	// Join adds (sessionID, role) to the device's room, creating the room if
	// absent. It does not enforce room invariants; the lifecycle manager
	// decides admission under WithDevice before calling Join.
	Join(ctx context.Context, deviceID, sessionID string, role Role) error

	// Leave removes the member. Deletes the room when it becomes empty.
	// No-op (not an error) if the member is already absent.
	Leave(ctx context.Context, deviceID, sessionID string) error

	// Members returns a snapshot of the room's membership. Empty map if the
	// room does not exist.
	Members(ctx context.Context, deviceID string) (map[string]Role, error)

	// Find resolves a session to its device and role. Returns
	// ErrSessionNotFound for unknown sessions.
	Find(ctx context.Context, sessionID string) (deviceID string, role Role, err error)

	// RecordPayload stores the latest telemetry blob for the device,
	// last-write-wins. Returns ErrNotProducer unless sessionID is currently
	// registered as the device's producer.
	RecordPayload(ctx context.Context, deviceID string, payload json.RawMessage, sessionID string) error

	// LastPayload returns the most recent telemetry blob, or nil if none has
	// been recorded.
	LastPayload(ctx context.Context, deviceID string) (json.RawMessage, error)

	// DeleteRoom removes the room entry and all of its members' reverse
	// index entries in one step. Used for duplicate-producer eviction and
	// producer-departure teardown, where removing members one by one would
	// race against concurrent joins.
	DeleteRoom(ctx context.Context, deviceID string) error

	// WithDevice runs fn under per-device mutual exclusion. All
	// read-decide-write sequences that consult room membership must run
	// inside it; two producers connecting concurrently would otherwise both
	// observe an empty room and both be admitted.
	WithDevice(ctx context.Context, deviceID string, fn func(ctx context.Context) error) error
}

// hasProducer reports whether any member of the snapshot holds the producer
// role.
func hasProducer(members map[string]Role) bool {
	for _, role := range members {
		if role == RoleProducer {
			return true
		}
	}
	return false
}
