package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/tirtalab/aquasense-core/internal/infrastructure/logging"
)

// Directory is the external collaborator that decides whether a connect
// request is allowed to act for a device. Implementations must fail closed:
// an error means "deny", never "assume authorised".
type Directory interface {
	Authorize(ctx context.Context, deviceID string, role Role, cred Credential) (bool, error)
}

// Lifecycle is the connection lifecycle manager. It turns transport connect
// and disconnect events into registry mutations, applying the room
// invariants and issuing forced disconnects when they are violated.
//
// Connect is the sole authentication gate; no per-message authentication
// happens afterwards.
type Lifecycle struct {
	registry  Registry
	directory Directory
	hub       *Hub
	bus       Bus
	logger    *logging.Logger
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(registry Registry, directory Directory, hub *Hub, bus Bus, logger *logging.Logger) *Lifecycle {
	return &Lifecycle{
		registry:  registry,
		directory: directory,
		hub:       hub,
		bus:       bus,
		logger:    logger,
	}
}

// Connect admits or rejects a new session.
//
// The flow: authenticate via the directory, then, under the device's
// admission lock, read membership and apply the invariants:
//
//   - second producer: every existing member of the room is force-closed,
//     the room entry is deleted outright, and the newcomer is rejected too
//     (a producer collision invalidates the whole room rather than
//     replacing the incumbent);
//   - observer with no producer present: rejected;
//   - otherwise the session joins and receives a joined acknowledgment.
//
// On any rejection no membership state persists for the new session. Errors
// wrap one of ErrAuthRejected, ErrInvalidRole, ErrDuplicateProducer,
// ErrNoProducer, or ErrStoreUnavailable.
func (l *Lifecycle) Connect(ctx context.Context, conn Conn, req ConnectRequest) error {
	if req.DeviceID == "" {
		return fmt.Errorf("%w: empty device id", ErrAuthRejected)
	}
	if !req.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}

	ok, err := l.directory.Authorize(ctx, req.DeviceID, req.Role, req.Credential)
	if err != nil {
		// Directory failure denies the connection: fail closed.
		return fmt.Errorf("%w: directory: %v", ErrAuthRejected, err)
	}
	if !ok {
		l.logger.Warn("unauthorised connect attempt",
			"device_id", req.DeviceID,
			"role", req.Role,
			"session_id", conn.SessionID(),
		)
		return ErrAuthRejected
	}

	sessionID := conn.SessionID()

	// The hub must know the connection before its membership commits.
	// An eviction racing with admission resolves targets from the
	// registry member list; a session joined but not yet registered
	// would survive as a zombie the forced close cannot reach.
	l.hub.Register(conn)

	err = l.registry.WithDevice(ctx, req.DeviceID, func(ctx context.Context) error {
		members, err := l.registry.Members(ctx, req.DeviceID)
		if err != nil {
			return err
		}

		switch req.Role {
		case RoleProducer:
			if hasProducer(members) {
				l.evictRoom(ctx, req.DeviceID, members, "")
				l.logger.Warn("producer collision, room evicted",
					"device_id", req.DeviceID,
					"evicted", len(members),
				)
				return ErrDuplicateProducer
			}
		case RoleObserver:
			if !hasProducer(members) {
				return ErrNoProducer
			}
		}

		return l.registry.Join(ctx, req.DeviceID, sessionID, req.Role)
	})
	if err != nil {
		l.hub.Unregister(sessionID)
		return err
	}

	joined := newEvent(EventJoined)
	joined.DeviceID = req.DeviceID
	joined.Role = req.Role
	conn.Send(joined)

	l.logger.Info("session joined",
		"device_id", req.DeviceID,
		"role", req.Role,
		"session_id", sessionID,
	)
	return nil
}

// Disconnect handles a dropped transport, voluntary or forced.
//
// A producer departure cascades: every other member of the room is
// force-closed and the room entry is deleted outright rather than removed
// member by member, so a concurrently arriving join cannot survive in a
// half-dead room. An observer departure removes only that member.
//
// Unknown sessions are a benign no-op, which makes the second disconnect
// event raised after a forced close harmless.
func (l *Lifecycle) Disconnect(ctx context.Context, sessionID string) error {
	deviceID, role, err := l.registry.Find(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		l.hub.Unregister(sessionID)
		return nil
	}
	if err != nil {
		return err
	}

	err = l.registry.WithDevice(ctx, deviceID, func(ctx context.Context) error {
		// Re-resolve under the lock. Between the lookup above and lock
		// acquisition the session may have been evicted and the room
		// reclaimed by a new producer; a stale cascade here would tear
		// down the successor's valid room.
		curDevice, curRole, err := l.registry.Find(ctx, sessionID)
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if curDevice != deviceID || curRole != role {
			return nil
		}

		if role != RoleProducer {
			return l.registry.Leave(ctx, deviceID, sessionID)
		}

		members, err := l.registry.Members(ctx, deviceID)
		if err != nil {
			return err
		}
		l.evictRoom(ctx, deviceID, members, sessionID)
		l.logger.Info("producer left, room torn down",
			"device_id", deviceID,
			"session_id", sessionID,
			"evicted", len(members)-1,
		)
		return nil
	})

	l.hub.Unregister(sessionID)
	if err != nil {
		return err
	}

	l.logger.Debug("session disconnected",
		"device_id", deviceID,
		"role", role,
		"session_id", sessionID,
	)
	return nil
}

// evictRoom force-closes every member except skip and deletes the room
// entry. Forced closes are fire-and-forget signals; the evicted transports
// raise their own disconnect events, which resolve to "not found" because
// the room is already gone.
func (l *Lifecycle) evictRoom(ctx context.Context, deviceID string, members map[string]Role, skip string) {
	evicted := make([]string, 0, len(members))
	for sid := range members {
		if sid == skip {
			continue
		}
		evicted = append(evicted, sid)
		l.hub.CloseForced(sid)
	}

	if err := l.registry.DeleteRoom(ctx, deviceID); err != nil {
		l.logger.Error("deleting room after eviction", "device_id", deviceID, "error", err)
	}

	if err := l.bus.PublishEvict(ctx, evicted); err != nil {
		l.logger.Warn("publishing eviction to bus", "device_id", deviceID, "error", err)
	}
}
