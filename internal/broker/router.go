package broker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/tirtalab/aquasense-core/internal/infrastructure/logging"
)

// Router relays messages between the members of a device room. It reads room
// membership from the registry and pushes to the transport layer through the
// hub and bus; it never mutates registry state beyond RecordPayload.
type Router struct {
	registry Registry
	hub      *Hub
	bus      Bus
	logger   *logging.Logger
}

// NewRouter creates a message router.
func NewRouter(registry Registry, hub *Hub, bus Bus, logger *logging.Logger) *Router {
	return &Router{
		registry: registry,
		hub:      hub,
		bus:      bus,
		logger:   logger,
	}
}

// RelayTelemetry records the payload and broadcasts an update event to every
// member of the device's room except the originating producer.
//
// The telemetry channel is at-most-once and fire-and-forget: a message from
// a session that is not the room's registered producer is dropped silently,
// as is telemetry that cannot be durably recorded. No error reaches the
// sender beyond the absence of relay.
func (rt *Router) RelayTelemetry(ctx context.Context, sessionID, deviceID string, payload json.RawMessage) {
	err := rt.registry.RecordPayload(ctx, deviceID, payload, sessionID)
	if errors.Is(err, ErrNotProducer) {
		rt.logger.Warn("telemetry from non-producer dropped",
			"device_id", deviceID,
			"session_id", sessionID,
		)
		return
	}
	if err != nil {
		rt.logger.Warn("telemetry dropped, store unavailable",
			"device_id", deviceID,
			"error", err,
		)
		return
	}

	members, err := rt.registry.Members(ctx, deviceID)
	if err != nil {
		rt.logger.Warn("telemetry fanout failed", "device_id", deviceID, "error", err)
		return
	}

	ev := newEvent(EventUpdate)
	ev.DeviceID = deviceID
	ev.Payload = payload

	sent := 0
	for sid := range members {
		if sid == sessionID {
			continue
		}
		if rt.hub.SendTo(sid, ev) {
			sent++
		}
	}

	if err := rt.bus.PublishUpdate(ctx, deviceID, payload, sessionID); err != nil {
		rt.logger.Warn("publishing update to bus", "device_id", deviceID, "error", err)
	}

	rt.logger.Debug("telemetry relayed",
		"device_id", deviceID,
		"local_recipients", sent,
	)
}

// RelayEcho replies to the originating session with an acknowledgment that
// embeds the session's resolved role. Liveness and debugging only, not
// telemetry. Unknown sessions are a no-op.
func (rt *Router) RelayEcho(ctx context.Context, sessionID string, message json.RawMessage) {
	_, role, err := rt.registry.Find(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return
	}
	if err != nil {
		rt.logger.Warn("echo lookup failed", "session_id", sessionID, "error", err)
		return
	}

	ack := newEvent(EventAck)
	ack.Role = role
	ack.Payload = message
	rt.hub.SendTo(sessionID, ack)
}
