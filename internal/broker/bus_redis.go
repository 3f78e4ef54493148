package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tirtalab/aquasense-core/internal/infrastructure/logging"
)

// redisBusChannel is the pub/sub channel shared by all broker instances.
const redisBusChannel = "aquasense:events"

// busEnvelope is the wire format on the bus channel.
type busEnvelope struct {
	Kind     string          `json:"kind"` // "update" or "evict"
	Origin   string          `json:"origin"`
	DeviceID string          `json:"device_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Exclude  string          `json:"exclude,omitempty"`
	Sessions []string        `json:"sessions,omitempty"`
}

// RedisBus relays update and evict events between broker instances over
// Redis pub/sub. Each instance tags its messages with a random origin ID and
// skips its own, since the publisher has already handled local delivery.
type RedisBus struct {
	client   redis.UniversalClient
	hub      *Hub
	registry Registry
	logger   *logging.Logger
	origin   string
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRedisBus creates the bus and starts its subscription loop. Close stops
// the loop.
func NewRedisBus(client redis.UniversalClient, hub *Hub, registry Registry, logger *logging.Logger) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		client:   client,
		hub:      hub,
		registry: registry,
		logger:   logger,
		origin:   uuid.NewString(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go b.run(ctx)
	return b
}

// PublishUpdate publishes an update envelope for the other instances.
func (b *RedisBus) PublishUpdate(ctx context.Context, deviceID string, payload json.RawMessage, excludeSession string) error {
	return b.publish(ctx, busEnvelope{
		Kind:     "update",
		Origin:   b.origin,
		DeviceID: deviceID,
		Payload:  payload,
		Exclude:  excludeSession,
	})
}

// PublishEvict publishes an evict envelope for the other instances.
func (b *RedisBus) PublishEvict(ctx context.Context, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	return b.publish(ctx, busEnvelope{
		Kind:     "evict",
		Origin:   b.origin,
		Sessions: sessionIDs,
	})
}

func (b *RedisBus) publish(ctx context.Context, env busEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshalling bus envelope: %w", err)
	}
	if err := b.client.Publish(ctx, redisBusChannel, data).Err(); err != nil {
		return storeErr("bus publish", err)
	}
	return nil
}

// Close stops the subscription loop and waits for it to exit.
func (b *RedisBus) Close() error {
	b.cancel()
	<-b.done
	return nil
}

// run consumes the bus channel until the context is cancelled.
func (b *RedisBus) run(ctx context.Context) {
	defer close(b.done)

	sub := b.client.Subscribe(ctx, redisBusChannel)
	defer sub.Close() //nolint:errcheck // Best-effort close on shutdown

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handle(ctx, []byte(msg.Payload))
		}
	}
}

// handle applies one bus envelope to this instance's local sessions.
func (b *RedisBus) handle(ctx context.Context, raw []byte) {
	var env busEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		b.logger.Warn("dropping malformed bus envelope", "error", err)
		return
	}
	if env.Origin == b.origin {
		return
	}

	switch env.Kind {
	case "update":
		members, err := b.registry.Members(ctx, env.DeviceID)
		if err != nil {
			b.logger.Warn("bus update fanout failed", "device_id", env.DeviceID, "error", err)
			return
		}
		ev := newEvent(EventUpdate)
		ev.DeviceID = env.DeviceID
		ev.Payload = env.Payload
		for sid := range members {
			if sid == env.Exclude {
				continue
			}
			b.hub.SendTo(sid, ev)
		}
	case "evict":
		for _, sid := range env.Sessions {
			b.hub.CloseForced(sid)
		}
	default:
		b.logger.Warn("unknown bus envelope kind", "kind", env.Kind)
	}
}
