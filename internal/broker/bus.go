package broker

import (
	"context"
	"encoding/json"
)

// Bus fans events out to the other broker instances serving the same shared
// session store. Publishing is fire-and-forget: a lost bus message degrades
// remote delivery, it never corrupts room state.
type Bus interface {
	// PublishUpdate asks every instance to deliver an update event to its
	// locally connected members of the device's room, skipping
	// excludeSession (the originating producer).
	PublishUpdate(ctx context.Context, deviceID string, payload json.RawMessage, excludeSession string) error

	// PublishEvict asks every instance to force-close the listed sessions
	// wherever they are connected.
	PublishEvict(ctx context.Context, sessionIDs []string) error

	// Close stops the subscription loop.
	Close() error
}

// NopBus is the Bus for single-instance deployments and tests: everything is
// local, so there is nothing to publish.
type NopBus struct{}

// PublishUpdate does nothing.
func (NopBus) PublishUpdate(context.Context, string, json.RawMessage, string) error { return nil }

// PublishEvict does nothing.
func (NopBus) PublishEvict(context.Context, []string) error { return nil }

// Close does nothing.
func (NopBus) Close() error { return nil }
