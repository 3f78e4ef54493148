package broker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/tirtalab/aquasense-core/internal/infrastructure/logging"
)

// newTestRouter wires a router, lifecycle and registry around a shared hub.
func newTestRouter() (*Router, *Lifecycle, *MemoryRegistry) {
	registry := NewMemoryRegistry()
	hub := NewHub(logging.Default())
	lc := NewLifecycle(registry, &fakeDirectory{allow: true}, hub, NopBus{}, logging.Default())
	rt := NewRouter(registry, hub, NopBus{}, logging.Default())
	return rt, lc, registry
}

func TestRelayTelemetry(t *testing.T) {
	rt, lc, reg := newTestRouter()
	ctx := context.Background()

	prod := newFakeConn("prod-1")
	obs1 := newFakeConn("obs-1")
	obs2 := newFakeConn("obs-2")
	if err := connectSession(lc, prod, "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	for _, obs := range []*fakeConn{obs1, obs2} {
		if err := connectSession(lc, obs, "pond-unit-1", RoleObserver); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
	}

	payload := json.RawMessage(`{"ph":7.2,"tds":410}`)
	rt.RelayTelemetry(ctx, "prod-1", "pond-unit-1", payload)

	// Both observers receive the update; the producer only has its joined
	// event.
	for _, obs := range []*fakeConn{obs1, obs2} {
		ev, ok := obs.lastEvent()
		if !ok || ev.Type != EventUpdate {
			t.Fatalf("%s: expected update event, got %+v", obs.SessionID(), ev)
		}
		if string(ev.Payload) != string(payload) {
			t.Errorf("%s: payload = %s, want %s", obs.SessionID(), ev.Payload, payload)
		}
		if ev.DeviceID != "pond-unit-1" {
			t.Errorf("%s: device_id = %q", obs.SessionID(), ev.DeviceID)
		}
	}
	if ev, _ := prod.lastEvent(); ev.Type == EventUpdate {
		t.Error("producer should not receive its own update")
	}

	// The payload is retained for the snapshot API.
	last, err := reg.LastPayload(ctx, "pond-unit-1")
	if err != nil {
		t.Fatalf("LastPayload() error = %v", err)
	}
	if string(last) != string(payload) {
		t.Errorf("LastPayload() = %s, want %s", last, payload)
	}
}

func TestRelayTelemetryLastWriteWins(t *testing.T) {
	rt, lc, reg := newTestRouter()
	ctx := context.Background()

	if err := connectSession(lc, newFakeConn("prod-1"), "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	rt.RelayTelemetry(ctx, "prod-1", "pond-unit-1", json.RawMessage(`{"seq":1}`))
	rt.RelayTelemetry(ctx, "prod-1", "pond-unit-1", json.RawMessage(`{"seq":2}`))

	last, _ := reg.LastPayload(ctx, "pond-unit-1")
	if string(last) != `{"seq":2}` {
		t.Errorf("LastPayload() = %s, want the newest payload", last)
	}
}

func TestRelayTelemetryFromObserverDropped(t *testing.T) {
	rt, lc, reg := newTestRouter()
	ctx := context.Background()

	prod := newFakeConn("prod-1")
	obs := newFakeConn("obs-1")
	if err := connectSession(lc, prod, "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := connectSession(lc, obs, "pond-unit-1", RoleObserver); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	rt.RelayTelemetry(ctx, "obs-1", "pond-unit-1", json.RawMessage(`{"forged":true}`))

	// Silently dropped: nothing recorded, nothing relayed.
	last, _ := reg.LastPayload(ctx, "pond-unit-1")
	if last != nil {
		t.Errorf("LastPayload() = %s, want nil", last)
	}
	if ev, _ := prod.lastEvent(); ev.Type == EventUpdate {
		t.Error("producer should not receive an update from a non-producer")
	}
	if ev, _ := obs.lastEvent(); ev.Type == EventError {
		t.Error("drop is silent, no error event goes back to the sender")
	}
}

func TestRelayTelemetryUnknownSession(t *testing.T) {
	rt, _, reg := newTestRouter()
	ctx := context.Background()

	rt.RelayTelemetry(ctx, "stranger", "pond-unit-1", json.RawMessage(`{}`))

	last, _ := reg.LastPayload(ctx, "pond-unit-1")
	if last != nil {
		t.Errorf("LastPayload() = %s, want nil", last)
	}
}

func TestRelayEcho(t *testing.T) {
	rt, lc, _ := newTestRouter()
	ctx := context.Background()

	prod := newFakeConn("prod-1")
	obs := newFakeConn("obs-1")
	if err := connectSession(lc, prod, "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := connectSession(lc, obs, "pond-unit-1", RoleObserver); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	message := json.RawMessage(`"hello"`)
	rt.RelayEcho(ctx, "obs-1", message)

	ev, ok := obs.lastEvent()
	if !ok || ev.Type != EventAck {
		t.Fatalf("expected ack event, got %+v", ev)
	}
	if ev.Role != RoleObserver {
		t.Errorf("ack role = %q, want observer", ev.Role)
	}
	if string(ev.Payload) != string(message) {
		t.Errorf("ack payload = %s, want %s", ev.Payload, message)
	}

	// Only the originator hears the echo.
	if ev, _ := prod.lastEvent(); ev.Type == EventAck {
		t.Error("echo should not reach other members")
	}
}

func TestRelayEchoUnknownSession(t *testing.T) {
	rt, _, _ := newTestRouter()

	// Must not panic or send anything; unknown sessions are a no-op.
	rt.RelayEcho(context.Background(), "stranger", json.RawMessage(`"ping"`))
}
