package broker

import (
	"encoding/json"
	"time"
)

// Role identifies what a session is allowed to do inside a device room.
type Role string

const (
	// RoleProducer is the single authoritative telemetry source for a room.
	RoleProducer Role = "producer"

	// RoleObserver is a read-only subscriber to a room's telemetry.
	RoleObserver Role = "observer"
)

// Valid reports whether the role is one of the two recognised values.
func (r Role) Valid() bool {
	return r == RoleProducer || r == RoleObserver
}

// Credential carries the material presented during connect. Producers
// authenticate with a device key/salt pair; observers with a bearer token.
// The broker never inspects these fields itself, it hands them to the
// Directory.
type Credential struct {
	Key   string
	Salt  string
	Token string
}

// ConnectRequest is the application-level payload of a transport connect
// event.
type ConnectRequest struct {
	DeviceID   string
	Role       Role
	Credential Credential
}

// Event types sent to connected sessions.
const (
	EventJoined = "joined"
	EventUpdate = "update"
	EventAck    = "ack"
	EventError  = "error"
)

// Event is an outbound message to a session. It is serialised as JSON by the
// transport adapter.
type Event struct {
	Type      string          `json:"type"`
	DeviceID  string          `json:"device_id,omitempty"`
	Role      Role            `json:"role,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// newEvent stamps an event with the current UTC time.
func newEvent(typ string) Event {
	return Event{
		Type:      typ,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Conn is the broker's view of one live transport connection. Implementations
// must make Send and CloseForced safe to call from any goroutine, and Send
// must never block (drop on a full buffer rather than stall the broker).
type Conn interface {
	// SessionID returns the opaque per-connection identifier assigned by the
	// transport layer.
	SessionID() string

	// Send queues an event for delivery. Best effort: delivery is not
	// acknowledged and may silently fail for slow or closing connections.
	Send(ev Event)

	// CloseForced tears the connection down without waiting for in-flight
	// writes. The transport is expected to raise its own disconnect event
	// afterwards.
	CloseForced()
}
