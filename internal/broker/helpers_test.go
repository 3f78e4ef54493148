package broker

import (
	"context"
	"sync"

	"github.com/tirtalab/aquasense-core/internal/infrastructure/logging"
)

// fakeConn is an in-memory Conn recording everything sent to it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Event
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) SessionID() string { return c.id }

func (c *fakeConn) Send(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *fakeConn) CloseForced() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sent() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) lastEvent() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return Event{}, false
	}
	return c.events[len(c.events)-1], true
}

// fakeDirectory authorises by static decision, optionally failing.
type fakeDirectory struct {
	allow bool
	err   error
}

func (d *fakeDirectory) Authorize(context.Context, string, Role, Credential) (bool, error) {
	return d.allow, d.err
}

// newTestLifecycle wires a lifecycle manager over an in-memory registry
// with a permissive directory.
func newTestLifecycle() (*Lifecycle, *MemoryRegistry, *Hub) {
	registry := NewMemoryRegistry()
	hub := NewHub(logging.Default())
	lc := NewLifecycle(registry, &fakeDirectory{allow: true}, hub, NopBus{}, logging.Default())
	return lc, registry, hub
}

// connectSession runs the admission flow for a fake connection.
func connectSession(lc *Lifecycle, conn *fakeConn, deviceID string, role Role) error {
	return lc.Connect(context.Background(), conn, ConnectRequest{
		DeviceID: deviceID,
		Role:     role,
	})
}
