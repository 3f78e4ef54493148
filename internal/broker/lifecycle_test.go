package broker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tirtalab/aquasense-core/internal/infrastructure/logging"
)

func TestConnectProducer(t *testing.T) {
	lc, reg, hub := newTestLifecycle()
	conn := newFakeConn("prod-1")

	if err := connectSession(lc, conn, "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	members, _ := reg.Members(context.Background(), "pond-unit-1")
	if members["prod-1"] != RoleProducer {
		t.Errorf("membership = %v, want prod-1 as producer", members)
	}
	if hub.Len() != 1 {
		t.Errorf("hub.Len() = %d, want 1", hub.Len())
	}

	ev, ok := conn.lastEvent()
	if !ok || ev.Type != EventJoined {
		t.Fatalf("expected joined event, got %+v", ev)
	}
	if ev.DeviceID != "pond-unit-1" || ev.Role != RoleProducer {
		t.Errorf("joined event = %+v", ev)
	}
}

func TestConnectObserverNeedsProducer(t *testing.T) {
	lc, reg, hub := newTestLifecycle()
	obs := newFakeConn("obs-1")

	err := connectSession(lc, obs, "pond-unit-1", RoleObserver)
	if !errors.Is(err, ErrNoProducer) {
		t.Fatalf("Connect() error = %v, want ErrNoProducer", err)
	}

	// Nothing persisted for the rejected observer.
	members, _ := reg.Members(context.Background(), "pond-unit-1")
	if len(members) != 0 {
		t.Errorf("membership = %v, want empty", members)
	}
	if hub.Len() != 0 {
		t.Errorf("hub.Len() = %d, want 0", hub.Len())
	}
}

func TestConnectObserverAfterProducer(t *testing.T) {
	lc, reg, _ := newTestLifecycle()
	prod := newFakeConn("prod-1")
	obs := newFakeConn("obs-1")

	if err := connectSession(lc, prod, "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("producer Connect() error = %v", err)
	}
	if err := connectSession(lc, obs, "pond-unit-1", RoleObserver); err != nil {
		t.Fatalf("observer Connect() error = %v", err)
	}

	members, _ := reg.Members(context.Background(), "pond-unit-1")
	if len(members) != 2 {
		t.Errorf("len(members) = %d, want 2", len(members))
	}
}

func TestConnectDuplicateProducerEvictsRoom(t *testing.T) {
	lc, reg, _ := newTestLifecycle()
	prod := newFakeConn("prod-1")
	obs := newFakeConn("obs-1")
	intruder := newFakeConn("prod-2")

	if err := connectSession(lc, prod, "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("producer Connect() error = %v", err)
	}
	if err := connectSession(lc, obs, "pond-unit-1", RoleObserver); err != nil {
		t.Fatalf("observer Connect() error = %v", err)
	}

	err := connectSession(lc, intruder, "pond-unit-1", RoleProducer)
	if !errors.Is(err, ErrDuplicateProducer) {
		t.Fatalf("Connect() error = %v, want ErrDuplicateProducer", err)
	}

	// The collision invalidates the whole room: incumbent and observer are
	// force-closed and the room is gone; the newcomer is not admitted.
	if !prod.isClosed() {
		t.Error("incumbent producer should be force-closed")
	}
	if !obs.isClosed() {
		t.Error("observer should be force-closed")
	}
	if intruder.isClosed() {
		t.Error("newcomer is rejected, not force-closed")
	}

	members, _ := reg.Members(context.Background(), "pond-unit-1")
	if len(members) != 0 {
		t.Errorf("membership = %v, want empty after eviction", members)
	}
}

func TestConnectRoomRecoversAfterEviction(t *testing.T) {
	lc, _, _ := newTestLifecycle()

	if err := connectSession(lc, newFakeConn("prod-1"), "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("producer Connect() error = %v", err)
	}
	if err := connectSession(lc, newFakeConn("prod-2"), "pond-unit-1", RoleProducer); !errors.Is(err, ErrDuplicateProducer) {
		t.Fatalf("second producer error = %v, want ErrDuplicateProducer", err)
	}

	// A fresh producer can claim the now-empty room.
	if err := connectSession(lc, newFakeConn("prod-3"), "pond-unit-1", RoleProducer); err != nil {
		t.Errorf("Connect() after eviction error = %v", err)
	}
}

func TestConnectRejectsInvalidRequests(t *testing.T) {
	lc, _, _ := newTestLifecycle()

	tests := []struct {
		name    string
		req     ConnectRequest
		wantErr error
	}{
		{"empty device id", ConnectRequest{Role: RoleProducer}, ErrAuthRejected},
		{"unknown role", ConnectRequest{DeviceID: "pond-unit-1", Role: "admin"}, ErrInvalidRole},
		{"empty role", ConnectRequest{DeviceID: "pond-unit-1"}, ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := lc.Connect(context.Background(), newFakeConn("s1"), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Connect() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnectUnauthorised(t *testing.T) {
	registry := NewMemoryRegistry()
	hub := NewHub(logging.Default())
	lc := NewLifecycle(registry, &fakeDirectory{allow: false}, hub, NopBus{}, logging.Default())

	err := connectSession(lc, newFakeConn("prod-1"), "pond-unit-1", RoleProducer)
	if !errors.Is(err, ErrAuthRejected) {
		t.Errorf("Connect() error = %v, want ErrAuthRejected", err)
	}
}

func TestConnectDirectoryFailureDenies(t *testing.T) {
	registry := NewMemoryRegistry()
	hub := NewHub(logging.Default())
	lc := NewLifecycle(registry, &fakeDirectory{err: errors.New("directory down")}, hub, NopBus{}, logging.Default())

	err := connectSession(lc, newFakeConn("prod-1"), "pond-unit-1", RoleProducer)
	if !errors.Is(err, ErrAuthRejected) {
		t.Errorf("Connect() error = %v, want ErrAuthRejected (fail closed)", err)
	}
	if hub.Len() != 0 {
		t.Errorf("hub.Len() = %d, want 0", hub.Len())
	}
}

func TestDisconnectObserver(t *testing.T) {
	lc, reg, hub := newTestLifecycle()
	prod := newFakeConn("prod-1")
	obs := newFakeConn("obs-1")
	ctx := context.Background()

	if err := connectSession(lc, prod, "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("producer Connect() error = %v", err)
	}
	if err := connectSession(lc, obs, "pond-unit-1", RoleObserver); err != nil {
		t.Fatalf("observer Connect() error = %v", err)
	}

	if err := lc.Disconnect(ctx, "obs-1"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	// The producer is unaffected.
	members, _ := reg.Members(ctx, "pond-unit-1")
	if len(members) != 1 || members["prod-1"] != RoleProducer {
		t.Errorf("membership = %v, want only the producer", members)
	}
	if prod.isClosed() {
		t.Error("producer should not be closed by an observer leaving")
	}
	if hub.Len() != 1 {
		t.Errorf("hub.Len() = %d, want 1", hub.Len())
	}
}

func TestDisconnectProducerTearsDownRoom(t *testing.T) {
	lc, reg, hub := newTestLifecycle()
	prod := newFakeConn("prod-1")
	obs1 := newFakeConn("obs-1")
	obs2 := newFakeConn("obs-2")
	ctx := context.Background()

	if err := connectSession(lc, prod, "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("producer Connect() error = %v", err)
	}
	for _, obs := range []*fakeConn{obs1, obs2} {
		if err := connectSession(lc, obs, "pond-unit-1", RoleObserver); err != nil {
			t.Fatalf("observer Connect() error = %v", err)
		}
	}

	if err := lc.Disconnect(ctx, "prod-1"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	if !obs1.isClosed() || !obs2.isClosed() {
		t.Error("observers should be force-closed when the producer leaves")
	}

	members, _ := reg.Members(ctx, "pond-unit-1")
	if len(members) != 0 {
		t.Errorf("membership = %v, want empty", members)
	}

	// The evicted observers' own disconnect events resolve as no-ops.
	if err := lc.Disconnect(ctx, "obs-1"); err != nil {
		t.Errorf("evicted observer Disconnect() error = %v", err)
	}
	if err := lc.Disconnect(ctx, "obs-2"); err != nil {
		t.Errorf("evicted observer Disconnect() error = %v", err)
	}
	if hub.Len() != 0 {
		t.Errorf("hub.Len() = %d, want 0", hub.Len())
	}
}

func TestDisconnectUnknownSession(t *testing.T) {
	lc, _, _ := newTestLifecycle()

	if err := lc.Disconnect(context.Background(), "never-connected"); err != nil {
		t.Errorf("Disconnect() error = %v, want nil", err)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	lc, _, _ := newTestLifecycle()
	ctx := context.Background()

	if err := connectSession(lc, newFakeConn("prod-1"), "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := lc.Disconnect(ctx, "prod-1"); err != nil {
		t.Fatalf("first Disconnect() error = %v", err)
	}
	if err := lc.Disconnect(ctx, "prod-1"); err != nil {
		t.Errorf("second Disconnect() error = %v", err)
	}
}

// pausingRegistry blocks the first Find for one session until released,
// holding a disconnect between its lookup and the device lock.
type pausingRegistry struct {
	*MemoryRegistry
	pauseSession string
	paused       chan struct{}
	release      chan struct{}
	once         sync.Once
}

func (r *pausingRegistry) Find(ctx context.Context, sessionID string) (string, Role, error) {
	deviceID, role, err := r.MemoryRegistry.Find(ctx, sessionID)
	if sessionID == r.pauseSession {
		r.once.Do(func() {
			close(r.paused)
			<-r.release
		})
	}
	return deviceID, role, err
}

// A disconnect whose session was evicted while the event was in flight
// must resolve as a no-op, not tear down the room a new producer has
// since legitimately claimed.
func TestDisconnectStaleAfterEviction(t *testing.T) {
	reg := &pausingRegistry{
		MemoryRegistry: NewMemoryRegistry(),
		pauseSession:   "prod-1",
		paused:         make(chan struct{}),
		release:        make(chan struct{}),
	}
	hub := NewHub(logging.Default())
	lc := NewLifecycle(reg, &fakeDirectory{allow: true}, hub, NopBus{}, logging.Default())
	ctx := context.Background()

	if err := connectSession(lc, newFakeConn("prod-1"), "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// prod-1's transport drops; its disconnect resolves the session and
	// then stalls before acquiring the device lock.
	done := make(chan error, 1)
	go func() {
		done <- lc.Disconnect(ctx, "prod-1")
	}()
	<-reg.paused

	// Meanwhile a colliding producer evicts the room and a fresh one
	// claims it.
	if err := connectSession(lc, newFakeConn("prod-2"), "pond-unit-1", RoleProducer); !errors.Is(err, ErrDuplicateProducer) {
		t.Fatalf("collision error = %v, want ErrDuplicateProducer", err)
	}
	successor := newFakeConn("prod-3")
	if err := connectSession(lc, successor, "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("successor Connect() error = %v", err)
	}

	close(reg.release)
	if err := <-done; err != nil {
		t.Fatalf("stale Disconnect() error = %v", err)
	}

	// The successor's room survives the stale disconnect untouched.
	if successor.isClosed() {
		t.Error("successor producer was force-closed by a stale disconnect")
	}
	members, err := reg.Members(ctx, "pond-unit-1")
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	if members["prod-3"] != RoleProducer || len(members) != 1 {
		t.Errorf("membership = %v, want only prod-3 as producer", members)
	}
}

// evictingRegistry force-closes the target through the hub the instant its
// Join commits, standing in for an eviction that lands between membership
// becoming visible and the connect flow returning.
type evictingRegistry struct {
	*MemoryRegistry
	hub    *Hub
	target string
}

func (r *evictingRegistry) Join(ctx context.Context, deviceID, sessionID string, role Role) error {
	if err := r.MemoryRegistry.Join(ctx, deviceID, sessionID, role); err != nil {
		return err
	}
	if sessionID == r.target {
		r.hub.CloseForced(sessionID)
	}
	return nil
}

// An eviction arriving the moment a session's membership commits must be
// able to reach the transport through the hub.
func TestConnectRegisteredBeforeJoinCommits(t *testing.T) {
	hub := NewHub(logging.Default())
	reg := &evictingRegistry{
		MemoryRegistry: NewMemoryRegistry(),
		hub:            hub,
		target:         "prod-1",
	}
	lc := NewLifecycle(reg, &fakeDirectory{allow: true}, hub, NopBus{}, logging.Default())

	conn := newFakeConn("prod-1")
	if err := connectSession(lc, conn, "pond-unit-1", RoleProducer); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !conn.isClosed() {
		t.Error("eviction racing admission missed the transport; session left as a zombie")
	}
}

// A rejected connect leaves no hub entry behind.
func TestConnectRejectionLeavesNoHubEntry(t *testing.T) {
	lc, _, hub := newTestLifecycle()

	if err := connectSession(lc, newFakeConn("obs-1"), "pond-unit-1", RoleObserver); !errors.Is(err, ErrNoProducer) {
		t.Fatalf("Connect() error = %v, want ErrNoProducer", err)
	}
	if hub.Len() != 0 {
		t.Errorf("hub.Len() = %d after rejection, want 0", hub.Len())
	}
}

// Two producers racing for the same empty room must never both be admitted:
// exactly one wins, or a collision evicts and neither remains.
func TestConnectConcurrentProducers(t *testing.T) {
	lc, reg, _ := newTestLifecycle()
	ctx := context.Background()

	const racers = 20
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := newFakeConn("prod-" + string(rune('a'+n)))
			_ = lc.Connect(ctx, conn, ConnectRequest{DeviceID: "pond-unit-1", Role: RoleProducer})
		}(i)
	}
	wg.Wait()

	members, err := reg.Members(ctx, "pond-unit-1")
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	producers := 0
	for _, role := range members {
		if role == RoleProducer {
			producers++
		}
	}
	if producers > 1 {
		t.Errorf("room has %d producers after the race, want at most 1", producers)
	}
}
