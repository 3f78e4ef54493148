package broker

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryRegistry is a process-local Registry implementation.
//
// It serves single-instance deployments and tests. Multi-instance deployments
// must use RedisRegistry so that all instances observe the same room state.
//
// Thread Safety: all methods are safe for concurrent use.
type MemoryRegistry struct {
	mu       sync.RWMutex
	rooms    map[string]*memRoom
	sessions map[string]memberRef

	// Per-device admission locks backing WithDevice. Retained for the life
	// of the registry; bounded by the number of distinct devices seen.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

type memRoom struct {
	members     map[string]Role
	lastPayload json.RawMessage
}

type memberRef struct {
	deviceID string
	role     Role
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		rooms:    make(map[string]*memRoom),
		sessions: make(map[string]memberRef),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Join adds the member to the device's room, creating it if absent.
func (r *MemoryRegistry) Join(_ context.Context, deviceID, sessionID string, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[deviceID]
	if !ok {
		room = &memRoom{members: make(map[string]Role)}
		r.rooms[deviceID] = room
	}
	room.members[sessionID] = role
	r.sessions[sessionID] = memberRef{deviceID: deviceID, role: role}
	return nil
}

// Leave removes the member; deletes the room when it becomes empty.
func (r *MemoryRegistry) Leave(_ context.Context, deviceID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[deviceID]
	if !ok {
		return nil
	}
	delete(room.members, sessionID)
	delete(r.sessions, sessionID)
	if len(room.members) == 0 {
		delete(r.rooms, deviceID)
	}
	return nil
}

// Members returns a snapshot of the room's membership.
func (r *MemoryRegistry) Members(_ context.Context, deviceID string) (map[string]Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]Role)
	if room, ok := r.rooms[deviceID]; ok {
		for sid, role := range room.members {
			snapshot[sid] = role
		}
	}
	return snapshot, nil
}

// Find resolves a session to its device and role.
func (r *MemoryRegistry) Find(_ context.Context, sessionID string) (string, Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := r.sessions[sessionID]
	if !ok {
		return "", "", ErrSessionNotFound
	}
	return ref.deviceID, ref.role, nil
}

// RecordPayload stores the latest telemetry blob, producer-gated.
func (r *MemoryRegistry) RecordPayload(_ context.Context, deviceID string, payload json.RawMessage, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[deviceID]
	if !ok || room.members[sessionID] != RoleProducer {
		return ErrNotProducer
	}
	room.lastPayload = append(json.RawMessage(nil), payload...)
	return nil
}

// LastPayload returns the most recent telemetry blob, or nil.
func (r *MemoryRegistry) LastPayload(_ context.Context, deviceID string) (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[deviceID]
	if !ok || room.lastPayload == nil {
		return nil, nil
	}
	return append(json.RawMessage(nil), room.lastPayload...), nil
}

// DeleteRoom removes the room and its members' reverse index entries.
func (r *MemoryRegistry) DeleteRoom(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[deviceID]
	if !ok {
		return nil
	}
	for sid := range room.members {
		delete(r.sessions, sid)
	}
	delete(r.rooms, deviceID)
	return nil
}

// WithDevice runs fn while holding the device's admission lock.
func (r *MemoryRegistry) WithDevice(ctx context.Context, deviceID string, fn func(ctx context.Context) error) error {
	lock := r.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

// deviceLock returns the mutex for a device, creating it on first use.
func (r *MemoryRegistry) deviceLock(deviceID string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	lock, ok := r.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[deviceID] = lock
	}
	return lock
}
