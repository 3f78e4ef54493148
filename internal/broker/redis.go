package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key layout. One hash per room (session → role), one hash per session
// (reverse index), one string per device for the last telemetry payload, and
// one volatile string per device for the admission lock.
const (
	redisRoomPrefix    = "aquasense:room:"
	redisSessionPrefix = "aquasense:session:"
	redisPayloadPrefix = "aquasense:payload:"
	redisLockPrefix    = "aquasense:lock:"
)

// Admission lock tuning. The TTL bounds how long a crashed holder can block a
// device; the wait bounds how long a caller spins before failing closed.
const (
	lockTTL       = 5 * time.Second
	lockWait      = 3 * time.Second
	lockRetryWait = 25 * time.Millisecond
)

// recordPayloadScript stores the payload only while the session is the
// registered producer, in one atomic step on the server.
var recordPayloadScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) == 'producer' then
	redis.call('SET', KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// leaveScript removes one member and collapses the room when it empties.
var leaveScript = redis.NewScript(`
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
if redis.call('HLEN', KEYS[1]) == 0 then
	redis.call('DEL', KEYS[1], KEYS[3])
end
return 1
`)

// deleteRoomScript removes the room, its payload, and every member's reverse
// index entry in one atomic step.
var deleteRoomScript = redis.NewScript(`
local members = redis.call('HKEYS', KEYS[1])
for _, sid in ipairs(members) do
	redis.call('DEL', ARGV[1] .. sid)
end
redis.call('DEL', KEYS[1], KEYS[2])
return #members
`)

// unlockScript releases an admission lock only if the caller still owns it.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisRegistry is the Redis-backed Registry used when the broker runs as
// multiple stateless processes. All instances share room state through the
// same Redis deployment.
//
// Thread Safety: all methods are safe for concurrent use.
type RedisRegistry struct {
	client redis.UniversalClient
}

// NewRedisRegistry creates a registry on top of an already-connected client.
// The caller owns the client's lifecycle.
func NewRedisRegistry(client redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// storeErr maps any Redis failure onto ErrStoreUnavailable so callers can
// fail closed without inspecting driver error types.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// Join adds the member to the room hash and writes the reverse index entry
// atomically (MULTI/EXEC).
func (r *RedisRegistry) Join(ctx context.Context, deviceID, sessionID string, role Role) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, redisRoomPrefix+deviceID, sessionID, string(role))
	pipe.HSet(ctx, redisSessionPrefix+sessionID, "device_id", deviceID, "role", string(role))
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("join", err)
	}
	return nil
}

// Leave removes the member and collapses the room when it empties.
func (r *RedisRegistry) Leave(ctx context.Context, deviceID, sessionID string) error {
	keys := []string{
		redisRoomPrefix + deviceID,
		redisSessionPrefix + sessionID,
		redisPayloadPrefix + deviceID,
	}
	if err := leaveScript.Run(ctx, r.client, keys, sessionID).Err(); err != nil {
		return storeErr("leave", err)
	}
	return nil
}

// Members returns a snapshot of the room's membership.
func (r *RedisRegistry) Members(ctx context.Context, deviceID string) (map[string]Role, error) {
	raw, err := r.client.HGetAll(ctx, redisRoomPrefix+deviceID).Result()
	if err != nil {
		return nil, storeErr("members", err)
	}
	members := make(map[string]Role, len(raw))
	for sid, role := range raw {
		members[sid] = Role(role)
	}
	return members, nil
}

// Find resolves a session through the reverse index.
func (r *RedisRegistry) Find(ctx context.Context, sessionID string) (string, Role, error) {
	ref, err := r.client.HGetAll(ctx, redisSessionPrefix+sessionID).Result()
	if err != nil {
		return "", "", storeErr("find", err)
	}
	if len(ref) == 0 {
		return "", "", ErrSessionNotFound
	}
	return ref["device_id"], Role(ref["role"]), nil
}

// RecordPayload stores the latest telemetry blob, producer-gated on the
// server side so a stale session can never overwrite the payload between the
// membership check and the write.
func (r *RedisRegistry) RecordPayload(ctx context.Context, deviceID string, payload json.RawMessage, sessionID string) error {
	keys := []string{redisRoomPrefix + deviceID, redisPayloadPrefix + deviceID}
	ok, err := recordPayloadScript.Run(ctx, r.client, keys, sessionID, string(payload)).Int()
	if err != nil {
		return storeErr("record payload", err)
	}
	if ok == 0 {
		return ErrNotProducer
	}
	return nil
}

// LastPayload returns the most recent telemetry blob, or nil if none.
func (r *RedisRegistry) LastPayload(ctx context.Context, deviceID string) (json.RawMessage, error) {
	raw, err := r.client.Get(ctx, redisPayloadPrefix+deviceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("last payload", err)
	}
	return raw, nil
}

// DeleteRoom removes the room entry, payload, and reverse index entries.
func (r *RedisRegistry) DeleteRoom(ctx context.Context, deviceID string) error {
	keys := []string{redisRoomPrefix + deviceID, redisPayloadPrefix + deviceID}
	if err := deleteRoomScript.Run(ctx, r.client, keys, redisSessionPrefix).Err(); err != nil {
		return storeErr("delete room", err)
	}
	return nil
}

// WithDevice runs fn while holding a distributed per-device lock (SET NX PX
// with an owner token). Lock acquisition that does not succeed within
// lockWait fails closed with ErrStoreUnavailable.
func (r *RedisRegistry) WithDevice(ctx context.Context, deviceID string, fn func(ctx context.Context) error) error {
	lockKey := redisLockPrefix + deviceID
	token := uuid.NewString()

	deadline := time.Now().Add(lockWait)
	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, lockTTL).Result()
		if err != nil {
			return storeErr("acquire device lock", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: device lock contention on %q", ErrStoreUnavailable, deviceID)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
		case <-time.After(lockRetryWait):
		}
	}

	defer func() {
		// Best effort; the TTL reclaims the lock if the release is lost.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = unlockScript.Run(releaseCtx, r.client, []string{lockKey}, token).Err() //nolint:errcheck
	}()

	return fn(ctx)
}
