package broker

import "errors"

// Domain errors for the broker package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, broker.ErrDuplicateProducer) {
//	    // room was evicted, reject the newcomer
//	}
var (
	// ErrStoreUnavailable is returned when the shared session store cannot be
	// reached. Callers must fail closed: refuse the connection or drop the
	// message, never accept a session whose membership was not recorded.
	ErrStoreUnavailable = errors.New("broker: session store unavailable")

	// ErrAuthRejected is returned when the device directory refuses the
	// presented credential, or the connect request is malformed.
	ErrAuthRejected = errors.New("broker: authentication rejected")

	// ErrInvalidRole is returned when a connect request carries a role other
	// than producer or observer.
	ErrInvalidRole = errors.New("broker: invalid role")

	// ErrDuplicateProducer is returned when a producer connects to a room
	// that already has one. The whole room is evicted as a side effect.
	ErrDuplicateProducer = errors.New("broker: duplicate producer")

	// ErrNoProducer is returned when an observer connects to a room with no
	// live producer.
	ErrNoProducer = errors.New("broker: no producer in room")

	// ErrNotProducer is returned by RecordPayload when the session is not the
	// registered producer for the device.
	ErrNotProducer = errors.New("broker: session is not the producer")

	// ErrSessionNotFound is returned by Find for unknown session identifiers.
	// Disconnect and echo treat it as a benign no-op.
	ErrSessionNotFound = errors.New("broker: session not found")
)
