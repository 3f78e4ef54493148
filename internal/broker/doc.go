// Package broker implements the device-session broker for AquaSense Core.
//
// The broker accepts persistent bidirectional connections from two kinds of
// participants: a telemetry device ("producer") and one or more dashboards
// ("observers"). Sessions for the same device form a device room. Room
// membership lives in a shared session store (Redis in production) so any
// number of stateless broker instances can serve connections for the same
// device.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                            broker                                │
//	│                                                                  │
//	│  ┌──────────────┐   ┌──────────────┐   ┌──────────────────────┐  │
//	│  │  Lifecycle   │   │    Router    │   │       Registry       │  │
//	│  │(lifecycle.go)│   │  (router.go) │   │    (registry.go)     │  │
//	│  │              │   │              │   │                      │  │
//	│  │ • connect    │   │ • telemetry  │   │ • room membership    │  │
//	│  │ • disconnect │   │   fanout     │   │ • reverse lookup     │  │
//	│  │ • eviction   │   │ • echo/ack   │   │ • last payload       │  │
//	│  └──────┬───────┘   └──────┬───────┘   └──────────┬───────────┘  │
//	│         │                  │                      │              │
//	│         ▼                  ▼                      ▼              │
//	│  ┌─────────────────────────────────┐   ┌──────────────────────┐  │
//	│  │        Hub (hub.go)             │   │  Memory / Redis      │  │
//	│  │  process-local session → Conn   │   │  implementations     │  │
//	│  └─────────────────────────────────┘   └──────────────────────┘  │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Room invariants
//
//   - At most one producer per device room at any instant.
//   - An observer may join only while a producer is present.
//   - Producer departure cascades: every remaining member is force-closed and
//     the room entry is deleted outright.
//   - A second producer connecting to an occupied room invalidates the whole
//     room: every existing member is evicted and the newcomer is rejected.
//
// All membership decisions run under per-device mutual exclusion
// (Registry.WithDevice), because the underlying read-decide-write sequence is
// not safe to interleave across broker instances.
//
// # Usage
//
//	reg := broker.NewRedisRegistry(redisClient)
//	hub := broker.NewHub(log)
//	bus := broker.NewRedisBus(redisClient, hub, reg, log)
//	lc := broker.NewLifecycle(reg, directory, hub, bus, log)
//	rt := broker.NewRouter(reg, hub, bus, log)
//
// Transport adapters (the WebSocket handler in internal/api) translate their
// events into Lifecycle and Router calls; the broker itself is
// transport-agnostic.
package broker
