// Package api provides the HTTP REST API and WebSocket transport for
// AquaSense Core.
//
// The REST surface covers device provisioning, calibrated reading queries
// and observer token issue. The WebSocket endpoint is the real-time
// transport for the broker: producer devices and observer dashboards
// connect, join their device room and exchange telemetry through it.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
