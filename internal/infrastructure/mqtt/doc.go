// Package mqtt provides MQTT connectivity for AquaSense Core.
//
// This package wraps eclipse/paho.mqtt.golang with:
//   - Connection management and automatic reconnection with backoff
//   - Subscription tracking with re-subscription after reconnect
//   - Last Will and Testament for offline detection
//   - Consistent topic naming via the Topics helpers
//
// The primary consumer is the telemetry ingest bridge: sensor nodes that
// cannot hold a WebSocket session open publish readings to
// aquasense/telemetry/{device_id} and the bridge feeds them into the
// persistence pipeline.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Disconnect()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        // handle reading
//	        return nil
//	    })
//
// Thread Safety: all methods are safe for concurrent use from multiple
// goroutines.
package mqtt
