package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tirtalab/aquasense-core/internal/infrastructure/logging"
	"github.com/tirtalab/aquasense-core/internal/infrastructure/mqtt"
)

// ingestTimeout bounds how long a single MQTT message may spend in the
// persistence pipeline before it is dropped.
const ingestTimeout = 10 * time.Second

// Ingest bridges MQTT telemetry into the sensor service. Devices publish
// batched samples to aquasense/telemetry/{device_id}:
//
//	{"samples": [{"sensor_type": "ph", "raw": 2048}, ...]}
//
// Malformed messages are logged and dropped; MQTT delivery is not retried
// on application errors.
type Ingest struct {
	client  *mqtt.Client
	service *Service
	topics  mqtt.Topics
	logger  *logging.Logger
}

// NewIngest creates the ingest bridge. Call Start to begin consuming.
func NewIngest(client *mqtt.Client, service *Service, logger *logging.Logger) *Ingest {
	return &Ingest{
		client:  client,
		service: service,
		logger:  logger.With("component", "ingest"),
	}
}

// telemetryMessage is the wire format devices publish.
type telemetryMessage struct {
	Samples []Sample `json:"samples"`
}

// Start subscribes to the device telemetry wildcard. The subscription
// survives broker reconnects via the MQTT client's resubscribe logic.
func (i *Ingest) Start() error {
	topic := i.topics.AllDeviceTelemetry()
	if err := i.client.Subscribe(topic, 1, i.handleTelemetry); err != nil {
		return fmt.Errorf("subscribing to telemetry: %w", err)
	}
	i.logger.Info("telemetry ingest started", "topic", topic)
	return nil
}

// Stop unsubscribes from the telemetry topic.
func (i *Ingest) Stop() error {
	return i.client.Unsubscribe(i.topics.AllDeviceTelemetry())
}

func (i *Ingest) handleTelemetry(topic string, payload []byte) error {
	deviceID, err := i.topics.DeviceIDFromTelemetry(topic)
	if err != nil {
		i.logger.Warn("telemetry on unexpected topic", "topic", topic, "error", err)
		return nil
	}

	var msg telemetryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		i.logger.Warn("malformed telemetry payload",
			"device_id", deviceID,
			"error", err,
		)
		return nil
	}
	if len(msg.Samples) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	for _, sample := range msg.Samples {
		if _, err := i.service.Record(ctx, deviceID, sample); err != nil {
			i.logger.Warn("failed to record telemetry sample",
				"device_id", deviceID,
				"sensor_type", sample.SensorType,
				"error", err,
			)
		}
	}
	return nil
}
