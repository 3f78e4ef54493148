package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tirtalab/aquasense-core/internal/sensor"
)

// handleListReadings returns stored readings for a device, newest first.
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	sensorType := r.URL.Query().Get("sensor_type")
	limit := queryInt(r, "limit", defaultPageSize)
	offset := queryInt(r, "offset", 0)
	if limit > maxPageSize {
		limit = maxPageSize
	}

	readings, total, err := s.sensors.ListByDevice(r.Context(), deviceID, sensorType, offset, limit)
	if err != nil {
		s.logger.Error("failed to list readings", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to list readings")
		return
	}
	if readings == nil {
		readings = []sensor.Reading{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleLatestReadings returns the most recent reading of each sensor type.
func (s *Server) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	readings, err := s.sensors.Latest(r.Context(), deviceID)
	if err != nil {
		s.logger.Error("failed to get latest readings", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to get latest readings")
		return
	}
	if readings == nil {
		readings = []sensor.Reading{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"readings":  readings,
	})
}

// handleCreateReading records a raw sample through the calibration pipeline.
// This mirrors the MQTT ingest path for devices posting over HTTP.
func (s *Server) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var sample sensor.Sample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	reading, err := s.sensors.Record(r.Context(), deviceID, sample)
	if err != nil {
		switch {
		case errors.Is(err, sensor.ErrUnknownDevice):
			writeNotFound(w, "device not registered or not active")
		case errors.Is(err, sensor.ErrInvalidReading):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("failed to record reading", "device_id", deviceID, "error", err)
			writeInternalError(w, "failed to record reading")
		}
		return
	}

	writeJSON(w, http.StatusCreated, reading)
}
